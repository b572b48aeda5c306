package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinesIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_lines_total",
		Help: "The total number of event lines read",
	}, []string{"source"}) // source: file, nats

	LinesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_lines_skipped_total",
		Help: "The total number of event lines skipped",
	}, []string{"reason"})

	IngestFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_failures_total",
		Help: "The total number of ingestion runs that ended with an I/O error",
	})

	CardinalityEstimate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cardinality_estimate",
		Help: "The current distinct-value estimate per counter",
	}, []string{"counter"})

	SketchMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sketch_register_memory_bytes",
		Help: "Register memory held by all cardinality sketches",
	})
)
