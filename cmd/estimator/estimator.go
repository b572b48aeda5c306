package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/yourusername/event-cardinality/internal/metrics"
	"github.com/yourusername/event-cardinality/pkg/sketch"
)

type estimateSaver interface {
	Save(ctx context.Context, estimates []sketch.Estimate) error
}

// Estimator owns the registry for the lifetime of the process and publishes
// its estimates periodically.
type Estimator struct {
	registry *sketch.Registry
	store    estimateSaver
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewEstimator(registry *sketch.Registry, interval time.Duration) *Estimator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Estimator{
		registry: registry,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Estimator) Start() {
	e.wg.Add(1)
	go e.printStats()
}

func (e *Estimator) printStats() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.report(e.ctx)

		case <-e.ctx.Done():
			return
		}
	}
}

// report logs every estimate, updates the gauges and, when a store is
// configured, persists the readings.
func (e *Estimator) report(ctx context.Context) {
	snapshot := e.registry.Snapshot()
	for _, est := range snapshot {
		metrics.CardinalityEstimate.WithLabelValues(est.Counter).Set(est.Value)
		log.Printf("Estimate %s: ~%.0f (p=%d, %d bytes)", est.Counter, est.Value, est.Precision, est.MemoryBytes)
	}

	stats := e.registry.GetStats()
	metrics.SketchMemoryBytes.Set(float64(stats.MemoryBytes))
	if stats.TotalEvents > 0 {
		log.Printf("Stats - Counters: %d, Register memory: %d bytes, Typed events: ~%d",
			stats.Counters, stats.MemoryBytes, stats.TotalEvents)
	}

	if e.store != nil {
		if err := e.store.Save(ctx, snapshot); err != nil {
			log.Printf("Error saving estimates: %v", err)
		}
	}
}

func (e *Estimator) Stop() {
	e.cancel()
	e.wg.Wait()
}
