package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourusername/event-cardinality/internal/calibrate"
	"github.com/yourusername/event-cardinality/internal/config"
	"github.com/yourusername/event-cardinality/internal/ingest"
	"github.com/yourusername/event-cardinality/internal/storage"
	"github.com/yourusername/event-cardinality/internal/stream"
	"github.com/yourusername/event-cardinality/pkg/sketch"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	metricsAddr := flag.String("metrics-addr", "", "address to listen on for metrics (overrides config)")
	follow := flag.Bool("follow", false, "keep running after the files are ingested")
	calibrateMode := flag.Bool("calibrate", false, "run accuracy trials instead of ingesting")
	precision := flag.Int("precision", 14, "precision for -calibrate")
	cardinality := flag.Int("cardinality", 100000, "distinct values per trial for -calibrate")
	trials := flag.Int("trials", 10, "number of trials for -calibrate")
	flag.Parse()

	if *calibrateMode {
		report, err := calibrate.Run(calibrate.Params{
			Precision:   *precision,
			Cardinality: *cardinality,
			Trials:      *trials,
			Seed:        1,
		})
		if err != nil {
			log.Printf("Calibration failed: %v", err)
			return 1
		}
		log.Println(report)
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Printf("Failed to load config: %v", err)
			return 1
		}
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	registry, err := sketch.NewRegistry(registryConfig(cfg))
	if err != nil {
		log.Printf("Failed to build sketch registry: %v", err)
		return 1
	}
	log.Printf("Sketch registry initialized: counters=%v, register memory=%d bytes",
		registry.Counters(), registry.MemoryUsageBytes())

	pipeline, err := ingest.NewPipeline(registry, ingest.OptionsFromConfig(cfg))
	if err != nil {
		log.Printf("Failed to build ingestion pipeline: %v", err)
		return 1
	}

	// Start metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("Metrics server listening on %s", cfg.Metrics.Addr)
		if err := http.ListenAndServe(cfg.Metrics.Addr, nil); err != nil {
			log.Printf("Metrics server failed: %v", err)
		}
	}()

	interval, _ := cfg.ReportInterval()
	estimator := NewEstimator(registry, interval)

	if cfg.Database.Enabled() {
		db, err := storage.NewPostgresDB(cfg.Database)
		if err != nil {
			log.Printf("Failed to connect to database: %v", err)
			return 1
		}
		defer db.Close()

		store := storage.NewEstimateStore(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Printf("Failed to prepare estimates table: %v", err)
			return 1
		}
		estimator.store = store
	}

	if cfg.NATS.URL != "" {
		sub, err := stream.NewSubscriber(cfg.NATS, pipeline)
		if err != nil {
			log.Printf("Failed to connect to NATS: %v", err)
			return 1
		}
		if err := sub.Start(); err != nil {
			log.Printf("Failed to subscribe: %v", err)
			return 1
		}
		defer sub.Close()
	}

	estimator.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	for _, path := range flag.Args() {
		res, err := pipeline.Ingest(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Printf("Error ingesting %s after %d lines (%d skipped): %v", path, res.Lines, res.Skipped, err)
			exitCode = 1
		}
	}

	if *follow && ctx.Err() == nil {
		log.Println("Following live sources, press Ctrl+C to stop")
		<-ctx.Done()
	}

	log.Println("Shutting down gracefully...")
	estimator.Stop()
	estimator.report(context.Background())
	return exitCode
}

func registryConfig(cfg *config.Config) sketch.RegistryConfig {
	rc := sketch.RegistryConfig{
		Frequency: sketch.FrequencyConfig{
			Width: cfg.Frequency.Width,
			Depth: cfg.Frequency.Depth,
		},
	}
	for _, c := range cfg.Counters {
		rc.Counters = append(rc.Counters, sketch.CounterConfig{Name: c.Name, Precision: c.Precision})
	}
	return rc
}
