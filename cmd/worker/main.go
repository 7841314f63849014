// Package main provides the entrypoint for the Vélo'v ingest worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/velov-data/velov/internal/config"
	"github.com/velov-data/velov/internal/gbfs"
	"github.com/velov-data/velov/internal/provider/resilience"
	"github.com/velov-data/velov/internal/storage"
	"github.com/velov-data/velov/internal/telemetry"
	"github.com/velov-data/velov/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	const serviceName = "velov-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("mode", cfg.Mode()).
		Msg("starting Vélo'v worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	registry := resilience.NewRegistry()

	// Feed client
	feedHTTP := resilience.DefaultClientConfig(gbfs.ProviderName)
	feedHTTP.Timeout = cfg.GBFS.Timeout
	feedHTTP.MaxRetries = cfg.GBFS.MaxRetries
	feedHTTP.Logger = &log
	feedTransport := resilience.NewClient(feedHTTP)
	registry.Register(feedTransport)

	feed := gbfs.NewClient(gbfs.ClientConfig{
		DiscoveryURL: cfg.GBFS.DiscoveryURL,
		Region:       cfg.GBFS.Region,
		HTTPClient:   feedTransport,
		UserAgent:    cfg.GBFS.UserAgent,
	})

	// Store
	store, err := storage.Open(ctx, cfg.Store, storage.Options{
		Logger:   log,
		Registry: registry,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open store")
		return 1
	}
	defer store.Close()

	// Prometheus metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	job := worker.NewIngestJob(worker.IngestJobConfig{
		Config: worker.IngestConfig{
			Timeout:    cfg.Ingest.Timeout,
			Concurrent: cfg.Ingest.Concurrent,
			FeedName:   gbfs.ProviderName,
			StoreName:  store.Name,
		},
		Logger:   log,
		Source:   feed,
		Writer:   store,
		Metrics:  worker.NewMetrics(promRegistry),
		Registry: registry,
	})

	if cfg.Mode() == "once" {
		result, err := job.Run(ctx)
		if err != nil {
			return 1
		}
		if perr := result.PersistenceErr(); perr != nil {
			log.Warn().Err(perr).Msg("run completed with store failures")
		}
		return 0
	}

	// Long-running modes expose /health and /metrics.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      worker.NewHealthHandler(Version, job, promRegistry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
			stop()
		}
	}()

	exitCode := 0
	switch cfg.Mode() {
	case "pubsub":
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			IngestJob:        job,
			Logger:           log,
			HealthCheck: func(ctx context.Context) error {
				if _, err := feed.Discover(ctx); err != nil {
					return err
				}
				return store.Ping(ctx)
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			exitCode = 1
			break
		}
		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive failed")
			exitCode = 1
		}
		if err := handler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	default:
		worker.RunEvery(ctx, cfg.Ingest.Interval, job, log)
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
	return exitCode
}
