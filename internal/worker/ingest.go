package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/velov-data/velov/internal/ingest"
	"github.com/velov-data/velov/internal/provider/resilience"
	"github.com/velov-data/velov/internal/station"
)

const tracerName = "github.com/velov-data/velov/internal/worker"

// IngestJob runs the locate, sync and record stages against one feed and
// one store.
type IngestJob struct {
	config IngestConfig
	logger zerolog.Logger
	tracer trace.Tracer

	locator      *ingest.Locator
	synchronizer *ingest.Synchronizer
	recorder     *ingest.Recorder

	// Optional
	metrics  *Metrics
	registry *resilience.Registry

	stats *IngestStats
}

// IngestStats tracks ingest job statistics in process.
type IngestStats struct {
	mu sync.RWMutex

	// Counters
	TotalRuns        int64
	SuccessfulRuns   int64
	PartialRuns      int64
	FailedRuns       int64
	StationsUpserted int64
	UpsertFailures   int64
	RowsInserted     int64
	InsertFailures   int64

	// Timings
	LastRunAt       time.Time
	LastRunID       string
	LastRunDuration time.Duration
	LastSuccessAt   time.Time
	TotalDuration   time.Duration
}

// IngestJobConfig holds configuration for creating an IngestJob.
type IngestJobConfig struct {
	Config   IngestConfig
	Logger   zerolog.Logger
	Source   ingest.FeedSource
	Writer   station.Writer
	Metrics  *Metrics
	Registry *resilience.Registry
}

// NewIngestJob creates a new ingest job.
func NewIngestJob(cfg IngestJobConfig) *IngestJob {
	config := cfg.Config
	defaults := DefaultIngestConfig()
	if config.FeedName == "" {
		config.FeedName = defaults.FeedName
	}
	if config.StoreName == "" {
		config.StoreName = defaults.StoreName
	}

	return &IngestJob{
		config:       config,
		logger:       cfg.Logger,
		tracer:       otel.Tracer(tracerName),
		locator:      ingest.NewLocator(cfg.Source),
		synchronizer: ingest.NewSynchronizer(cfg.Source, cfg.Writer, cfg.Logger),
		recorder:     ingest.NewRecorder(cfg.Source, cfg.Writer, cfg.Logger),
		metrics:      cfg.Metrics,
		registry:     cfg.Registry,
		stats:        &IngestStats{},
	}
}

// IngestResult contains the result of one run.
type IngestResult struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Feeds     ingest.FeedBundle
	Sync      ingest.SyncResult
	Record    ingest.RecordResult
}

// PersistenceErr joins the store failures of the run, or returns nil.
func (r *IngestResult) PersistenceErr() error {
	return errors.Join(r.Sync.Err(), r.Record.Err)
}

// Run executes one ingest run. Feed errors abort the run and are returned;
// store failures are reported in the result only.
func (j *IngestJob) Run(ctx context.Context) (*IngestResult, error) {
	result := &IngestResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	logger := j.logger.With().Str("run_id", result.RunID).Logger()

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	ctx, span := j.tracer.Start(ctx, "ingest.run",
		trace.WithAttributes(attribute.String("ingest.run_id", result.RunID)))
	defer span.End()

	logger.Info().
		Bool("concurrent", j.config.Concurrent).
		Msg("starting ingest run")

	err := j.run(ctx, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	outcome := outcomeSuccess
	switch {
	case err != nil:
		outcome = outcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.PersistenceErr() != nil:
		outcome = outcomePartial
		span.SetStatus(codes.Error, "store rejected writes")
	}
	span.SetAttributes(
		attribute.String("ingest.outcome", outcome),
		attribute.Int("ingest.stations", result.Sync.Processed),
		attribute.Int("ingest.status_rows", result.Record.Rows),
	)

	j.updateStats(result, outcome)
	j.metrics.observe(result, outcome)

	if err != nil {
		logger.Error().
			Err(err).
			Dur("duration", result.Duration).
			Msg("ingest run failed")
		return result, err
	}

	logger.Info().
		Dur("duration", result.Duration).
		Int("stations", result.Sync.Processed).
		Int("upserted", result.Sync.Upserted).
		Int("upsert_failures", result.Sync.Failed).
		Int("status_rows", result.Record.Rows).
		Int("inserted", result.Record.Inserted).
		Str("outcome", outcome).
		Msg("ingest run completed")

	return result, nil
}

func (j *IngestJob) run(ctx context.Context, result *IngestResult) error {
	err := j.stage(ctx, "ingest.locate", func(ctx context.Context) error {
		bundle, err := j.locator.Locate(ctx)
		result.Feeds = bundle
		return err
	})
	if err != nil {
		j.recordUpstream(j.config.FeedName, err)
		return err
	}

	syncStage := func(ctx context.Context) error {
		return j.stage(ctx, "ingest.sync", func(ctx context.Context) error {
			res, err := j.synchronizer.Sync(ctx, result.Feeds.InfoURL)
			result.Sync = res
			return err
		})
	}
	recordStage := func(ctx context.Context) error {
		return j.stage(ctx, "ingest.record", func(ctx context.Context) error {
			res, err := j.recorder.Record(ctx, result.Feeds.StatusURL)
			result.Record = res
			return err
		})
	}

	if j.config.Concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return syncStage(gctx) })
		g.Go(func() error { return recordStage(gctx) })
		err = g.Wait()
	} else {
		err = syncStage(ctx)
		if err == nil {
			err = recordStage(ctx)
		}
	}

	j.recordUpstream(j.config.FeedName, err)
	if err == nil {
		j.recordUpstream(j.config.StoreName, result.PersistenceErr())
	}
	return err
}

func (j *IngestJob) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := j.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (j *IngestJob) recordUpstream(name string, err error) {
	if j.registry == nil {
		return
	}
	if err != nil {
		j.registry.RecordFailure(name, err)
		return
	}
	j.registry.RecordSuccess(name)
}

func (j *IngestJob) updateStats(result *IngestResult, outcome string) {
	j.stats.mu.Lock()
	defer j.stats.mu.Unlock()

	j.stats.TotalRuns++
	switch outcome {
	case outcomeSuccess:
		j.stats.SuccessfulRuns++
		j.stats.LastSuccessAt = result.EndTime
	case outcomePartial:
		j.stats.PartialRuns++
	default:
		j.stats.FailedRuns++
	}
	j.stats.StationsUpserted += int64(result.Sync.Upserted)
	j.stats.UpsertFailures += int64(result.Sync.Failed)
	j.stats.RowsInserted += int64(result.Record.Inserted)
	if result.Record.Err != nil {
		j.stats.InsertFailures++
	}
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunID = result.RunID
	j.stats.LastRunDuration = result.Duration
	j.stats.TotalDuration += result.Duration
}

// GetStats returns a copy of the current statistics.
func (j *IngestJob) GetStats() IngestStats {
	j.stats.mu.RLock()
	defer j.stats.mu.RUnlock()

	return IngestStats{
		TotalRuns:        j.stats.TotalRuns,
		SuccessfulRuns:   j.stats.SuccessfulRuns,
		PartialRuns:      j.stats.PartialRuns,
		FailedRuns:       j.stats.FailedRuns,
		StationsUpserted: j.stats.StationsUpserted,
		UpsertFailures:   j.stats.UpsertFailures,
		RowsInserted:     j.stats.RowsInserted,
		InsertFailures:   j.stats.InsertFailures,
		LastRunAt:        j.stats.LastRunAt,
		LastRunID:        j.stats.LastRunID,
		LastRunDuration:  j.stats.LastRunDuration,
		LastSuccessAt:    j.stats.LastSuccessAt,
		TotalDuration:    j.stats.TotalDuration,
	}
}

// StatsSnapshot returns a snapshot of the current statistics as a map.
func (j *IngestJob) StatsSnapshot() map[string]interface{} {
	s := j.GetStats()
	return map[string]interface{}{
		"total_runs":        s.TotalRuns,
		"successful_runs":   s.SuccessfulRuns,
		"partial_runs":      s.PartialRuns,
		"failed_runs":       s.FailedRuns,
		"stations_upserted": s.StationsUpserted,
		"upsert_failures":   s.UpsertFailures,
		"rows_inserted":     s.RowsInserted,
		"insert_failures":   s.InsertFailures,
		"last_run_at":       s.LastRunAt,
		"last_run_id":       s.LastRunID,
		"last_run_duration": s.LastRunDuration.String(),
		"last_success_at":   s.LastSuccessAt,
		"total_duration":    s.TotalDuration.String(),
	}
}
