package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job types accepted on the subscription.
const (
	JobTypeIngest      = "ingest"
	JobTypeHealthCheck = "health_check"
)

// JobMessage represents a worker job message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// Runner is anything that performs one ingest run.
type Runner interface {
	Run(ctx context.Context) (*IngestResult, error)
}

// Dispatcher maps job messages to ingest runs and health checks.
type Dispatcher struct {
	runMu       sync.Mutex
	ingestJob   Runner
	healthCheck func(ctx context.Context) error
	logger      zerolog.Logger
}

// NewDispatcher creates a Dispatcher. healthCheck may be nil.
func NewDispatcher(job Runner, healthCheck func(ctx context.Context) error, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ingestJob:   job,
		healthCheck: healthCheck,
		logger:      logger,
	}
}

// Dispatch runs the job described by data and reports whether the message
// should be acknowledged. Unknown job types are acknowledged so they are not
// redelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) bool {
	startTime := time.Now()

	var jobMsg JobMessage
	if err := json.Unmarshal(data, &jobMsg); err != nil {
		d.logger.Error().Err(err).Msg("failed to parse message")
		return false
	}

	var err error
	switch jobMsg.JobType {
	case JobTypeIngest:
		err = d.handleIngest(ctx)
	case JobTypeHealthCheck:
		err = d.handleHealthCheck(ctx)
	default:
		d.logger.Warn().Str("job_type", jobMsg.JobType).Msg("unknown job type")
		return true
	}

	if err != nil {
		d.logger.Error().Err(err).Str("job_type", jobMsg.JobType).Msg("job failed")
		return false
	}

	d.logger.Info().
		Str("job_type", jobMsg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

func (d *Dispatcher) handleIngest(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	result, err := d.ingestJob.Run(ctx)
	if err != nil {
		return err
	}
	if perr := result.PersistenceErr(); perr != nil {
		// Store failures are not redelivered; the next scheduled run retries.
		d.logger.Warn().Err(perr).Str("run_id", result.RunID).Msg("ingest run had store failures")
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	if d.healthCheck == nil {
		return nil
	}
	if err := d.healthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}
