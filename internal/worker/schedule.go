package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunEvery runs job immediately and then once per interval until ctx is
// cancelled. Runs never overlap: a tick that fires during a run is dropped.
// Failed runs are logged by the job and do not stop the loop.
func RunEvery(ctx context.Context, interval time.Duration, job Runner, logger zerolog.Logger) {
	logger.Info().
		Dur("interval", interval).
		Msg("ingest scheduler started")
	defer func() { logger.Info().Msg("ingest scheduler stopped") }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, _ = job.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
