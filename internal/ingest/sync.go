package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/velov-data/velov/internal/station"
)

// SyncResult reports one station synchronization.
type SyncResult struct {
	// Processed is the number of stations in the feed.
	Processed int
	Upserted  int
	Failed    int

	// Errors holds one station.ErrPersistenceWrite error per failed upsert.
	Errors []error
}

// Err joins the collected upsert failures, or returns nil.
func (r SyncResult) Err() error {
	return errors.Join(r.Errors...)
}

// Synchronizer upserts station metadata one station at a time.
type Synchronizer struct {
	source FeedSource
	writer station.Writer
	logger zerolog.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(source FeedSource, writer station.Writer, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		source: source,
		writer: writer,
		logger: logger.With().Str("component", "synchronizer").Logger(),
	}
}

// Sync fetches station information and upserts every station in feed order.
// A failed upsert is collected and the next station is still attempted; only
// feed errors and context cancellation return an error.
func (s *Synchronizer) Sync(ctx context.Context, infoURL string) (SyncResult, error) {
	infos, err := s.source.FetchStationInformation(ctx, infoURL)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{Processed: len(infos)}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("sync stations: %w", err)
		}

		st := StationFromFeed(info)
		if err := s.writer.UpsertStation(ctx, st); err != nil {
			if !errors.Is(err, station.ErrPersistenceWrite) {
				err = fmt.Errorf("%w: upsert station %s: %w", station.ErrPersistenceWrite, st.StationID, err)
			}
			s.logger.Warn().
				Err(err).
				Str("station_id", st.StationID).
				Msg("station upsert failed")
			result.Failed++
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Upserted++
	}

	event := s.logger.Info()
	if result.Failed > 0 {
		event = s.logger.Error()
	}
	event.
		Int("processed", result.Processed).
		Int("upserted", result.Upserted).
		Int("failed", result.Failed).
		Msg("stations synchronized")

	return result, nil
}
