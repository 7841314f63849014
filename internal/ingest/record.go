package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/velov-data/velov/internal/station"
)

// RecordResult reports one status recording.
type RecordResult struct {
	// Rows is the number of status entries in the feed.
	Rows     int
	Inserted int

	// Err is the insert failure, wrapping station.ErrPersistenceWrite.
	Err error
}

// Recorder appends one status log row per station in a single bulk insert.
type Recorder struct {
	source FeedSource
	writer station.Writer
	logger zerolog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(source FeedSource, writer station.Writer, logger zerolog.Logger) *Recorder {
	return &Recorder{
		source: source,
		writer: writer,
		logger: logger.With().Str("component", "recorder").Logger(),
	}
}

// Record fetches station status and inserts the whole batch. An insert
// failure is logged and reported in the result; it is not returned.
func (r *Recorder) Record(ctx context.Context, statusURL string) (RecordResult, error) {
	statuses, err := r.source.FetchStationStatus(ctx, statusURL)
	if err != nil {
		return RecordResult{}, err
	}

	logs := make([]*station.StatusLog, len(statuses))
	for i, s := range statuses {
		logs[i] = StatusLogFromFeed(s)
	}

	result := RecordResult{Rows: len(logs)}
	if err := r.writer.InsertStatusLogs(ctx, logs); err != nil {
		if !errors.Is(err, station.ErrPersistenceWrite) {
			err = fmt.Errorf("%w: insert %d status logs: %w", station.ErrPersistenceWrite, len(logs), err)
		}
		r.logger.Error().
			Err(err).
			Int("rows", result.Rows).
			Msg("status log insert failed")
		result.Err = err
		return result, nil
	}

	result.Inserted = len(logs)
	r.logger.Info().
		Int("rows", result.Rows).
		Msg("status logs recorded")

	return result, nil
}
