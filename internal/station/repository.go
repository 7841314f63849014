package station

import (
	"context"
)

// Writer is the write side used by ingestion.
type Writer interface {
	// UpsertStation inserts the station or overwrites every field of the
	// existing record with the same StationID.
	UpsertStation(ctx context.Context, s *Station) error

	// InsertStatusLogs appends all logs in a single operation.
	InsertStatusLogs(ctx context.Context, logs []*StatusLog) error
}

// Reader is the read side used by the API.
type Reader interface {
	// ListStations returns all stations ordered by StationID.
	ListStations(ctx context.Context) ([]*Station, error)

	// LatestStatuses returns the most recent log of every station.
	LatestStatuses(ctx context.Context) ([]*StatusLog, error)

	// StatusHistory returns the logs of one station ordered by LastReported.
	StatusHistory(ctx context.Context, stationID string, q HistoryQuery) ([]*StatusLog, error)
}

// Repository defines the interface for station persistence.
type Repository interface {
	Writer
	Reader

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
