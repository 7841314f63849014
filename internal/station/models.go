// Package station holds the docking station and status log records and their persistence.
package station

import (
	"errors"
	"time"
)

// Repository errors.
var (
	// ErrPersistenceWrite wraps every write rejected by the store.
	ErrPersistenceWrite = errors.New("persistence write failed")

	// ErrInvalidRange is returned for a history query whose start is after its end.
	ErrInvalidRange = errors.New("invalid time range")
)

// InstantLayout is the wire form of status timestamps: UTC with milliseconds.
const InstantLayout = "2006-01-02T15:04:05.000Z"

// Station is a physical docking station, identified by StationID.
type Station struct {
	StationID string
	Name      string
	Lat       float64
	Lon       float64
	Capacity  int
	Address   *string
}

// StatusLog is a point-in-time observation of a station. Logs are append-only.
type StatusLog struct {
	StationID          string
	NumBikesAvailable  int
	NumBikesMechanical int
	NumBikesEbike      int
	NumDocksAvailable  int
	IsInstalled        bool
	IsRenting          bool
	IsReturning        bool
	LastReported       time.Time
	Status             string
}

// HistoryQuery bounds a status history lookup. Nil bounds are open.
type HistoryQuery struct {
	From *time.Time
	To   *time.Time
}

// Validate checks that the range is not inverted.
func (q HistoryQuery) Validate() error {
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return ErrInvalidRange
	}
	return nil
}

// Contains reports whether t falls within the query bounds, inclusive.
func (q HistoryQuery) Contains(t time.Time) bool {
	if q.From != nil && t.Before(*q.From) {
		return false
	}
	if q.To != nil && t.After(*q.To) {
		return false
	}
	return true
}

// InstantFromEpoch converts whole seconds since the Unix epoch to a UTC instant.
func InstantFromEpoch(seconds int64) time.Time {
	return time.Unix(seconds, 0).UTC()
}

// FormatInstant renders t in InstantLayout.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}
