// Package ingest moves one snapshot of a GBFS feed into the station store:
// it locates the station feeds, upserts station metadata and appends one
// status log row per station.
package ingest

import (
	"context"
	"fmt"

	"github.com/velov-data/velov/internal/gbfs"
	"github.com/velov-data/velov/internal/station"
)

// FeedSource is the subset of the GBFS client the pipeline reads from.
type FeedSource interface {
	Discover(ctx context.Context) (*gbfs.Discovery, error)
	FetchStationInformation(ctx context.Context, url string) ([]gbfs.StationInformation, error)
	FetchStationStatus(ctx context.Context, url string) ([]gbfs.StationStatus, error)
}

// FeedBundle holds the two feed URLs resolved for one run.
type FeedBundle struct {
	InfoURL   string
	StatusURL string
}

// Locator resolves the station feeds from the discovery document.
type Locator struct {
	source FeedSource
}

// NewLocator creates a Locator.
func NewLocator(source FeedSource) *Locator {
	return &Locator{source: source}
}

// Locate fetches the discovery document and returns the station_information
// and station_status URLs. A missing entry is a gbfs.ErrFeedShape error.
func (l *Locator) Locate(ctx context.Context) (FeedBundle, error) {
	discovery, err := l.source.Discover(ctx)
	if err != nil {
		return FeedBundle{}, err
	}

	infoURL, ok := discovery.Find(gbfs.FeedStationInformation)
	if !ok {
		return FeedBundle{}, missingFeed(discovery, gbfs.FeedStationInformation)
	}
	statusURL, ok := discovery.Find(gbfs.FeedStationStatus)
	if !ok {
		return FeedBundle{}, missingFeed(discovery, gbfs.FeedStationStatus)
	}

	return FeedBundle{InfoURL: infoURL, StatusURL: statusURL}, nil
}

func missingFeed(d *gbfs.Discovery, name string) error {
	return fmt.Errorf("%w: feed %q not listed for region %q", gbfs.ErrFeedShape, name, d.Region)
}

// StationFromFeed maps a station_information entry to a station record.
func StationFromFeed(info gbfs.StationInformation) *station.Station {
	return &station.Station{
		StationID: info.StationID.String(),
		Name:      info.Name,
		Lat:       info.Lat,
		Lon:       info.Lon,
		Capacity:  info.Capacity,
		Address:   info.Address,
	}
}

// StatusLogFromFeed maps a station_status entry to a status log row.
func StatusLogFromFeed(s gbfs.StationStatus) *station.StatusLog {
	mechanical, ebike := s.Breakdown()
	return &station.StatusLog{
		StationID:          s.StationID.String(),
		NumBikesAvailable:  s.NumBikesAvailable,
		NumBikesMechanical: mechanical,
		NumBikesEbike:      ebike,
		NumDocksAvailable:  s.NumDocksAvailable,
		IsInstalled:        bool(s.IsInstalled),
		IsRenting:          bool(s.IsRenting),
		IsReturning:        bool(s.IsReturning),
		LastReported:       station.InstantFromEpoch(s.LastReported),
		Status:             s.Status,
	}
}
