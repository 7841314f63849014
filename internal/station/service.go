package station

import (
	"context"
	"fmt"

	"github.com/velov-data/velov/internal/api/models"
)

// Store is what the read service needs from a repository.
type Store interface {
	Reader
	Ping(ctx context.Context) error
}

// Service provides the read side of stations and status logs.
type Service struct {
	repo Store
}

// NewService creates a new station service.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// ListStations returns every stored station.
func (s *Service) ListStations(ctx context.Context) ([]models.Station, error) {
	stations, err := s.repo.ListStations(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]models.Station, 0, len(stations))
	for _, st := range stations {
		items = append(items, toAPIStation(st))
	}
	return items, nil
}

// LatestStatuses returns the latest status log of every station.
func (s *Service) LatestStatuses(ctx context.Context) ([]models.StationStatus, error) {
	logs, err := s.repo.LatestStatuses(ctx)
	if err != nil {
		return nil, err
	}
	return toAPIStatuses(logs), nil
}

// StatusHistory returns the status logs of one station within q. An unknown
// station yields an empty list.
func (s *Service) StatusHistory(ctx context.Context, stationID string, q HistoryQuery) ([]models.StationStatus, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	logs, err := s.repo.StatusHistory(ctx, stationID, q)
	if err != nil {
		return nil, err
	}
	return toAPIStatuses(logs), nil
}

// Ping checks that the underlying store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

func toAPIStation(s *Station) models.Station {
	return models.Station{
		StationID: s.StationID,
		Name:      s.Name,
		Lat:       s.Lat,
		Lon:       s.Lon,
		Capacity:  s.Capacity,
		Address:   s.Address,
	}
}

func toAPIStatuses(logs []*StatusLog) []models.StationStatus {
	items := make([]models.StationStatus, 0, len(logs))
	for _, l := range logs {
		items = append(items, models.StationStatus{
			StationID:          l.StationID,
			NumBikesAvailable:  l.NumBikesAvailable,
			NumBikesMechanical: l.NumBikesMechanical,
			NumBikesEbike:      l.NumBikesEbike,
			NumDocksAvailable:  l.NumDocksAvailable,
			IsInstalled:        l.IsInstalled,
			IsRenting:          l.IsRenting,
			IsReturning:        l.IsReturning,
			LastReported:       FormatInstant(l.LastReported),
			Status:             l.Status,
		})
	}
	return items
}
