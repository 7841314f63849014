// Package supabase stores stations and status logs through the PostgREST
// interface of a hosted Supabase project.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/velov-data/velov/internal/provider/resilience"
	"github.com/velov-data/velov/internal/station"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "supabase"

	stationsTable   = "stations"
	statusLogsTable = "station_status_logs"
	latestView      = "latest_station_status"

	maxErrorBody = 4 << 10
)

// ErrMissingCredentials is returned when the project URL or key is empty.
var ErrMissingCredentials = errors.New("supabase url and key are required")

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for the Supabase repository.
type Config struct {
	// URL is the project base URL, e.g. https://xyz.supabase.co.
	URL string

	// Key is the service or anon key sent as apikey and bearer token.
	Key string

	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient HTTPDoer

	// WriteClient executes upserts and inserts. If nil, HTTPClient is used
	// when set, otherwise a client whose breaker never opens.
	WriteClient HTTPDoer

	// Timeout for individual requests when HTTPClient is nil (default: 10s).
	Timeout time.Duration

	// Logger receives circuit breaker transitions when HTTPClient is nil.
	Logger *zerolog.Logger
}

// Repository implements station.Repository against PostgREST.
type Repository struct {
	restURL     string
	key         string
	httpClient  HTTPDoer
	writeClient HTTPDoer
}

// NewRepository creates a Supabase-backed repository.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, ErrMissingCredentials
	}

	writeClient := cfg.WriteClient
	if writeClient == nil {
		writeClient = cfg.HTTPClient
	}
	if writeClient == nil {
		writeClient = resilience.NewClient(WriteClientConfig(cfg.Timeout))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Repository{
		restURL:     strings.TrimRight(cfg.URL, "/") + "/rest/v1/",
		key:         cfg.Key,
		httpClient:  httpClient,
		writeClient: writeClient,
	}, nil
}

// WriteClientConfig returns the client configuration for ingest writes. Every
// upsert of a run is sent even after earlier ones failed.
func WriteClientConfig(timeout time.Duration) resilience.ClientConfig {
	rc := resilience.DefaultClientConfig(ProviderName + "-writes")
	if timeout > 0 {
		rc.Timeout = timeout
	}
	rc.CircuitBreaker.ReadyToTrip = resilience.NeverTrip
	return rc
}

type stationRow struct {
	StationID string  `json:"station_id"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Capacity  int     `json:"capacity"`
	Address   *string `json:"address"`
}

type statusRow struct {
	StationID          string `json:"station_id"`
	NumBikesAvailable  int    `json:"num_bikes_available"`
	NumBikesMechanical int    `json:"num_bikes_mechanical"`
	NumBikesEbike      int    `json:"num_bikes_ebike"`
	NumDocksAvailable  int    `json:"num_docks_available"`
	IsInstalled        bool   `json:"is_installed"`
	IsRenting          bool   `json:"is_renting"`
	IsReturning        bool   `json:"is_returning"`
	LastReported       string `json:"last_reported"`
	Status             string `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// UpsertStation inserts the station or merges it into the existing row.
func (r *Repository) UpsertStation(ctx context.Context, s *station.Station) error {
	row := stationRow{
		StationID: s.StationID,
		Name:      s.Name,
		Lat:       s.Lat,
		Lon:       s.Lon,
		Capacity:  s.Capacity,
		Address:   s.Address,
	}

	q := url.Values{"on_conflict": {"station_id"}}
	err := r.write(ctx, stationsTable, q, "resolution=merge-duplicates,return=minimal", row)
	if err != nil {
		return fmt.Errorf("%w: upsert station %s: %w", station.ErrPersistenceWrite, s.StationID, err)
	}
	return nil
}

// InsertStatusLogs appends all logs in one request.
func (r *Repository) InsertStatusLogs(ctx context.Context, logs []*station.StatusLog) error {
	rows := make([]statusRow, len(logs))
	for i, l := range logs {
		rows[i] = statusRow{
			StationID:          l.StationID,
			NumBikesAvailable:  l.NumBikesAvailable,
			NumBikesMechanical: l.NumBikesMechanical,
			NumBikesEbike:      l.NumBikesEbike,
			NumDocksAvailable:  l.NumDocksAvailable,
			IsInstalled:        l.IsInstalled,
			IsRenting:          l.IsRenting,
			IsReturning:        l.IsReturning,
			LastReported:       station.FormatInstant(l.LastReported),
			Status:             l.Status,
		}
	}

	if err := r.write(ctx, statusLogsTable, nil, "return=minimal", rows); err != nil {
		return fmt.Errorf("%w: insert %d status logs: %w", station.ErrPersistenceWrite, len(logs), err)
	}
	return nil
}

// ListStations returns all stations ordered by station_id.
func (r *Repository) ListStations(ctx context.Context) ([]*station.Station, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"station_id.asc"},
	}

	var rows []stationRow
	if err := r.read(ctx, stationsTable, q, &rows); err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}

	stations := make([]*station.Station, len(rows))
	for i, row := range rows {
		stations[i] = &station.Station{
			StationID: row.StationID,
			Name:      row.Name,
			Lat:       row.Lat,
			Lon:       row.Lon,
			Capacity:  row.Capacity,
			Address:   row.Address,
		}
	}
	return stations, nil
}

// LatestStatuses reads the latest_station_status view.
func (r *Repository) LatestStatuses(ctx context.Context) ([]*station.StatusLog, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"station_id.asc"},
	}

	var rows []statusRow
	if err := r.read(ctx, latestView, q, &rows); err != nil {
		return nil, fmt.Errorf("latest statuses: %w", err)
	}
	return toStatusLogs(rows)
}

// StatusHistory returns the logs of one station ordered by last_reported.
func (r *Repository) StatusHistory(ctx context.Context, stationID string, hq station.HistoryQuery) ([]*station.StatusLog, error) {
	q := url.Values{
		"select":     {"*"},
		"station_id": {"eq." + stationID},
		"order":      {"last_reported.asc"},
	}
	if hq.From != nil {
		q.Add("last_reported", "gte."+station.FormatInstant(*hq.From))
	}
	if hq.To != nil {
		q.Add("last_reported", "lte."+station.FormatInstant(*hq.To))
	}

	var rows []statusRow
	if err := r.read(ctx, statusLogsTable, q, &rows); err != nil {
		return nil, fmt.Errorf("status history: %w", err)
	}
	return toStatusLogs(rows)
}

// Ping issues a one-row select against the stations table.
func (r *Repository) Ping(ctx context.Context) error {
	q := url.Values{
		"select": {"station_id"},
		"limit":  {"1"},
	}

	var rows []json.RawMessage
	if err := r.read(ctx, stationsTable, q, &rows); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func toStatusLogs(rows []statusRow) ([]*station.StatusLog, error) {
	logs := make([]*station.StatusLog, len(rows))
	for i, row := range rows {
		reported, err := time.Parse(time.RFC3339Nano, row.LastReported)
		if err != nil {
			return nil, fmt.Errorf("parse last_reported of %s: %w", row.StationID, err)
		}
		logs[i] = &station.StatusLog{
			StationID:          row.StationID,
			NumBikesAvailable:  row.NumBikesAvailable,
			NumBikesMechanical: row.NumBikesMechanical,
			NumBikesEbike:      row.NumBikesEbike,
			NumDocksAvailable:  row.NumDocksAvailable,
			IsInstalled:        row.IsInstalled,
			IsRenting:          row.IsRenting,
			IsReturning:        row.IsReturning,
			LastReported:       reported.UTC(),
			Status:             row.Status,
		}
	}
	return logs, nil
}

func (r *Repository) write(ctx context.Context, table string, q url.Values, prefer string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(table, q), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	r.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)

	resp, err := r.writeClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *Repository) read(ctx context.Context, table string, q url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(table, q), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	r.setHeaders(req)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *Repository) endpoint(table string, q url.Values) string {
	if len(q) == 0 {
		return r.restURL + table
	}
	return r.restURL + table + "?" + q.Encode()
}

func (r *Repository) setHeaders(req *http.Request) {
	req.Header.Set("apikey", r.key)
	req.Header.Set("Authorization", "Bearer "+r.key)
	req.Header.Set("Accept", "application/json")
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code != "" {
			return fmt.Errorf("postgrest status %d (%s): %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("postgrest status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("postgrest status %d", resp.StatusCode)
}

// Ensure Repository implements station.Repository.
var _ station.Repository = (*Repository)(nil)
