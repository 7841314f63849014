package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velov-data/velov/internal/api"
	"github.com/velov-data/velov/internal/api/models"
	"github.com/velov-data/velov/internal/provider/resilience"
	"github.com/velov-data/velov/internal/station"
)

var errStoreDown = errors.New("connection refused")

// brokenStore fails every read and ping.
type brokenStore struct {
	*station.InMemoryRepository
}

func (brokenStore) ListStations(context.Context) ([]*station.Station, error) {
	return nil, errStoreDown
}

func (brokenStore) Ping(context.Context) error {
	return errStoreDown
}

func seededRepo(t *testing.T) *station.InMemoryRepository {
	t.Helper()
	repo := station.NewInMemoryRepository()
	ctx := context.Background()
	address := "Place Bellecour"

	require.NoError(t, repo.UpsertStation(ctx, &station.Station{
		StationID: "42", Name: "Bellecour", Lat: 45.7578, Lon: 4.8320, Capacity: 20, Address: &address,
	}))
	require.NoError(t, repo.UpsertStation(ctx, &station.Station{StationID: "43", Name: "Part-Dieu", Capacity: 30}))
	require.NoError(t, repo.InsertStatusLogs(ctx, []*station.StatusLog{
		{StationID: "42", NumBikesAvailable: 5, IsRenting: true, LastReported: station.InstantFromEpoch(1700000000), Status: "OPEN"},
		{StationID: "42", NumBikesAvailable: 4, IsRenting: true, LastReported: station.InstantFromEpoch(1700003600), Status: "OPEN"},
		{StationID: "42", NumBikesAvailable: 9, IsRenting: true, LastReported: station.InstantFromEpoch(1700060000), Status: "OPEN"},
		{StationID: "43", NumBikesAvailable: 0, LastReported: station.InstantFromEpoch(1700000000), Status: "CLOSED"},
	}))
	return repo
}

func newTestRouter(t *testing.T, store station.Store, registry *resilience.Registry) http.Handler {
	t.Helper()
	return api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2024-01-01T00:00:00Z",
		Logger:             zerolog.New(io.Discard),
		StationService:     station.NewService(store),
		Registry:           registry,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeStatuses(t *testing.T, w *httptest.ResponseRecorder) []models.StationStatus {
	t.Helper()
	var out []models.StationStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRouter_Banner(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var banner models.Banner
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &banner))
	assert.NotEmpty(t, banner.Message)
}

func TestRouter_ListStations(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/v1/stations")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "42", raw[0]["station_id"])
	assert.Equal(t, "Place Bellecour", raw[0]["address"])
	assert.Equal(t, float64(20), raw[0]["capacity"])
	assert.Nil(t, raw[1]["address"])
}

func TestRouter_ListStations_StoreError(t *testing.T) {
	store := brokenStore{station.NewInMemoryRepository()}
	w := get(t, newTestRouter(t, store, nil), "/v1/stations")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.NotContains(t, w.Body.String(), errStoreDown.Error())
}

func TestRouter_LatestStatuses(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/v1/status/latest")

	require.Equal(t, http.StatusOK, w.Code)
	latest := decodeStatuses(t, w)
	require.Len(t, latest, 2)

	byID := map[string]models.StationStatus{}
	for _, s := range latest {
		byID[s.StationID] = s
	}
	assert.Equal(t, 9, byID["42"].NumBikesAvailable)
	assert.Equal(t, "2023-11-15T14:53:20.000Z", byID["42"].LastReported)
	assert.Equal(t, "CLOSED", byID["43"].Status)
}

func TestRouter_StatusHistory(t *testing.T) {
	router := newTestRouter(t, seededRepo(t), nil)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name: "unbounded",
			want: []string{"2023-11-14T22:13:20.000Z", "2023-11-14T23:13:20.000Z", "2023-11-15T14:53:20.000Z"},
		},
		{
			name:  "start date",
			query: "?start=2023-11-15",
			want:  []string{"2023-11-15T14:53:20.000Z"},
		},
		{
			name:  "end date covers the whole day",
			query: "?end=2023-11-14",
			want:  []string{"2023-11-14T22:13:20.000Z", "2023-11-14T23:13:20.000Z"},
		},
		{
			name:  "rfc3339 bounds are inclusive",
			query: "?start=2023-11-14T23:13:20Z&end=2023-11-15T14:53:20Z",
			want:  []string{"2023-11-14T23:13:20.000Z", "2023-11-15T14:53:20.000Z"},
		},
		{
			name:  "rfc3339 with offset",
			query: "?start=2023-11-15T00:13:20%2B01:00&end=2023-11-15T00:13:20%2B01:00",
			want:  []string{"2023-11-14T23:13:20.000Z"},
		},
		{
			name:  "timestamps without offset are utc",
			query: "?start=2023-11-14T23:13:20&end=2023-11-15T14:53:19",
			want:  []string{"2023-11-14T23:13:20.000Z"},
		},
		{
			name:  "space separated timestamp",
			query: "?start=2023-11-15%2014:53:20.000",
			want:  []string{"2023-11-15T14:53:20.000Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, "/v1/status/42"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			history := decodeStatuses(t, w)
			got := make([]string, 0, len(history))
			for _, s := range history {
				assert.Equal(t, "42", s.StationID)
				got = append(got, s.LastReported)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_StatusHistory_UnknownStation(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/v1/status/999")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRouter_StatusHistory_BadRequest(t *testing.T) {
	router := newTestRouter(t, seededRepo(t), nil)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"invalid start", "?start=yesterday", "start"},
		{"invalid end", "?end=2023-13-45", "end"},
		{"invalid naive timestamp", "?start=2023-11-15T25:00:00", "start"},
		{"inverted range", "?start=2023-11-15&end=2023-11-14", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, "/v1/status/42"+tt.query)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
			assert.Equal(t, "/v1/status/42", problem.Instance)
			if tt.field != "" {
				require.Len(t, problem.Errors, 1)
				assert.Equal(t, tt.field, problem.Errors[0].Field)
			}
		})
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/v1/ops/health")

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/v1/ops/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(t, newTestRouter(t, brokenStore{station.NewInMemoryRepository()}, nil), "/v1/ops/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_SystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register(resilience.NewClient(resilience.DefaultClientConfig("supabase")))
	registry.RecordFailure("supabase", errors.New("HTTP 503"))

	w := get(t, newTestRouter(t, seededRepo(t), registry), "/v1/ops/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "store", status.Subsystems[0].Name)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "supabase", status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
	require.NotNil(t, status.Providers[0].Message)
	assert.Equal(t, "HTTP 503", *status.Providers[0].Message)
	assert.NotNil(t, status.Providers[0].LastFailureAt)
}

func TestRouter_SystemStatus_StoreDown(t *testing.T) {
	w := get(t, newTestRouter(t, brokenStore{station.NewInMemoryRepository()}, nil), "/v1/ops/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.Equal(t, models.HealthStatusFail, status.Subsystems[0].Status)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, seededRepo(t), nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/status/latest", http.NoBody)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFound(t *testing.T) {
	w := get(t, newTestRouter(t, seededRepo(t), nil), "/v1/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
