package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/velov-data/velov/internal/api/models"
	"github.com/velov-data/velov/internal/api/response"
	"github.com/velov-data/velov/internal/station"
)

const bannerMessage = "Vélo'v station data API"

// StationHandler serves stations and their status logs.
type StationHandler struct {
	service *station.Service
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(service *station.Service) *StationHandler {
	return &StationHandler{service: service}
}

// Banner handles GET /.
func (h *StationHandler) Banner(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Banner{Message: bannerMessage})
}

// ListStations handles GET /v1/stations.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.service.ListStations(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list stations")
		return
	}
	response.JSON(w, r, http.StatusOK, stations)
}

// LatestStatuses handles GET /v1/status/latest.
func (h *StationHandler) LatestStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.service.LatestStatuses(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to load latest statuses")
		return
	}
	response.JSON(w, r, http.StatusOK, statuses)
}

// StatusHistory handles GET /v1/status/{stationId}?start=&end=.
func (h *StationHandler) StatusHistory(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationId")

	var q station.HistoryQuery
	var fieldErrs []models.FieldError

	if v := r.URL.Query().Get("start"); v != "" {
		t, err := parseBound(v, false)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "start", Message: "must be YYYY-MM-DD or RFC3339"})
		} else {
			q.From = &t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := parseBound(v, true)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "end", Message: "must be YYYY-MM-DD or RFC3339"})
		} else {
			q.To = &t
		}
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid time range parameters", fieldErrs)
		return
	}

	history, err := h.service.StatusHistory(r.Context(), stationID, q)
	if err != nil {
		if errors.Is(err, station.ErrInvalidRange) {
			response.BadRequest(w, r, "start must not be after end", nil)
			return
		}
		response.InternalError(w, r, "failed to load status history")
		return
	}
	response.JSON(w, r, http.StatusOK, history)
}

// naiveLayouts are timestamps without a zone; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseBound parses a YYYY-MM-DD date, an RFC3339 timestamp or a timestamp
// without offset. A bare date used as an end bound covers the whole day.
func parseBound(v string, end bool) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, v); err == nil {
		if end {
			return d.Add(24*time.Hour - time.Millisecond), nil
		}
		return d, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, nerr := time.Parse(layout, v); nerr == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
