// Package handler provides HTTP handlers for the Vélo'v read API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/velov-data/velov/internal/api/models"
	"github.com/velov-data/velov/internal/api/response"
	"github.com/velov-data/velov/internal/provider/resilience"
)

const readyTimeout = 3 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	store     Pinger
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. store and registry may be nil.
func NewOpsHandler(version, buildTime string, store Pinger, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		store:     store,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It fails with 503 when the
// store cannot be reached.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.pingStore(r.Context()); err != nil {
		response.ServiceUnavailable(w, r, "store is not reachable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - store and upstream status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.store != nil {
		sub := models.SubsystemStatus{Name: "store", Status: models.HealthStatusOK}
		if err := h.pingStore(r.Context()); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			status.Status = models.HealthStatusFail
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.registry != nil {
		for _, uh := range h.registry.AllHealth() {
			ps := providerStatus(uh)
			if ps.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingStore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return h.store.Ping(ctx)
}

func providerStatus(uh *resilience.UpstreamHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     uh.Name,
		Status:       models.HealthStatusOK,
		CircuitState: uh.CircuitState.String(),
	}
	switch {
	case uh.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case uh.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if uh.LastSuccessAt != nil {
		ts := models.Timestamp(*uh.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if uh.LastFailureAt != nil {
		ts := models.Timestamp(*uh.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if uh.LastError != "" {
		msg := uh.LastError
		ps.Message = &msg
	}
	return ps
}
