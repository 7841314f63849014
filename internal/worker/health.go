package worker

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velov-data/velov/internal/api/response"
)

// StatsSource exposes in-process run statistics.
type StatsSource interface {
	StatsSnapshot() map[string]interface{}
}

// NewHealthHandler serves GET /health with the run statistics and GET
// /metrics from gatherer.
func NewHealthHandler(version string, stats StatsSource, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]interface{}{
			"status":  "healthy",
			"version": version,
		}
		if stats != nil {
			body["ingest"] = stats.StatsSnapshot()
		}
		response.JSON(w, req, http.StatusOK, body)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
