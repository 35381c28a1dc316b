package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/xavierca1/leadsync/internal/entity"
)

type HealthReporter interface {
	Report(ctx context.Context, fresh bool) *entity.HealthReport
}

type HealthHandler struct {
	Health    HealthReporter
	Version   string
	StartTime time.Time
}

type HealthResponse struct {
	*entity.HealthReport
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func NewHealthHandler(health HealthReporter, version string) *HealthHandler {
	return &HealthHandler{
		Health:    health,
		Version:   version,
		StartTime: time.Now(),
	}
}

// Handle serves the cached report; ?fresh=true forces new probes.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	report := h.Health.Report(r.Context(), r.URL.Query().Get("fresh") == "true")

	response := HealthResponse{
		HealthReport: report,
		Version:      h.Version,
		Uptime:       time.Since(h.StartTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if report.Overall == entity.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Live answers 200 while the process is up.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
