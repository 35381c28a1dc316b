package handlers

import (
	"context"
	"net/http"

	"github.com/xavierca1/leadsync/internal/usecase"
)

type WatchdogTicker interface {
	Tick(ctx context.Context) *usecase.WatchdogReport
}

type WatchdogHandler struct {
	Watchdog WatchdogTicker
}

func NewWatchdogHandler(watchdog WatchdogTicker) *WatchdogHandler {
	return &WatchdogHandler{Watchdog: watchdog}
}

// Tick runs one watchdog evaluation. It always answers 200; the verdict is
// in the body.
func (h *WatchdogHandler) Tick(w http.ResponseWriter, r *http.Request) {
	report := h.Watchdog.Tick(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, report)
}
