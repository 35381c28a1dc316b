package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/usecase"
)

type SyncQueue interface {
	PublishSyncRequest(ctx context.Context, trigger string) (string, error)
}

type SyncHandler struct {
	Sync     usecase.SyncRunner
	Queue    SyncQueue
	Metadata entity.SyncMetadataStore
	Logger   logrus.FieldLogger
}

func NewSyncHandler(sync usecase.SyncRunner, queue SyncQueue, metadata entity.SyncMetadataStore, logger logrus.FieldLogger) *SyncHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SyncHandler{Sync: sync, Queue: queue, Metadata: metadata, Logger: logger}
}

type SyncAcceptedResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
}

// Trigger runs a sync now, or enqueues it with ?async=true.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" {
		if h.Queue == nil {
			writeMessage(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "async sync needs a message broker")
			return
		}
		id, err := h.Queue.PublishSyncRequest(r.Context(), "api:async")
		if err != nil {
			h.Logger.WithError(err).Error("❌ could not enqueue sync request")
			writeMessage(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "could not enqueue sync request")
			return
		}
		writeJSON(w, http.StatusAccepted, SyncAcceptedResponse{Success: true, RequestID: id})
		return
	}

	// the run outlives a dropped client connection
	run, err := h.Sync.Execute(context.WithoutCancel(r.Context()), "api")
	if err != nil {
		h.Logger.WithError(err).Error("❌ sync run not recorded")
		if run == nil {
			writeMessage(w, http.StatusInternalServerError, usecase.CodeStoreFailure, err.Error())
			return
		}
		writeJSON(w, http.StatusInternalServerError, run)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Metadata.RecentRuns(r.Context(), queryLimit(r, 20, 100))
	if err != nil {
		h.Logger.WithError(err).Error("❌ could not list sync runs")
		writeMessage(w, http.StatusServiceUnavailable, usecase.CodeStoreFailure, "could not list sync runs")
		return
	}
	if runs == nil {
		runs = []*entity.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *SyncHandler) Latest(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Metadata.Latest(r.Context())
	if errors.Is(err, entity.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "NO_SYNC_YET", "no sync has completed yet")
		return
	}
	if err != nil {
		h.Logger.WithError(err).Error("❌ could not read sync metadata")
		writeMessage(w, http.StatusServiceUnavailable, usecase.CodeStoreFailure, "could not read sync metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}
