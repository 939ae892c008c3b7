package api

import (
	"context"
	"errors"
	"net/http"

	"dtp-ingest/core/dtp"
	"dtp-ingest/core/store"
	"dtp-ingest/core/utils"
)

type Handler struct {
	buffer store.BufferStore
	driver *dtp.Driver
	logger *utils.Logger
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  h.driver.Running(),
		"last_run": h.driver.LastSummary(),
	})
}

func (h *Handler) BufferStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.buffer.Stats(r.Context())
	if err != nil {
		h.logger.Errorf("buffer stats: %v", err)
		writeError(w, http.StatusInternalServerError, "buffer.internal", "server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListErrored(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	items, err := h.buffer.ListErrored(r.Context(), limit, offset)
	if err != nil {
		h.logger.Errorf("list errored: %v", err)
		writeError(w, http.StatusInternalServerError, "buffer.internal", "server error")
		return
	}
	if items == nil {
		items = []store.RawDocument{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ResetErrored(w http.ResponseWriter, r *http.Request) {
	n, err := h.buffer.ResetErrored(r.Context())
	if err != nil {
		h.logger.Errorf("reset errored: %v", err)
		writeError(w, http.StatusInternalServerError, "buffer.internal", "server error")
		return
	}
	h.logger.Printf("reset %d errored buffer rows to pending", n)
	writeJSON(w, http.StatusOK, map[string]any{"reset": n})
}

// RunNow starts an ingestion run in the background; the run outcome is
// visible through /api/status and the metrics endpoint.
func (h *Handler) RunNow(w http.ResponseWriter, r *http.Request) {
	if h.driver.Running() {
		writeError(w, http.StatusConflict, "ingest.run_in_progress", "a run is already in progress")
		return
	}
	go func() {
		if _, err := h.driver.Run(context.Background()); err != nil && !errors.Is(err, dtp.ErrRunInProgress) {
			h.logger.Errorf("triggered ingestion run failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}
