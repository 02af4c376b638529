package api

import (
	"errors"
	"net/http"
	"time"
)

// Recordings lists finished public broadcasts with recordings, sweeping the
// bucket first so recently finished streams show up. A failed sweep degrades
// to whatever is already associated instead of failing the request.
func (h *Handler) Recordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	if matched, err := h.Reconciler.ReconcileAll(r.Context()); err != nil {
		h.Logger.Warn("recording sweep incomplete", "matched", matched, "error", err)
	}

	streams, total := h.Store.ListRecordedStreams(parseListOptions(r))
	writeJSON(w, http.StatusOK, streamListResponse{
		Streams:     h.toStreamResponses(streams),
		Total:       total,
		GeneratedAt: formatTime(time.Now()),
	})
}
