// Package api implements the HTTP handlers. Requests are attributed through
// the X-Creator-Id header and an optional X-Admin-Token; a fronting gateway
// owns authentication and is trusted to set both.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fernando-live/internal/ivs"
	"fernando-live/internal/observability/metrics"
	"fernando-live/internal/recording"
	"fernando-live/internal/storage"
	"fernando-live/internal/viewers"
)

type Handler struct {
	Store      storage.Repository
	Reconciler *recording.Reconciler
	Viewers    viewers.Tracker
	Ingest     ivs.Config
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
	AdminToken string
}

func NewHandler(store storage.Repository, reconciler *recording.Reconciler, tracker viewers.Tracker, ingest ivs.Config) *Handler {
	if tracker == nil {
		tracker = viewers.NewMemoryTracker()
	}
	return &Handler{
		Store:      store,
		Reconciler: reconciler,
		Viewers:    tracker,
		Ingest:     ingest,
		Metrics:    metrics.Default(),
		Logger:     slog.Default(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// creatorID extracts the acting creator from the gateway-supplied header.
func creatorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Creator-Id"))
}

func (h *Handler) isAdmin(r *http.Request) bool {
	if h.AdminToken == "" {
		return false
	}
	token := strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.AdminToken)) == 1
}

// storageErrorStatus maps datastore sentinels onto HTTP statuses.
func storageErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrStreamNotFound),
		errors.Is(err, storage.ErrCreatorNotFound),
		errors.Is(err, storage.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyLive),
		errors.Is(err, storage.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotOwner),
		errors.Is(err, storage.ErrCreatorInactive):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrNotLive),
		errors.Is(err, storage.ErrTitleRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseListOptions(r *http.Request) storage.ListStreamsOptions {
	query := r.URL.Query()
	opts := storage.ListStreamsOptions{
		Query:      strings.TrimSpace(query.Get("q")),
		CategoryID: strings.TrimSpace(query.Get("category")),
		Limit:      50,
	}
	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			opts.Limit = limit
		}
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}
	if raw := query.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset > 0 {
			opts.Offset = offset
		}
	}
	return opts
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	status := "ok"
	code := http.StatusOK
	datastore := "ok"
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			status = "degraded"
			datastore = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":           status,
		"datastore":        datastore,
		"recordingEnabled": h.Reconciler.Enabled(),
		"time":             time.Now().UTC().Format(time.RFC3339),
	})
}
