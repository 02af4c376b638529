package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fernando-live/internal/models"
	"fernando-live/internal/storage"
)

type goLiveRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CategoryID  string     `json:"categoryId,omitempty"`
	IsPublic    *bool      `json:"isPublic,omitempty"`
	IsMature    *bool      `json:"isMature,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type updateStreamRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	CategoryID  *string    `json:"categoryId,omitempty"`
	IsPublic    *bool      `json:"isPublic,omitempty"`
	IsMature    *bool      `json:"isMature,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type streamResponse struct {
	ID              string  `json:"id"`
	CreatorID       string  `json:"creatorId"`
	ChannelName     string  `json:"channelName,omitempty"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	CategoryID      string  `json:"categoryId,omitempty"`
	Status          string  `json:"status"`
	IsPublic        bool    `json:"isPublic"`
	IsMature        bool    `json:"isMature"`
	Recorded        bool    `json:"recorded"`
	PlaybackURL     string  `json:"playbackUrl,omitempty"`
	DurationSeconds int     `json:"durationSeconds"`
	StartedAt       string  `json:"startedAt"`
	EndedAt         *string `json:"endedAt,omitempty"`
	ScheduledAt     *string `json:"scheduledAt,omitempty"`
	CurrentViewers  int     `json:"currentViewers"`
	PeakViewers     int     `json:"peakViewers"`
	TotalViews      int     `json:"totalViews"`
}

type goLiveResponse struct {
	Stream         streamResponse `json:"stream"`
	StreamKey      string         `json:"streamKey"`
	IngestEndpoint string         `json:"ingestEndpoint,omitempty"`
}

type streamListResponse struct {
	Streams     []streamResponse `json:"streams"`
	Total       int              `json:"total"`
	GeneratedAt string           `json:"generatedAt"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := formatTime(*t)
	return &formatted
}

func (h *Handler) toStreamResponse(stream models.Stream) streamResponse {
	resp := streamResponse{
		ID:              stream.ID,
		CreatorID:       stream.CreatorID,
		Title:           stream.Title,
		Description:     stream.Description,
		CategoryID:      stream.CategoryID,
		Status:          string(stream.Status),
		IsPublic:        stream.IsPublic,
		IsMature:        stream.IsMature,
		Recorded:        stream.Recorded(),
		DurationSeconds: stream.DurationSeconds,
		StartedAt:       formatTime(stream.StartedAt),
		EndedAt:         formatTimePtr(stream.EndedAt),
		ScheduledAt:     formatTimePtr(stream.ScheduledAt),
		CurrentViewers:  stream.CurrentViewers,
		PeakViewers:     stream.PeakViewers,
		TotalViews:      stream.TotalViews,
	}
	if stream.Recorded() {
		resp.PlaybackURL = stream.PlaybackURL
	} else if stream.Status == models.StreamLive {
		resp.PlaybackURL = h.Ingest.PlaybackURL
	}
	if creator, ok := h.Store.GetCreator(stream.CreatorID); ok {
		resp.ChannelName = creator.ChannelName
	}
	return resp
}

func (h *Handler) toStreamResponses(streams []models.Stream) []streamResponse {
	responses := make([]streamResponse, 0, len(streams))
	for _, stream := range streams {
		responses = append(responses, h.toStreamResponse(stream))
	}
	return responses
}

// GoLive starts a broadcast for the requesting creator.
func (h *Handler) GoLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	requester := creatorID(r)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, errors.New("creator identity required"))
		return
	}

	var req goLiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	params := storage.StartStreamParams{
		CreatorID:   requester,
		Title:       req.Title,
		Description: req.Description,
		CategoryID:  strings.TrimSpace(req.CategoryID),
		IsPublic:    true,
		ScheduledAt: req.ScheduledAt,
	}
	if req.IsPublic != nil {
		params.IsPublic = *req.IsPublic
	}
	if req.IsMature != nil {
		params.IsMature = *req.IsMature
	}

	stream, err := h.Store.StartStream(params)
	if err != nil {
		writeError(w, storageErrorStatus(err), err)
		return
	}
	h.Metrics.StreamStarted()

	writeJSON(w, http.StatusCreated, goLiveResponse{
		Stream:         h.toStreamResponse(stream),
		StreamKey:      stream.StreamKey,
		IngestEndpoint: h.Ingest.IngestEndpoint,
	})
}

// LiveDirectory lists public live broadcasts.
func (h *Handler) LiveDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	streams, total := h.Store.ListLiveStreams(parseListOptions(r))
	writeJSON(w, http.StatusOK, streamListResponse{
		Streams:     h.toStreamResponses(streams),
		Total:       total,
		GeneratedAt: formatTime(time.Now()),
	})
}

// MyStreams lists every stream owned by the requesting creator, including
// private and unrecorded ones.
func (h *Handler) MyStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	requester := creatorID(r)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, errors.New("creator identity required"))
		return
	}
	streams := h.Store.ListCreatorStreams(requester)
	writeJSON(w, http.StatusOK, streamListResponse{
		Streams:     h.toStreamResponses(streams),
		Total:       len(streams),
		GeneratedAt: formatTime(time.Now()),
	})
}

// IngestConfig tells a creator where to point their encoder. The stream key
// is only included while the creator has a live broadcast.
func (h *Handler) IngestConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	requester := creatorID(r)
	if requester == "" {
		writeError(w, http.StatusUnauthorized, errors.New("creator identity required"))
		return
	}

	payload := map[string]interface{}{
		"ingestEndpoint":   h.Ingest.IngestEndpoint,
		"playbackUrl":      h.Ingest.PlaybackURL,
		"recordingEnabled": h.Reconciler.Enabled(),
	}
	for _, stream := range h.Store.ListCreatorStreams(requester) {
		if stream.Status == models.StreamLive {
			payload["streamKey"] = stream.StreamKey
			payload["streamId"] = stream.ID
			break
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// StreamByID routes /api/streams/{id} and its sub-resources.
func (h *Handler) StreamByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/streams/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, errors.New("stream id required"))
		return
	}
	segments := strings.Split(rest, "/")
	id := segments[0]
	remaining := segments[1:]

	switch {
	case len(remaining) == 0:
		switch r.Method {
		case http.MethodGet:
			h.getStream(w, r, id)
		case http.MethodPatch:
			h.updateStream(w, r, id)
		case http.MethodDelete:
			h.deleteStream(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		}
	case len(remaining) == 1 && (remaining[0] == "stop" || remaining[0] == "stop-live"):
		h.stopStream(w, r, id)
	case len(remaining) == 1 && (remaining[0] == "watch" || remaining[0] == "playback"):
		h.watchStream(w, r, id)
	case len(remaining) == 1 && remaining[0] == "recording":
		h.streamRecording(w, r, id)
	case len(remaining) == 1 && remaining[0] == "viewers":
		h.streamViewers(w, r, id)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown stream resource"))
	}
}

// getStream returns a stream, opportunistically backfilling a finished
// broadcast's recording so a viewer landing on a fresh VOD page sees it
// without waiting for the next sweep.
func (h *Handler) getStream(w http.ResponseWriter, r *http.Request, id string) {
	stream, ok := h.Store.GetStream(id)
	if !ok {
		writeError(w, http.StatusNotFound, storage.ErrStreamNotFound)
		return
	}
	if stream.Status == models.StreamOffline && stream.RecordingPath == "" {
		stream, _ = h.Reconciler.Backfill(r.Context(), stream)
	}
	if stream.Status == models.StreamLive {
		if count, err := h.Viewers.Count(r.Context(), stream.ID); err == nil {
			stream.CurrentViewers = int(count)
		}
	}
	writeJSON(w, http.StatusOK, h.toStreamResponse(stream))
}

func (h *Handler) updateStream(w http.ResponseWriter, r *http.Request, id string) {
	requester := creatorID(r)
	admin := h.isAdmin(r)
	if requester == "" && !admin {
		writeError(w, http.StatusUnauthorized, errors.New("creator identity required"))
		return
	}

	var req updateStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	stream, err := h.Store.UpdateStream(id, requester, admin, storage.StreamUpdate{
		Title:       req.Title,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		IsPublic:    req.IsPublic,
		IsMature:    req.IsMature,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		writeError(w, storageErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h.toStreamResponse(stream))
}

func (h *Handler) deleteStream(w http.ResponseWriter, r *http.Request, id string) {
	if !h.isAdmin(r) {
		writeError(w, http.StatusForbidden, errors.New("admin token required"))
		return
	}
	if err := h.Store.SoftDeleteStream(id); err != nil {
		writeError(w, storageErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// stopStream ends a live broadcast, then makes a best-effort attempt to
// associate the recording right away. The recording usually needs a few
// minutes to appear, so a miss here is routine.
func (h *Handler) stopStream(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	requester := creatorID(r)
	admin := h.isAdmin(r)
	if requester == "" && !admin {
		writeError(w, http.StatusUnauthorized, errors.New("creator identity required"))
		return
	}

	stream, err := h.Store.StopStream(storage.StopStreamParams{
		StreamID:    id,
		RequesterID: requester,
		AsAdmin:     admin,
	})
	if err != nil {
		writeError(w, storageErrorStatus(err), err)
		return
	}
	h.Metrics.StreamStopped()
	if err := h.Viewers.Reset(r.Context(), stream.ID); err != nil {
		h.Logger.Warn("viewer reset failed", "stream_id", stream.ID, "error", err)
	}

	stream, _ = h.Reconciler.Backfill(r.Context(), stream)
	writeJSON(w, http.StatusOK, h.toStreamResponse(stream))
}

// watchStream resolves what a viewer should play right now.
func (h *Handler) watchStream(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	stream, ok := h.Store.GetStream(id)
	if !ok {
		writeError(w, http.StatusNotFound, storage.ErrStreamNotFound)
		return
	}

	switch {
	case stream.Status == models.StreamLive:
		writeJSON(w, http.StatusOK, map[string]string{
			"type": "live",
			"url":  h.Ingest.PlaybackURL,
		})
	default:
		if stream.RecordingPath == "" {
			stream, _ = h.Reconciler.Backfill(r.Context(), stream)
		}
		if !stream.Recorded() {
			writeError(w, http.StatusNotFound, errors.New("stream has no playable source"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"type": "recording",
			"url":  stream.PlaybackURL,
		})
	}
}

// streamRecording returns recording details for a finished broadcast.
func (h *Handler) streamRecording(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	stream, ok := h.Store.GetStream(id)
	if !ok {
		writeError(w, http.StatusNotFound, storage.ErrStreamNotFound)
		return
	}
	if stream.Status == models.StreamOffline && stream.RecordingPath == "" {
		stream, _ = h.Reconciler.Backfill(r.Context(), stream)
	}
	if !stream.Recorded() {
		writeError(w, http.StatusNotFound, errors.New("recording not available"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streamId":        stream.ID,
		"recordingPath":   stream.RecordingPath,
		"playbackUrl":     stream.PlaybackURL,
		"durationSeconds": stream.DurationSeconds,
		"endedAt":         formatTimePtr(stream.EndedAt),
	})
}

// streamViewers handles audience presence: POST joins, DELETE leaves.
func (h *Handler) streamViewers(w http.ResponseWriter, r *http.Request, id string) {
	var delta int
	switch r.Method {
	case http.MethodPost:
		delta = 1
	case http.MethodDelete:
		delta = -1
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	stream, err := h.Store.AdjustViewers(id, delta)
	if err != nil {
		writeError(w, storageErrorStatus(err), err)
		return
	}

	var live int64
	if delta > 0 {
		live, err = h.Viewers.Join(r.Context(), id)
	} else {
		live, err = h.Viewers.Leave(r.Context(), id)
	}
	if err != nil {
		h.Logger.Warn("viewer tracker unavailable", "stream_id", id, "error", err)
		live = int64(stream.CurrentViewers)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"streamId":       id,
		"currentViewers": live,
		"peakViewers":    stream.PeakViewers,
		"totalViews":     stream.TotalViews,
	})
}
