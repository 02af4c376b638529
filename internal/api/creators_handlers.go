package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fernando-live/internal/models"
	"fernando-live/internal/storage"
)

type createCreatorRequest struct {
	DisplayName string `json:"displayName"`
	ChannelName string `json:"channelName,omitempty"`
}

type setCreatorStatusRequest struct {
	Status string `json:"status"`
}

type creatorResponse struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	ChannelName  string `json:"channelName"`
	Status       string `json:"status"`
	TotalStreams int    `json:"totalStreams"`
	CreatedAt    string `json:"createdAt"`
}

func toCreatorResponse(creator models.Creator) creatorResponse {
	return creatorResponse{
		ID:           creator.ID,
		DisplayName:  creator.DisplayName,
		ChannelName:  creator.ChannelName,
		Status:       string(creator.Status),
		TotalStreams: creator.TotalStreams,
		CreatedAt:    formatTime(creator.CreatedAt),
	}
}

// Creators handles the collection: admins register creators, anyone can list
// them.
func (h *Handler) Creators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		creators := h.Store.ListCreators()
		responses := make([]creatorResponse, 0, len(creators))
		for _, creator := range creators {
			responses = append(responses, toCreatorResponse(creator))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"creators": responses})
	case http.MethodPost:
		if !h.isAdmin(r) {
			writeError(w, http.StatusForbidden, errors.New("admin token required"))
			return
		}
		var req createCreatorRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
			return
		}
		creator, err := h.Store.CreateCreator(storage.CreateCreatorParams{
			DisplayName: req.DisplayName,
			ChannelName: req.ChannelName,
		})
		if err != nil {
			writeError(w, storageErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, toCreatorResponse(creator))
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

// CreatorByID routes /api/creators/{id} and /api/creators/{id}/status.
func (h *Handler) CreatorByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/creators/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, errors.New("creator id required"))
		return
	}
	segments := strings.Split(rest, "/")
	id := segments[0]

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		creator, ok := h.Store.GetCreator(id)
		if !ok {
			writeError(w, http.StatusNotFound, storage.ErrCreatorNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toCreatorResponse(creator))
	case len(segments) == 2 && segments[1] == "status" && r.Method == http.MethodPatch:
		if !h.isAdmin(r) {
			writeError(w, http.StatusForbidden, errors.New("admin token required"))
			return
		}
		var req setCreatorStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
			return
		}
		status := models.CreatorStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
		if status != models.CreatorActive && status != models.CreatorSuspended {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown creator status %q", req.Status))
			return
		}
		creator, err := h.Store.SetCreatorStatus(id, status)
		if err != nil {
			writeError(w, storageErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, toCreatorResponse(creator))
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown creator resource"))
	}
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

type categoryResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"createdAt"`
}

// Categories lists the browse categories and lets admins add new ones.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		categories := h.Store.ListCategories()
		responses := make([]categoryResponse, 0, len(categories))
		for _, category := range categories {
			responses = append(responses, categoryResponse{
				ID:        category.ID,
				Name:      category.Name,
				Slug:      category.Slug,
				CreatedAt: formatTime(category.CreatedAt),
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"categories": responses})
	case http.MethodPost:
		if !h.isAdmin(r) {
			writeError(w, http.StatusForbidden, errors.New("admin token required"))
			return
		}
		var req createCategoryRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
			return
		}
		category, err := h.Store.CreateCategory(req.Name)
		if err != nil {
			writeError(w, storageErrorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, categoryResponse{
			ID:        category.ID,
			Name:      category.Name,
			Slug:      category.Slug,
			CreatedAt: formatTime(category.CreatedAt),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}
