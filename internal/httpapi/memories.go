package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amou/memorymap/internal/store"
	"github.com/amou/memorymap/pkg/core"
	"github.com/amou/memorymap/pkg/streaming"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Categories)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	memories, err := s.deps.Store.ListVisible(currentUserID(r))
	if err != nil {
		s.log.Error("listing memories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load memories")
		return
	}
	if memories == nil {
		memories = []core.Memory{}
	}
	writeJSON(w, http.StatusOK, memories)
}

type memoryRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       string  `json:"color"`
	IsPublic    bool    `json:"is_public"`
	PhotoURL    string  `json:"photo_url"`
	Category    string  `json:"category"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if _, err := core.NewLatLng(req.Latitude, req.Longitude); err != nil {
		writeError(w, http.StatusBadRequest, "invalid coordinates")
		return
	}
	if !core.ValidCategory(req.Category) {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	if err := core.ValidatePhoto(req.PhotoURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := core.Memory{
		UserID:      currentUserID(r),
		Title:       req.Title,
		Description: req.Description,
		Color:       req.Color,
		IsPublic:    req.IsPublic,
		PhotoURL:    req.PhotoURL,
		Category:    req.Category,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
	if err := s.deps.Store.CreateMemory(&m); err != nil {
		s.log.Error("creating memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save memory")
		return
	}

	s.broadcastChange("created", m.ID, &m)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.deps.Store.GetMemory(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		s.log.Error("loading memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load memory")
		return
	}
	if existing.UserID != currentUserID(r) {
		writeError(w, http.StatusForbidden, "not your memory")
		return
	}

	var update core.MemoryUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if update.Latitude != nil || update.Longitude != nil {
		lat, lng := existing.Latitude, existing.Longitude
		if update.Latitude != nil {
			lat = *update.Latitude
		}
		if update.Longitude != nil {
			lng = *update.Longitude
		}
		if _, err := core.NewLatLng(lat, lng); err != nil {
			writeError(w, http.StatusBadRequest, "invalid coordinates")
			return
		}
	}
	if update.Category != nil && !core.ValidCategory(*update.Category) {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	if update.PhotoURL != nil {
		if err := core.ValidatePhoto(*update.PhotoURL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	updated, err := s.deps.Store.UpdateMemory(id, update)
	if err != nil {
		s.log.Error("updating memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save memory")
		return
	}

	s.broadcastChange("updated", id, &updated)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := s.deps.Store.GetMemory(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		s.log.Error("loading memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load memory")
		return
	}
	if existing.UserID != currentUserID(r) {
		writeError(w, http.StatusForbidden, "not your memory")
		return
	}

	if err := s.deps.Store.DeleteMemory(id); err != nil {
		s.log.Error("deleting memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete memory")
		return
	}

	s.broadcastChange("deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// broadcastChange notifies every live map session about a store mutation so
// their marker sets can re-reconcile.
func (s *Server) broadcastChange(action, id string, m *core.Memory) {
	env, err := streaming.Marshal(streaming.TypeMemoryChanged, streaming.MemoryChangedPayload{
		Action: action,
		ID:     id,
		Memory: m,
	})
	if err != nil {
		s.log.Error("encoding change broadcast failed", "error", err)
		return
	}
	s.hub.broadcast(env)
}
