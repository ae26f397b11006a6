package memory

import (
	"log/slog"
	"net/http"

	"github.com/finbrain/finbrain/internal/api"
	"github.com/finbrain/finbrain/internal/auth"
)

// Handler exposes the caller's session memory over HTTP.
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Get returns the short-term turns and rendered context of the session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionIDFromContext(r.Context())
	if sessionID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	m, err := h.registry.Get(sessionID)
	if err != nil {
		slog.Error("opening session memory", "session_id", sessionID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	snap, err := m.Snapshot(r.Context())
	if err != nil {
		slog.Error("reading session memory", "session_id", sessionID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, snap)
}

// Delete forgets everything stored for the session.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionIDFromContext(r.Context())
	if sessionID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.registry.Forget(r.Context(), sessionID); err != nil {
		slog.Error("clearing session memory", "session_id", sessionID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "memory cleared")
}
