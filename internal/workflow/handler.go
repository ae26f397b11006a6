package workflow

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finbrain/finbrain/internal/api"
	"github.com/finbrain/finbrain/internal/auth"
)

// Handler exposes research runs over HTTP.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

type ResearchRequest struct {
	Query string `json:"query" validate:"required,min=3,max=2000"`
}

// Research runs the caller's query within their session.
func (h *Handler) Research(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionIDFromContext(r.Context())
	if sessionID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	result, err := h.svc.Run(r.Context(), sessionID, req.Query)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			api.HandleError(w, api.ErrTimeout)
			return
		}
		slog.Error("research run", "session_id", sessionID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, result)
}
