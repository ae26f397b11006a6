package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finbrain/finbrain/internal/api"
)

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

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Create starts an anonymous research session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.svc.StartSession(r.Context())
	if err != nil {
		slog.Error("starting session", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	slog.Info("session started", "session_id", tokens.SessionID)
	api.JSON(w, http.StatusCreated, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tokens, err := h.svc.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Warn("refreshing tokens", "error", err)
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

// End revokes the session's refresh tokens. Its memory is kept until
// cleared or expired.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionIDFromContext(r.Context())
	if sessionID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.svc.EndSession(r.Context(), sessionID); err != nil {
		slog.Error("ending session", "session_id", sessionID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "session ended")
}
