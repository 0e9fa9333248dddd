package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

// APIKeyHandler handles the add-on API keys of the signed-in user.
type APIKeyHandler struct {
	keys   *service.APIKeyService
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keys *service.APIKeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		keys:   keys,
		logger: logger.With("component", "handler.apikey"),
	}
}

// Create handles POST /api/v1/me/api-keys. The plaintext key is in this
// response only.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.APIKeyCreateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.keys.Create(r.Context(), auth.UserIDFrom(r.Context()), req)
	if err != nil {
		fail(w, r, h.logger, "create API key failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/me/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), auth.UserIDFrom(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "list API keys failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Revoke handles DELETE /api/v1/me/api-keys/{key_id}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.Revoke(r.Context(), auth.UserIDFrom(r.Context()), chi.URLParam(r, "key_id")); err != nil {
		fail(w, r, h.logger, "revoke API key failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /api/v1/me/api-keys/{key_id}/rotate.
func (h *APIKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	resp, err := h.keys.Rotate(r.Context(), auth.UserIDFrom(r.Context()), chi.URLParam(r, "key_id"))
	if err != nil {
		fail(w, r, h.logger, "rotate API key failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
