package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/handler/dto"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

// MeHandler serves the signed-in user's own profile, usage and beta request.
// Every route runs behind the Session middleware.
type MeHandler struct {
	accounts     *service.AccountService
	entitlements *service.EntitlementService
	logger       *slog.Logger
	now          func() time.Time
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(accounts *service.AccountService, entitlements *service.EntitlementService, logger *slog.Logger) *MeHandler {
	return &MeHandler{
		accounts:     accounts,
		entitlements: entitlements,
		logger:       logger.With("component", "handler.me"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Get handles GET /api/v1/me.
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.Me(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "load profile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToProfileResponse(p, h.now()))
}

// Update handles PATCH /api/v1/me.
func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateProfileRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	sess := auth.SessionFrom(r.Context())
	if _, err := h.accounts.Me(r.Context(), sess); err != nil {
		fail(w, r, h.logger, "load profile failed", err)
		return
	}
	p, err := h.accounts.UpdateProfile(r.Context(), sess.UserID, req.ToModel())
	if err != nil {
		fail(w, r, h.logger, "update profile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToProfileResponse(p, h.now()))
}

// Delete handles DELETE /api/v1/me. The profile goes first; a failed
// identity deletion still answers 200 with identity_deleted=false.
func (h *MeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFrom(r.Context())
	res, err := h.accounts.DeleteAccount(r.Context(), userID, userID, false)
	if err != nil {
		fail(w, r, h.logger, "account deletion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Usage handles GET /api/v1/me/usage.
func (h *MeHandler) Usage(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.Me(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "load usage failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p.Usage(h.now()))
}

// RequestBeta handles POST /api/v1/me/beta-request. Repeating the request
// only refreshes its timestamp.
func (h *MeHandler) RequestBeta(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFrom(r.Context())
	if _, err := h.accounts.Me(r.Context(), sess); err != nil {
		fail(w, r, h.logger, "load profile failed", err)
		return
	}
	p, err := h.entitlements.RequestBeta(r.Context(), sess.UserID)
	if err != nil {
		fail(w, r, h.logger, "beta request failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.ToProfileResponse(p, h.now()))
}
