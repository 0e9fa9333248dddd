package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/handler/dto"
	"github.com/sheetsmith/sheetsmith/internal/model"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

var errMissingAdminFlag = apperr.Validation("MISSING_FIELD", "is_admin is required")

// AdminHandler provides the admin console endpoints. Every route runs behind
// Session and RequireAdmin.
type AdminHandler struct {
	accounts     *service.AccountService
	entitlements *service.EntitlementService
	logger       *slog.Logger
	now          func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService, entitlements *service.EntitlementService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		accounts:     accounts,
		entitlements: entitlements,
		logger:       logger.With("component", "handler.admin"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ListUsers handles GET /api/v1/admin/users?tier=&beta_status=&email=&cursor=&limit=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter := model.ProfileFilter{
		Tier:       entitlement.Tier(q.Get("tier")),
		BetaStatus: entitlement.BetaStatus(q.Get("beta_status")),
		Email:      q.Get("email"),
	}

	page, err := h.accounts.ListUsers(r.Context(), filter, q.Get("cursor"), limit)
	if err != nil {
		fail(w, r, h.logger, "list users failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UserListResponse{
		Data: dto.ToProfileResponses(page.Users, h.now()),
		Pagination: &dto.Pagination{
			NextCursor: page.NextCursor,
			HasMore:    page.NextCursor != "",
		},
	})
}

// GetUser handles GET /api/v1/admin/users/{id}.
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "get user failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToProfileResponse(p, h.now()))
}

// SetTier handles PUT /api/v1/admin/users/{id}/tier.
func (h *AdminHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	var req dto.SetTierRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		writeError(w, err)
		return
	}

	h.respond(w, r, "set tier failed")(h.entitlements.SetTier(r.Context(), chi.URLParam(r, "id"), tier))
}

// SetAdmin handles PUT /api/v1/admin/users/{id}/admin.
func (h *AdminHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	var req dto.SetAdminRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	if req.IsAdmin == nil {
		writeError(w, errMissingAdminFlag)
		return
	}

	h.respond(w, r, "set admin failed")(h.accounts.SetAdmin(r.Context(), auth.UserIDFrom(r.Context()), chi.URLParam(r, "id"), *req.IsAdmin))
}

// ApproveBeta handles POST /api/v1/admin/users/{id}/beta/approve.
func (h *AdminHandler) ApproveBeta(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "approve beta failed")(h.entitlements.ApproveBeta(r.Context(), chi.URLParam(r, "id")))
}

// RevokeBeta handles POST /api/v1/admin/users/{id}/beta/revoke.
func (h *AdminHandler) RevokeBeta(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "revoke beta failed")(h.entitlements.RevokeBeta(r.Context(), chi.URLParam(r, "id")))
}

// ResetUsage handles POST /api/v1/admin/users/{id}/usage/reset.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "reset usage failed")(h.entitlements.ResetUsage(r.Context(), chi.URLParam(r, "id")))
}

// DeleteUser handles DELETE /api/v1/admin/users/{id}. Admins cannot delete
// themselves here.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.DeleteAccount(r.Context(), auth.UserIDFrom(r.Context()), chi.URLParam(r, "id"), true)
	if err != nil {
		fail(w, r, h.logger, "delete user failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListBetaRequests handles GET /api/v1/admin/beta-requests.
func (h *AdminHandler) ListBetaRequests(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	users, err := h.accounts.ListBetaRequests(r.Context(), limit)
	if err != nil {
		fail(w, r, h.logger, "list beta requests failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BetaRequestListResponse{
		Data:  dto.ToProfileResponses(users, h.now()),
		Total: len(users),
	})
}

// Stats handles GET /api/v1/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.accounts.Stats(r.Context())
	if err != nil {
		fail(w, r, h.logger, "load stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// respond writes the profile returned by a mutation, or its error.
func (h *AdminHandler) respond(w http.ResponseWriter, r *http.Request, msg string) func(*model.Profile, error) {
	return func(p *model.Profile, err error) {
		if err != nil {
			fail(w, r, h.logger, msg, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.ToProfileResponse(p, h.now()))
	}
}
