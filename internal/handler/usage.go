package handler

import (
	"log/slog"
	"net/http"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/handler/dto"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

// UsageHandler meters operations reported by the add-on. Routes run behind
// API-key Auth.
type UsageHandler struct {
	entitlements *service.EntitlementService
	logger       *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(entitlements *service.EntitlementService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		entitlements: entitlements,
		logger:       logger.With("component", "handler.usage"),
	}
}

// Record handles POST /api/v1/usage. A rejected increment answers 429 with
// the counter unchanged.
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.UsageRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	count := int64(1)
	if req.Count != nil {
		count = *req.Count
	}

	u, err := h.entitlements.RecordUsage(r.Context(), auth.UserIDFrom(r.Context()), count)
	if err != nil {
		fail(w, r, h.logger, "record usage failed", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Get handles GET /api/v1/usage.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.entitlements.GetUsage(r.Context(), auth.UserIDFrom(r.Context()))
	if err != nil {
		fail(w, r, h.logger, "load usage failed", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
