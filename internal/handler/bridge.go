package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sheetsmith/sheetsmith/internal/auth"
	"github.com/sheetsmith/sheetsmith/internal/middleware"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

// BridgeHandler passes add-on library calls through unchanged.
type BridgeHandler struct {
	bridge *service.BridgeService
	logger *slog.Logger
}

// NewBridgeHandler creates a new BridgeHandler.
func NewBridgeHandler(bridge *service.BridgeService, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{
		bridge: bridge,
		logger: logger.With("component", "handler.bridge"),
	}
}

// Call handles POST /api/v1/bridge/{function}. The body is forwarded as the
// function's arguments and the library's JSON result is returned verbatim.
func (h *BridgeHandler) Call(w http.ResponseWriter, r *http.Request) {
	args, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, errBodyTooLarge)
			return
		}
		writeError(w, errInvalidJSON)
		return
	}

	result, err := h.bridge.Call(r.Context(),
		auth.UserIDFrom(r.Context()),
		middleware.GetRequestID(r.Context()),
		chi.URLParam(r, "function"),
		json.RawMessage(args),
	)
	if err != nil {
		fail(w, r, h.logger, "bridge call failed", err)
		return
	}

	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}
