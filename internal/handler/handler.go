// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sheetsmith/sheetsmith/internal/apperr"
)

// Version is reported by the root endpoint; overridden at build time.
var Version = "dev"

var (
	errInvalidJSON  = apperr.Validation("INVALID_JSON", "invalid request body")
	errBodyTooLarge = apperr.New(apperr.KindValidation, "PAYLOAD_TOO_LARGE", "request body too large")
	errInvalidLimit = apperr.Validation("INVALID_LIMIT", "limit must be a positive integer")
)

// Handler serves the unauthenticated informational routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Hello identifies the service.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "sheetsmith",
		"version": Version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperr.NotFound("NOT_FOUND", "resource not found"))
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, apperr.Body{Error: apperr.BodyError{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
	}})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as the standard error envelope.
func writeError(w http.ResponseWriter, err error) {
	status, body := apperr.ToBody(err)
	writeJSON(w, status, body)
}

// fail logs err when it is a server-side failure and writes it. Client
// errors are already visible in the access log by status code.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindUpstream:
		logger.ErrorContext(r.Context(), msg, "error", err, "path", r.URL.Path)
	}
	writeError(w, err)
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errBodyTooLarge
		case errors.Is(err, io.EOF) && allowEmpty:
			return nil
		}
		return errInvalidJSON
	}
	if dec.More() {
		return errInvalidJSON
	}
	return nil
}

// queryLimit parses the optional "limit" query parameter. Zero means the
// service default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errInvalidLimit
	}
	return n, nil
}
