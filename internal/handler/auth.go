package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sheetsmith/sheetsmith/internal/handler/dto"
	"github.com/sheetsmith/sheetsmith/internal/service"
)

// AuthHandler serves sign-up, sign-in and email verification.
type AuthHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(accounts *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger.With("component", "handler.auth"),
	}
}

// SignUp handles POST /api/v1/auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.accounts.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, h.logger, "sign-up failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.SignUpResponse{
		UserID:               u.ID,
		Email:                u.Email,
		ConfirmationRequired: !u.EmailVerified(),
	})
}

// SignIn handles POST /api/v1/auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, h.logger, "sign-in failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSessionResponse(res.Session, res.Profile, time.Now().UTC()))
}

// Verify handles POST /api/v1/auth/verify. A successful verification creates
// the profile.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	kind := req.Type
	if kind == "" {
		kind = "signup"
	}

	res, err := h.accounts.Verify(r.Context(), req.TokenHash, kind)
	if err != nil {
		fail(w, r, h.logger, "email verification failed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSessionResponse(res.Session, res.Profile, time.Now().UTC()))
}
