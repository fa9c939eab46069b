package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

type externalLoginRequest struct {
	IDToken string `json:"idToken"`
}

// Register handles POST /auth/register. 201 with the first token pair.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeBody(w, r, &body) {
		return
	}

	tokens, err := h.service.Register(r.Context(), body.Email, body.Password, body.ConfirmPassword)
	if err != nil {
		h.writeAuthError(w, err, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, tokens)
}

// Login handles POST /auth/login. 200 with a fresh token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeAuthError(w, err, "failed to login")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Refresh handles POST /auth/refresh-token. The presented refresh token is
// consumed; 200 with its replacement pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeBody(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.Email, body.RefreshToken)
	if err != nil {
		h.writeAuthError(w, err, "failed to refresh token")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// ExternalLogin handles POST /auth/external-login with a provider ID token.
func (h *Handler) ExternalLogin(w http.ResponseWriter, r *http.Request) {
	var body externalLoginRequest
	if !decodeBody(w, r, &body) {
		return
	}

	tokens, err := h.service.ExternalLogin(r.Context(), body.IDToken)
	if err != nil {
		h.writeAuthError(w, err, "failed to sign in with provider")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout handles GET /auth/logout behind the access-token middleware. It
// revokes the caller's refresh tokens and returns 200 even when nothing was
// left to revoke.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error, fallback string) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errorMessage": "validation failed",
			"fields":       verr.Fields,
		})
		return
	}
	if errors.Is(err, ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if errors.Is(err, ErrInvalidRefreshToken) {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if errors.Is(err, ErrExternalDisabled) {
		writeError(w, http.StatusNotFound, "external login is not available")
		return
	}
	var lockedErr ErrLoginLocked
	if errors.As(err, &lockedErr) {
		retryAfter := int(time.Until(lockedErr.Until).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "login temporarily locked")
		return
	}

	sentry.CaptureException(err)
	writeError(w, http.StatusInternalServerError, fallback)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"errorMessage": message})
}
