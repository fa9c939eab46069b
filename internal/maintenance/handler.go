package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"streamselect/internal/auth"
	"streamselect/internal/observability"
)

// AuthCleaner deletes expired and long-revoked auth rows in batches;
// *auth.Repository implements it.
type AuthCleaner interface {
	CleanupStaleAuthData(ctx context.Context, refreshRetention, loginAttemptRetention time.Duration, batchSize int) (auth.CleanupResult, error)
}

// CleanupHandler is a cron-invoked endpoint guarded by a shared bearer
// secret. With no secret configured it pretends not to exist.
type CleanupHandler struct {
	cleaner               AuthCleaner
	logger                *observability.Logger
	cronSecret            string
	refreshRetention      time.Duration
	loginAttemptRetention time.Duration
	batchSize             int
}

func NewCleanupHandler(
	cleaner AuthCleaner,
	logger *observability.Logger,
	cronSecret string,
	refreshRetention time.Duration,
	loginAttemptRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		cleaner:               cleaner,
		logger:                logger,
		cronSecret:            strings.TrimSpace(cronSecret),
		refreshRetention:      refreshRetention,
		loginAttemptRetention: loginAttemptRetention,
		batchSize:             batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"errorMessage": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errorMessage": "unauthorized"})
		return
	}

	result, err := h.cleaner.CleanupStaleAuthData(r.Context(), h.refreshRetention, h.loginAttemptRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"errorMessage": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"deleted_login_attempts": result.DeletedLoginAttempts,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
