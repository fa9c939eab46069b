// Package app wires configuration, storage, services, and routes into one
// http.Handler.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"streamselect/internal/auth"
	"streamselect/internal/config"
	"streamselect/internal/db"
	"streamselect/internal/maintenance"
	"streamselect/internal/metadata"
	"streamselect/internal/movie"
	"streamselect/internal/observability"
)

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Runtime, error) {
	// Error reporting is best-effort; the server still runs without it.
	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Warn("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.RunMigrations(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	tokenCfg := auth.TokenConfig{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, authRepo, authRepo, tokenCfg)
	authService.WithLockoutPolicy(cfg.Login.MaxAttempts, cfg.Login.LockDuration)

	if cfg.GoogleEnabled() {
		verifier, err := auth.NewGoogleVerifier(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init google verifier: %w", err)
		}
		authService.WithVerifier(verifier)
	}

	if err := authService.BootstrapAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	var source movie.MetadataSource
	if cfg.RadarrEnabled() {
		radarr, err := metadata.NewRadarr(cfg.Radarr.BaseURL, cfg.Radarr.APIKey)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init radarr client: %w", err)
		}
		source = radarr
	}

	authHandler := auth.NewHandler(authService)
	movieRepo := movie.NewRepository(database)
	movieHandler := movie.NewHandler(movieRepo, source)
	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		cfg.Cleanup.CronSecret,
		cfg.Cleanup.RefreshRetention,
		cfg.Cleanup.LoginAttemptRetention,
		cfg.Cleanup.BatchSize,
	)

	loginLimiter := auth.NewLoginRateLimiter(cfg.Login.RateLimitMax, cfg.Login.RateLimitWindow)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh-token", authHandler.Refresh)
	mux.Handle("GET /auth/logout", auth.Middleware(tokenCfg, http.HandlerFunc(authHandler.Logout)))
	if cfg.GoogleEnabled() {
		mux.HandleFunc("POST /auth/external-login", authHandler.ExternalLogin)
	}

	mux.HandleFunc("GET /movies", movieHandler.List)
	mux.HandleFunc("GET /movies/{id}", movieHandler.Get)
	mux.Handle("POST /movies", auth.Middleware(tokenCfg, http.HandlerFunc(movieHandler.Create)))
	mux.Handle("PUT /movies/{id}", auth.Middleware(tokenCfg, http.HandlerFunc(movieHandler.Update)))
	mux.Handle("DELETE /movies/{id}", auth.Middleware(tokenCfg, http.HandlerFunc(movieHandler.Delete)))
	if cfg.RadarrEnabled() {
		mux.Handle("POST /movies/{id}/enrich", auth.Middleware(tokenCfg, http.HandlerFunc(movieHandler.Enrich)))
	}

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
