package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"streamselect/app"
	"streamselect/internal/config"
	"streamselect/internal/observability"
)

func main() {
	_ = godotenv.Load()

	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load_config_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	runtime, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("build_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer runtime.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           runtime.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server_start", map[string]any{"addr": cfg.Addr, "env": cfg.AppEnv})
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
