package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vulnhalla.app/triage/common/id"
	"vulnhalla.app/triage/common/llm"
	"vulnhalla.app/triage/common/logger"
	"vulnhalla.app/triage/common/otel"
	"vulnhalla.app/triage/core/config"
	"vulnhalla.app/triage/core/db"
	"vulnhalla.app/triage/internal/recorder"
	"vulnhalla.app/triage/internal/runner"
	"vulnhalla.app/triage/internal/store"
	"vulnhalla.app/triage/internal/triage"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize OTel before the logger so the otelslog bridge has a provider.
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	if telemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(ctx, "telemetry shutdown failed", "error", err)
			}
		}()
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "triage starting",
		"env", cfg.Env,
		"language", cfg.Analysis.Language,
		"databases_root", cfg.Analysis.DatabasesRoot,
		"workers", cfg.Analysis.Workers,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	client, err := llm.NewAgentClient(llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}

	// The Postgres sink is optional; files under the results root are always
	// written.
	var resultStore *store.Store
	if cfg.DB.Enabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to results database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		resultStore = store.New(database)
		slog.InfoContext(ctx, "results database connected")
	}

	engine := triage.NewEngine(client, cfg.Analysis.MaxReminders)
	rec := recorder.New(cfg.Analysis.ResultsRoot, cfg.Analysis.Language)
	run := runner.New(cfg.Analysis, engine, rec, resultStore)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "batch run failed", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "triage finished")
}
