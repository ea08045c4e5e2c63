package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/dashboard-verify/pkg/artifact"
	"dev/bravebird/dashboard-verify/pkg/browser"
	"dev/bravebird/dashboard-verify/pkg/config"
	"dev/bravebird/dashboard-verify/pkg/models"
	"dev/bravebird/dashboard-verify/pkg/verifier"
)

// shutdownMargin covers browser launch and teardown on top of the phase budgets
const shutdownMargin = 15 * time.Second

// verify loads the efficiency dashboard once, signs in if the app redirects to
// a login page, and saves a screenshot. It always exits 0; the outcome is in
// the log.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunBudget()+shutdownMargin)
	defer cancel()

	v := verifier.New(cfg, browser.NewRodLauncher(cfg.LauncherOptions()), artifact.NewOsStore(), logger)
	result := v.Run(ctx, uuid.New().String())

	attrs := []any{
		"status", models.StatusForResult(result),
		"verified", result.Verified,
		"url", result.FinalURL,
		"duration", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond),
	}
	if msg := result.ErrorMessage(); msg != "" {
		attrs = append(attrs, "error", msg)
	}
	if result.ArtifactPath != "" {
		attrs = append(attrs, "screenshot", result.ArtifactPath)
	}
	logger.Info("Verification finished", attrs...)
}
