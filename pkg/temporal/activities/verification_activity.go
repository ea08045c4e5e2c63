package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/dashboard-verify/pkg/artifact"
	"dev/bravebird/dashboard-verify/pkg/browser"
	"dev/bravebird/dashboard-verify/pkg/config"
	"dev/bravebird/dashboard-verify/pkg/models"
	"dev/bravebird/dashboard-verify/pkg/temporal/workflows"
	"dev/bravebird/dashboard-verify/pkg/verifier"
)

// ResultStore persists finished verifications
type ResultStore interface {
	SaveVerificationResult(ctx context.Context, result models.VerificationResult) error
}

// Activities holds activity implementations
type Activities struct {
	Config    config.Config
	Launcher  browser.Launcher
	Artifacts *artifact.Store
	// Store is optional; results are only logged without it
	Store ResultStore
}

// NewActivities creates new activities
func NewActivities(cfg config.Config, launcher browser.Launcher, artifacts *artifact.Store, store ResultStore) *Activities {
	return &Activities{
		Config:    cfg,
		Launcher:  launcher,
		Artifacts: artifacts,
		Store:     store,
	}
}

// VerifyDashboardActivity runs one verification with a fresh browser session
func (a *Activities) VerifyDashboardActivity(ctx context.Context, input workflows.VerificationInput) (models.VerificationResult, error) {
	logger := activity.GetLogger(ctx)

	cfg := a.Config
	if input.TargetURL != "" {
		cfg.TargetURL = input.TargetURL
		if err := cfg.Validate(); err != nil {
			return models.VerificationResult{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("invalid verification input: %v", err), "InvalidInputError", err)
		}
	}

	logger.Info("Verifying dashboard", "runID", input.RunID, "url", cfg.TargetURL)

	stop := keepAlive(ctx, workflows.HeartbeatTimeout/4, func() {
		activity.RecordHeartbeat(ctx, input.RunID)
	})
	v := verifier.New(cfg, a.Launcher, a.Artifacts, logger)
	result := v.Run(ctx, input.RunID)
	stop()

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		logger.Info("Verification canceled", "runID", input.RunID)
		return result, err
	}

	logger.Info("Verification finished", "runID", input.RunID,
		"status", models.StatusForResult(result), "verified", result.Verified)
	return result, nil
}

// RecordResultActivity stores a finished verification
func (a *Activities) RecordResultActivity(ctx context.Context, result models.VerificationResult) error {
	logger := activity.GetLogger(ctx)

	if a.Store == nil {
		logger.Info("No database configured, result not persisted", "runID", result.RunID)
		return nil
	}

	if err := a.Store.SaveVerificationResult(ctx, result); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	logger.Info("Verification result recorded", "runID", result.RunID)
	return nil
}

// keepAlive calls beat every interval until stop is called or ctx is done.
// stop waits for the beating goroutine to exit.
func keepAlive(ctx context.Context, interval time.Duration, beat func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
