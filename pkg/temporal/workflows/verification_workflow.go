package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/dashboard-verify/pkg/models"
)

const (
	// TaskQueue is the queue the verification worker polls
	TaskQueue = "dashboard-verification"
	// WorkflowID is shared by every verification so that only one runs at a time
	WorkflowID = "dashboard-verification"
	// ProgressQuery returns the current Progress of a run
	ProgressQuery = "getProgress"

	// HeartbeatTimeout is how long the verify activity may go silent before
	// it is considered lost. Cancellation reaches it through heartbeats.
	HeartbeatTimeout = 10 * time.Second

	defaultTimeoutSeconds = 120
)

// VerificationInput is the input of DashboardVerificationWorkflow
type VerificationInput struct {
	RunID string `json:"run_id"`
	// TargetURL overrides the configured dashboard URL when set
	TargetURL string `json:"target_url,omitempty"`
	Timeout   int    `json:"timeout_seconds"`
}

// Progress is the answer to ProgressQuery
type Progress struct {
	RunID  string                     `json:"run_id"`
	Status models.RunStatus           `json:"status"`
	Result *models.VerificationResult `json:"result,omitempty"`
}

// DashboardVerificationWorkflow runs one dashboard verification and records
// its result. A failing activity becomes a failed result; the workflow itself
// only errors when it is canceled.
func DashboardVerificationWorkflow(ctx workflow.Context, input VerificationInput) (models.VerificationResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting dashboard verification workflow", "runID", input.RunID, "targetURL", input.TargetURL)

	progress := Progress{RunID: input.RunID, Status: models.StatusRunning}
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (Progress, error) {
		return progress, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}

	// One attempt only: a verification is evidence of the state at one moment
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(timeout) * time.Second,
		HeartbeatTimeout:    HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	startTime := workflow.Now(ctx)

	var result models.VerificationResult
	err = workflow.ExecuteActivity(ctx, "VerifyDashboardActivity", input).Get(ctx, &result)
	if err != nil {
		if temporal.IsCanceledError(err) {
			progress.Status = models.StatusCanceled
			return result, err
		}
		logger.Error("Verification activity failed", "error", err)
		result = models.VerificationResult{
			RunID:      input.RunID,
			TargetURL:  input.TargetURL,
			Navigation: models.Attempt{Status: models.AttemptFailed, Error: err.Error(), StartedAt: startTime},
			Login:      models.SkippedAttempt(),
			Capture:    models.SkippedAttempt(),
			StartedAt:  startTime,
		}
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = workflow.Now(ctx)
	}

	progress.Status = models.StatusForResult(result)
	progress.Result = &result

	err = workflow.ExecuteActivity(ctx, "RecordResultActivity", result).Get(ctx, nil)
	if err != nil {
		logger.Warn("Failed to record verification result", "error", err)
	}

	logger.Info("Workflow completed", "status", progress.Status, "verified", result.Verified,
		"duration", workflow.Now(ctx).Sub(startTime).Milliseconds())
	return result, nil
}
