package models

import (
	"time"
)

// ==================== Attempt Types ====================

// AttemptStatus is the outcome of one phase of a verification run
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSkipped   AttemptStatus = "skipped"
)

// Attempt records what happened when a phase (navigate, login, capture) ran
type Attempt struct {
	Status    AttemptStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  int64         `json:"duration_ms"`
}

// Succeeded reports whether the phase completed without error
func (a Attempt) Succeeded() bool {
	return a.Status == AttemptSucceeded
}

// Failed reports whether the phase ran and failed
func (a Attempt) Failed() bool {
	return a.Status == AttemptFailed
}

// SkippedAttempt returns an attempt that never ran
func SkippedAttempt() Attempt {
	return Attempt{Status: AttemptSkipped}
}

// ==================== Verification Result ====================

// VerificationResult is the full outcome of one verification run
type VerificationResult struct {
	RunID         string    `json:"run_id"`
	TargetURL     string    `json:"target_url"`
	FinalURL      string    `json:"final_url,omitempty"`
	PageTitle     string    `json:"page_title,omitempty"`
	LoginRequired bool      `json:"login_required"`
	Navigation    Attempt   `json:"navigation"`
	Login         Attempt   `json:"login"`
	Capture       Attempt   `json:"capture"`
	ArtifactPath  string    `json:"artifact_path,omitempty"`
	Verified      bool      `json:"verified"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// ErrorMessage returns the first phase error, in run order
func (r VerificationResult) ErrorMessage() string {
	for _, a := range []Attempt{r.Navigation, r.Login, r.Capture} {
		if a.Failed() && a.Error != "" {
			return a.Error
		}
	}
	return ""
}

// ==================== Run Types ====================

// RunStatus represents the status of a verification run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusRunning    RunStatus = "running"
	StatusSuccess    RunStatus = "success"
	StatusUnverified RunStatus = "unverified"
	StatusFailed     RunStatus = "failed"
	StatusCanceled   RunStatus = "canceled"
)

// IsTerminal reports whether no further updates are expected for the run
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusUnverified, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// StatusForResult maps a finished verification onto a run status.
// A missing screenshot is a failure; a screenshot that may show the
// login page instead of the dashboard is unverified.
func StatusForResult(r VerificationResult) RunStatus {
	switch {
	case !r.Capture.Succeeded():
		return StatusFailed
	case !r.Verified:
		return StatusUnverified
	default:
		return StatusSuccess
	}
}

// VerificationRun represents a single persisted verification run
type VerificationRun struct {
	ID                 string        `json:"id" db:"id"`
	TemporalWorkflowID string        `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string        `json:"temporal_run_id" db:"temporal_run_id"`
	TargetURL          string        `json:"target_url" db:"target_url"`
	Status             RunStatus     `json:"status" db:"status"`
	FinalURL           string        `json:"final_url,omitempty" db:"final_url"`
	PageTitle          string        `json:"page_title,omitempty" db:"page_title"`
	LoginStatus        AttemptStatus `json:"login_status,omitempty" db:"login_status"`
	ArtifactPath       string        `json:"artifact_path,omitempty" db:"artifact_path"`
	ErrorMessage       string        `json:"error_message,omitempty" db:"error_message"`
	StartedAt          *time.Time    `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at" db:"completed_at"`
}

// ApplyResult copies the outcome of a finished verification onto the run
func (run *VerificationRun) ApplyResult(r VerificationResult) {
	run.Status = StatusForResult(r)
	run.FinalURL = r.FinalURL
	run.PageTitle = r.PageTitle
	run.LoginStatus = r.Login.Status
	run.ArtifactPath = r.ArtifactPath
	run.ErrorMessage = r.ErrorMessage()
	if !r.StartedAt.IsZero() {
		started := r.StartedAt
		run.StartedAt = &started
	}
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		run.CompletedAt = &completed
	}
}

// ==================== API Request/Response Types ====================

// VerifyRequest represents a request to start a verification
type VerifyRequest struct {
	TargetURL string `json:"target_url,omitempty"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
