package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"dev/bravebird/dashboard-verify/pkg/artifact"
	"dev/bravebird/dashboard-verify/pkg/models"
	"dev/bravebird/dashboard-verify/pkg/temporal/workflows"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RunStore is the persistence the handlers need
type RunStore interface {
	CreateVerificationRun(ctx context.Context, run *models.VerificationRun) error
	SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error
	GetVerificationRun(ctx context.Context, id string) (*models.VerificationRun, error)
	ListVerificationRuns(ctx context.Context, limit int) ([]models.VerificationRun, error)
	UpdateVerificationRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	DeleteVerificationRun(ctx context.Context, id string) error
}

// WorkflowClient is the part of the Temporal client the handlers use
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	CancelWorkflow(ctx context.Context, workflowID string, runID string) error
}

// Handlers contains API handlers
type Handlers struct {
	db             RunStore
	temporalClient WorkflowClient
	artifacts      *artifact.Store
	artifactPath   string
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. db may be nil.
func NewHandlers(db RunStore, temporalClient WorkflowClient, artifacts *artifact.Store, artifactPath string) *Handlers {
	return &Handlers{
		db:             db,
		temporalClient: temporalClient,
		artifacts:      artifacts,
		artifactPath:   artifactPath,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// NewRouter registers every route on a new router
func NewRouter(h *Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/verifications", h.StartVerification).Methods("POST")
	apiRouter.HandleFunc("/verifications", h.ListVerifications).Methods("GET")
	apiRouter.HandleFunc("/verifications/{id}", h.GetVerification).Methods("GET")
	apiRouter.HandleFunc("/verifications/{id}/cancel", h.CancelVerification).Methods("POST")
	apiRouter.HandleFunc("/verifications/{id}/stream", h.StreamVerification).Methods("GET")

	apiRouter.HandleFunc("/artifact", h.ServeArtifact).Methods("GET")

	return router
}

// ==================== Verification Handlers ====================

// StartVerification starts the verification workflow. Only one verification
// may run at a time.
func (h *Handlers) StartVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	runID := uuid.New().String()

	if h.db != nil {
		run := &models.VerificationRun{
			ID:        runID,
			TargetURL: req.TargetURL,
			Status:    models.StatusPending,
		}
		if err := h.db.CreateVerificationRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	input := workflows.VerificationInput{
		RunID:     runID,
		TargetURL: req.TargetURL,
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:                                       workflows.WorkflowID,
		TaskQueue:                                workflows.TaskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, "DashboardVerificationWorkflow", input)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		status := http.StatusInternalServerError
		msg := "Failed to start verification: " + err.Error()
		if errors.As(err, &alreadyStarted) {
			status = http.StatusConflict
			msg = "A verification is already running"
		}
		// The run never started, so it is not kept in the history
		if h.db != nil {
			h.db.DeleteVerificationRun(ctx, runID)
		}
		http.Error(w, msg, status)
		return
	}

	if h.db != nil {
		h.db.SetTemporalIDs(ctx, runID, we.GetID(), we.GetRunID())
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListVerifications lists recent verification runs
func (h *Handlers) ListVerifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.db.ListVerificationRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetVerification retrieves a verification run
func (h *Handlers) GetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetVerificationRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// CancelVerification cancels a running verification
func (h *Handlers) CancelVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetVerificationRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.IsTerminal() {
		http.Error(w, "Run already finished", http.StatusConflict)
		return
	}

	if run.TemporalWorkflowID != "" {
		err = h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID)
		if err != nil {
			http.Error(w, "Failed to cancel verification: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	h.db.UpdateVerificationRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user")

	respondJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamVerification streams run updates via WebSocket until the run finishes
func (h *Handlers) StreamVerification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The request context outlives a hijacked connection; a failed read
	// means the client went away
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastStatus models.RunStatus

	for {
		run, err := h.db.GetVerificationRun(ctx, id)
		if err == nil && run != nil && run.Status != lastStatus {
			msg := models.WSMessage{
				Type:    "run_update",
				Payload: run,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			lastStatus = run.Status

			if run.Status.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(run.Status)))
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ==================== Artifact Handlers ====================

// ServeArtifact serves the most recent screenshot
func (h *Handlers) ServeArtifact(w http.ResponseWriter, r *http.Request) {
	f, info, err := h.artifacts.Open(h.artifactPath)
	if err != nil {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	// The artifact is overwritten by every run
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(h.artifactPath), info.ModTime(), f)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
