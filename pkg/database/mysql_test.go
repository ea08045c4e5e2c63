package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/dashboard-verify/pkg/models"
)

// openTestDB connects to the database named by MYSQL_TEST_DSN
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	db, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestVerificationRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := uuid.New().String()
	require.NoError(t, db.CreateVerificationRun(ctx, &models.VerificationRun{
		ID:        id,
		TargetURL: "http://localhost:3000/dashboard/efficiency",
		Status:    models.StatusPending,
	}))
	require.NoError(t, db.SetTemporalIDs(ctx, id, "dashboard-verification", "temporal-run"))

	run, err := db.GetVerificationRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.StatusRunning, run.Status)
	assert.Equal(t, "temporal-run", run.TemporalRunID)
	assert.NotNil(t, run.StartedAt)
	assert.Nil(t, run.CompletedAt)

	now := time.Now()
	require.NoError(t, db.SaveVerificationResult(ctx, models.VerificationResult{
		RunID:        id,
		TargetURL:    "http://localhost:3000/dashboard/efficiency",
		FinalURL:     "http://localhost:3000/login",
		PageTitle:    "Sign In",
		Navigation:   models.Attempt{Status: models.AttemptSucceeded},
		Login:        models.Attempt{Status: models.AttemptFailed, Error: "element not found"},
		Capture:      models.Attempt{Status: models.AttemptSucceeded},
		ArtifactPath: "verification/efficiency_dashboard.png",
		StartedAt:    now.Add(-5 * time.Second),
		CompletedAt:  now,
	}))

	run, err = db.GetVerificationRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnverified, run.Status)
	assert.Equal(t, models.AttemptFailed, run.LoginStatus)
	assert.Equal(t, "element not found", run.ErrorMessage)
	assert.NotNil(t, run.CompletedAt)

	runs, err := db.ListVerificationRuns(ctx, 50)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.ID == id {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSaveResultWithoutExistingRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := uuid.New().String()
	require.NoError(t, db.SaveVerificationResult(ctx, models.VerificationResult{
		RunID:      id,
		TargetURL:  "http://localhost:3000/dashboard/efficiency",
		Navigation: models.Attempt{Status: models.AttemptFailed, Error: "net::ERR_CONNECTION_REFUSED"},
		Login:      models.SkippedAttempt(),
		Capture:    models.SkippedAttempt(),
	}))

	run, err := db.GetVerificationRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.StatusFailed, run.Status)
}

func TestGetMissingRun(t *testing.T) {
	db := openTestDB(t)

	run, err := db.GetVerificationRun(context.Background(), uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestDeleteVerificationRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := uuid.New().String()
	require.NoError(t, db.CreateVerificationRun(ctx, &models.VerificationRun{
		ID:     id,
		Status: models.StatusPending,
	}))
	require.NoError(t, db.DeleteVerificationRun(ctx, id))

	run, err := db.GetVerificationRun(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, run)
}
