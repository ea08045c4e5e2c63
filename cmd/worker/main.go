package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/dashboard-verify/pkg/artifact"
	"dev/bravebird/dashboard-verify/pkg/browser"
	"dev/bravebird/dashboard-verify/pkg/config"
	"dev/bravebird/dashboard-verify/pkg/database"
	"dev/bravebird/dashboard-verify/pkg/temporal/activities"
	"dev/bravebird/dashboard-verify/pkg/temporal/workflows"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Results are persisted only when a database is configured
	var store activities.ResultStore
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := database.New(dsn)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to create schema: %v", err)
		}
		store = db
	}

	acts := activities.NewActivities(cfg, browser.NewRodLauncher(cfg.LauncherOptions()), artifact.NewOsStore(), store)

	// One browser at a time
	w := worker.New(c, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 2,
	})

	w.RegisterWorkflow(workflows.DashboardVerificationWorkflow)
	w.RegisterActivity(acts)

	log.Printf("Starting Temporal worker on task queue: %s", workflows.TaskQueue)
	log.Printf("Temporal host: %s", temporalHost)
	log.Printf("Target: %s", cfg.TargetURL)

	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
