package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"dev/bravebird/dashboard-verify/pkg/api"
	"dev/bravebird/dashboard-verify/pkg/artifact"
	"dev/bravebird/dashboard-verify/pkg/config"
	"dev/bravebird/dashboard-verify/pkg/database"
)

func main() {
	log.Println("Starting Dashboard Verification API Server")

	port := getEnvOrDefault("PORT", "8080")
	mysqlDSN := getEnvOrDefault("MYSQL_DSN", "verify:verify@tcp(localhost:3306)/verify?parseTime=true")
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// A nil *DB must not reach the RunStore interface
	var store api.RunStore
	db, err := database.New(mysqlDSN)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Running without database persistence")
	} else {
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to create schema: %v", err)
		}
		store = db
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   tlog.NewStructuredLogger(slog.New(slog.NewTextHandler(os.Stdout, nil))),
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer temporalClient.Close()

	handlers := api.NewHandlers(store, temporalClient, artifact.NewOsStore(), cfg.ArtifactPath)
	router := api.NewRouter(handlers)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     c.Handler(router),
		ReadTimeout: 15 * time.Second,
		// WriteTimeout would cut off progress streams
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("API server listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
