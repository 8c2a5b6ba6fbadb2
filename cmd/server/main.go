package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/solduel/backend/internal/api"
	"github.com/solduel/backend/internal/config"
	"github.com/solduel/backend/internal/database"
	"github.com/solduel/backend/internal/middleware"
	"github.com/solduel/backend/internal/migrations"
	"github.com/solduel/backend/internal/solana"
	"github.com/solduel/backend/internal/worker"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Solana RPC client
	chain, err := solana.NewClient(cfg.SolanaRPCURL, cfg.ProgramID)
	if err != nil {
		log.Fatalf("Failed to initialize Solana client: %v", err)
	}

	// The finalizer refuses to start if the keypair on disk does not
	// match AUTHORITY_PUBKEY.
	finalizer, err := worker.NewFinalizer(db, cfg, chain)
	if err != nil {
		log.Fatalf("Failed to initialize finalizer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go finalizer.Start(ctx)
	go worker.StartTimeoutWatcher(ctx, db, cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	api.SetupRoutes(router, db, cfg, chain)

	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: router,
	}

	go func() {
		log.Printf("Starting SolDuel server on %s", cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
