package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/config"
	"codedrop-go/internal/database"
	"codedrop-go/internal/database/migrate"
	"codedrop-go/internal/logger"
	"codedrop-go/internal/server"
	"codedrop-go/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("Codedrop %s\n", formatVersionInfo())
		return
	}

	logger.Init(os.Getenv("APP_ENV"))

	log.Info().
		Str("log_level", zerolog.GlobalLevel().String()).
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Msg("Starting Codedrop")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}
	logger.Init(cfg.Env)
	cfg.Log()

	db, err := database.NewFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}()

	if health := db.Health(ctx); health["status"] != "up" {
		log.Fatal().
			Interface("error", health["error"]).
			Msg("Database health check failed")
	}

	if err := migrate.RunMigrations(db.DB); err != nil {
		log.Error().Err(err).Msg("Failed to run migrations")
		log.Info().Msg("Attempting to rollback migrations...")

		if rbErr := migrate.RollbackMigrations(db.DB); rbErr != nil {
			log.Fatal().
				Err(rbErr).
				Str("original_error", err.Error()).
				Msg("Failed to rollback migrations after error")
		}

		log.Fatal().Err(err).Msg("Migrations rolled back due to error")
	}

	store, err := storage.NewProvider(cfg.Storage, cfg.BaseURL, cfg.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing object storage")
		}
	}()

	srv, err := server.New(cfg, db, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating server")
	}

	// The sweeper runs once immediately, then on its interval, until
	// shutdown.
	if err := srv.Sweeper().Start(); err != nil {
		log.Fatal().Err(err).Msg("Error starting sweeper")
	}
	defer srv.Sweeper().Stop()

	httpServer := srv.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-shutdown
		log.Info().Msg("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		httpServer.SetKeepAlivesEnabled(false)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("url", cfg.BaseURL).
		Msg("Server is ready to handle requests")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("HTTP server error")
	}

	<-ctx.Done()
	log.Info().Msg("Server shutdown completed")
}

func formatVersionInfo() string {
	return fmt.Sprintf(`Version: %s
Commit: %s
Built: %s`, version, commit, date)
}
