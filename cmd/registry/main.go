package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boxvault/boxvault/internal/auth"
	"github.com/boxvault/boxvault/internal/boxes"
	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/internal/storage"
	"github.com/boxvault/boxvault/internal/upload"
	"github.com/boxvault/boxvault/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	log.Info().Msg("starting boxvault registry")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer cache.Close()

	blobs, err := storage.NewFromConfig(&cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	chunks, err := upload.NewChunkStore(cfg.Upload.SpoolDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload spool")
	}

	authService := auth.NewService(db, &cfg.Auth)
	boxService := boxes.NewService(db, blobs, cache)
	promoter := upload.NewPromoter(blobs, chunks)
	uploadService := upload.NewService(db, chunks, promoter, cfg.Upload.TTL)
	sweeper := upload.NewSweeper(db, chunks, cfg.Upload.TTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx, cfg.Upload.SweepInterval)

	router := setupRouter(authService, boxService, uploadService)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server shutdown complete")
}
