// Command sweep removes expired and completed box uploads along with
// their spooled bytes. It is meant to run from cron; the registry also
// sweeps on its own interval, so this exists for deployments that
// prefer an external trigger.
package main

import (
	"context"

	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/internal/upload"
	"github.com/boxvault/boxvault/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	chunks, err := upload.NewChunkStore(cfg.Upload.SpoolDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open upload spool")
	}

	sweeper := upload.NewSweeper(db, chunks, cfg.Upload.TTL)
	removed, err := sweeper.Sweep(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("sweep failed")
	}

	log.Info().Int("removed", removed).Msg("sweep complete")
}
