package common

import (
	"fmt"

	"github.com/boxvault/boxvault/pkg/config"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM connection shared by all registry services.
type Database struct {
	*gorm.DB
}

// NewDatabase opens a Postgres connection from config. GORM's own
// logger is capped at Warn so query noise stays out of the structured
// log stream.
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.DBName).Msg("database connected")
	return &Database{DB: db}, nil
}

// Migrate brings the schema up to date for every registry model,
// including the unique indexes that enforce one box per (owner, name)
// and one artifact per (version, provider).
func (db *Database) Migrate() error {
	return db.AutoMigrate(
		&types.User{},
		&types.Box{},
		&types.BoxVersion{},
		&types.BoxProvider{},
		&types.BoxUpload{},
	)
}

// Close releases the underlying connection pool.
func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
