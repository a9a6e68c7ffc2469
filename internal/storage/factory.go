package storage

import (
	"fmt"

	"github.com/boxvault/boxvault/pkg/config"
)

// NewFromConfig creates a BlobStorage for the configured backend.
func NewFromConfig(cfg *config.StorageConfig) (BlobStorage, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
