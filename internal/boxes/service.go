package boxes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/internal/storage"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/boxvault/boxvault/pkg/version"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a box, version or provider is unknown.
var ErrNotFound = errors.New("not found")

// catalogCacheTTL bounds staleness if an invalidation is ever lost.
const catalogCacheTTL = time.Hour

// Service handles box records, the Vagrant catalog document and
// downloads. Uploads live in the upload package; promotion calls back
// into InvalidateCatalog when a new provider lands.
type Service struct {
	db    *common.Database
	blobs storage.BlobStorage
	cache *common.Cache
}

// NewService creates a box service. cache may be nil, which disables
// catalog caching.
func NewService(db *common.Database, blobs storage.BlobStorage, cache *common.Cache) *Service {
	return &Service{
		db:    db,
		blobs: blobs,
		cache: cache,
	}
}

// CreateRequest declares a new box.
type CreateRequest struct {
	Name        string           `json:"name" binding:"required,max=30"`
	Description string           `json:"description"`
	Visibility  types.Visibility `json:"visibility"`
}

// Create registers a new box under the owner.
func (s *Service) Create(ctx context.Context, owner *types.User, req *CreateRequest) (*types.Box, error) {
	visibility := req.Visibility
	if visibility == "" {
		visibility = types.VisibilityPrivate
	}

	now := time.Now()
	box := &types.Box{
		OwnerID:      owner.ID,
		Name:         req.Name,
		Description:  req.Description,
		Visibility:   visibility,
		DateCreated:  now,
		DateModified: now,
	}

	if err := s.db.WithContext(ctx).Create(box).Error; err != nil {
		return nil, fmt.Errorf("failed to create box: %w", err)
	}

	box.Owner = *owner
	log.Info().Str("box", box.Tag()).Msg("box created")
	return box, nil
}

// Find loads a box by owner username and box name.
func (s *Service) Find(ctx context.Context, username, name string) (*types.Box, error) {
	var box types.Box
	err := s.db.WithContext(ctx).
		Joins("Owner").
		Where("\"Owner\".username = ? AND boxes.name = ?", username, name).
		First(&box).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find box: %w", err)
	}
	return &box, nil
}

// CatalogProvider is one provider entry in the Vagrant catalog.
type CatalogProvider struct {
	Name         string             `json:"name"`
	URL          string             `json:"url"`
	Checksum     string             `json:"checksum"`
	ChecksumType types.ChecksumType `json:"checksum_type"`
}

// CatalogVersion is one version entry in the Vagrant catalog.
type CatalogVersion struct {
	Version   string            `json:"version"`
	Providers []CatalogProvider `json:"providers"`
}

// Catalog is the metadata document the Vagrant CLI consumes to resolve
// a box name to downloadable files.
type Catalog struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Versions    []CatalogVersion `json:"versions"`
}

func catalogCacheKey(username, name string) string {
	return "catalog:" + username + "/" + name
}

// Catalog builds the box metadata document, versions sorted newest
// first. Results are cached until the next promotion invalidates them.
func (s *Service) Catalog(ctx context.Context, box *types.Box, baseURL string) (*Catalog, error) {
	key := catalogCacheKey(box.Owner.Username, box.Name)
	if s.cache != nil {
		var cached Catalog
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	var versions []types.BoxVersion
	err := s.db.WithContext(ctx).
		Preload("Providers").
		Where("box_id = ?", box.ID).
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load versions: %w", err)
	}

	byVersion := make(map[string]types.BoxVersion, len(versions))
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		byVersion[v.Version] = v
		names = append(names, v.Version)
	}
	version.SortDesc(names)

	catalog := &Catalog{
		Name:        box.Tag(),
		Description: box.Description,
		Versions:    make([]CatalogVersion, 0, len(names)),
	}
	for _, name := range names {
		v := byVersion[name]
		entry := CatalogVersion{Version: v.Version}
		for _, p := range v.Providers {
			entry.Providers = append(entry.Providers, CatalogProvider{
				Name: p.Provider,
				URL: fmt.Sprintf("%s/downloads/%s/%s/%s/%s",
					baseURL, box.Owner.Username, box.Name, v.Version, p.Provider),
				Checksum:     p.Checksum,
				ChecksumType: p.ChecksumType,
			})
		}
		catalog.Versions = append(catalog.Versions, entry)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, catalog, catalogCacheTTL); err != nil {
			log.Warn().Err(err).Str("box", box.Tag()).Msg("failed to cache catalog")
		}
	}
	return catalog, nil
}

// InvalidateCatalog drops the cached catalog after a promotion.
func (s *Service) InvalidateCatalog(ctx context.Context, box *types.Box) {
	if s.cache == nil {
		return
	}
	key := catalogCacheKey(box.Owner.Username, box.Name)
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("box", box.Tag()).Msg("failed to invalidate catalog cache")
	}
}

// FindProvider resolves a (box, version, provider) triple.
func (s *Service) FindProvider(ctx context.Context, boxID uuid.UUID, versionStr, providerName string) (*types.BoxProvider, error) {
	var provider types.BoxProvider
	err := s.db.WithContext(ctx).
		Joins("JOIN box_versions ON box_versions.id = box_providers.version_id").
		Where("box_versions.box_id = ? AND box_versions.version = ? AND box_providers.provider = ?",
			boxID, versionStr, providerName).
		First(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find provider: %w", err)
	}
	return &provider, nil
}

// Download streams a provider's box file and increments its pull
// counter.
func (s *Service) Download(ctx context.Context, boxID uuid.UUID, versionStr, providerName string) (*types.BoxProvider, io.ReadCloser, error) {
	provider, err := s.FindProvider(ctx, boxID, versionStr, providerName)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.blobs.Retrieve(ctx, provider.StoragePath)
	if err != nil {
		log.Error().Err(err).
			Str("storage_path", provider.StoragePath).
			Msg("failed to retrieve box file from storage")
		return nil, nil, fmt.Errorf("failed to retrieve box file: %w", err)
	}

	// The download proceeds even when the counter bump fails.
	if err := s.db.WithContext(ctx).Model(&types.BoxProvider{}).
		Where("id = ?", provider.ID).
		Update("pulls", gorm.Expr("pulls + ?", 1)).Error; err != nil {
		log.Warn().Err(err).
			Str("provider_id", provider.ID.String()).
			Msg("failed to increment pull counter")
	}

	return provider, content, nil
}
