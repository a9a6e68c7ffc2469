package boxes

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/internal/storage"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T) (*Service, *common.Database, *types.User) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	database := &common.Database{DB: db}
	require.NoError(t, database.Migrate())

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	owner := &types.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, db.Create(owner).Error)

	return NewService(database, blobs, nil), database, owner
}

func TestCreateAndFind(t *testing.T) {
	s, _, owner := setupTestService(t)
	ctx := context.Background()

	box, err := s.Create(ctx, owner, &CreateRequest{
		Name:        "trusty64",
		Description: "Ubuntu 14.04",
	})
	require.NoError(t, err)
	assert.Equal(t, types.VisibilityPrivate, box.Visibility)
	assert.Equal(t, "alice/trusty64", box.Tag())

	found, err := s.Find(ctx, "alice", "trusty64")
	require.NoError(t, err)
	assert.Equal(t, box.ID, found.ID)
	assert.Equal(t, "alice", found.Owner.Username)

	_, err = s.Find(ctx, "alice", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_VersionsSortedNewestFirst(t *testing.T) {
	s, db, owner := setupTestService(t)
	ctx := context.Background()

	box, err := s.Create(ctx, owner, &CreateRequest{Name: "trusty64"})
	require.NoError(t, err)

	now := time.Now()
	for _, v := range []string{"1.2.0", "10.0.0", "2.0"} {
		boxVersion := &types.BoxVersion{
			BoxID:        box.ID,
			Version:      v,
			DateCreated:  now,
			DateModified: now,
		}
		require.NoError(t, db.Create(boxVersion).Error)
		require.NoError(t, db.Create(&types.BoxProvider{
			VersionID:    boxVersion.ID,
			Provider:     "virtualbox",
			FileSize:     10,
			Checksum:     "abc",
			ChecksumType: types.ChecksumSHA256,
			StoragePath:  "boxes/alice/trusty64/" + v + "/virtualbox.box",
			DateCreated:  now,
			DateModified: now,
		}).Error)
	}

	catalog, err := s.Catalog(ctx, box, "http://example.com/api/v1")
	require.NoError(t, err)

	assert.Equal(t, "alice/trusty64", catalog.Name)
	require.Len(t, catalog.Versions, 3)
	assert.Equal(t, "10.0.0", catalog.Versions[0].Version)
	assert.Equal(t, "2.0", catalog.Versions[1].Version)
	assert.Equal(t, "1.2.0", catalog.Versions[2].Version)

	require.Len(t, catalog.Versions[0].Providers, 1)
	p := catalog.Versions[0].Providers[0]
	assert.Equal(t, "virtualbox", p.Name)
	assert.Equal(t, "http://example.com/api/v1/downloads/alice/trusty64/10.0.0/virtualbox", p.URL)
}

func TestDownload_IncrementsPulls(t *testing.T) {
	s, db, owner := setupTestService(t)
	ctx := context.Background()

	box, err := s.Create(ctx, owner, &CreateRequest{Name: "trusty64"})
	require.NoError(t, err)

	content := "the box bytes"
	path := "boxes/alice/trusty64/1.0.0/virtualbox.box"
	require.NoError(t, s.blobs.Store(ctx, path, strings.NewReader(content)))

	now := time.Now()
	boxVersion := &types.BoxVersion{BoxID: box.ID, Version: "1.0.0", DateCreated: now, DateModified: now}
	require.NoError(t, db.Create(boxVersion).Error)
	require.NoError(t, db.Create(&types.BoxProvider{
		VersionID:    boxVersion.ID,
		Provider:     "virtualbox",
		FileSize:     int64(len(content)),
		Checksum:     "abc",
		ChecksumType: types.ChecksumSHA256,
		StoragePath:  path,
		DateCreated:  now,
		DateModified: now,
	}).Error)

	provider, reader, err := s.Download(ctx, box.ID, "1.0.0", "virtualbox")
	require.NoError(t, err)
	defer reader.Close()

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	var refreshed types.BoxProvider
	require.NoError(t, db.First(&refreshed, "id = ?", provider.ID).Error)
	assert.Equal(t, int64(1), refreshed.Pulls)

	_, _, err = s.Download(ctx, box.ID, "1.0.0", "vmware")
	assert.ErrorIs(t, err, ErrNotFound)
}
