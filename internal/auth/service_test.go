package auth

import (
	"context"
	"testing"
	"time"

	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/pkg/config"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	database := &common.Database{DB: db}
	require.NoError(t, database.Migrate())

	return NewService(database, &config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: time.Hour,
		BCryptCost:    4, // minimum cost keeps tests fast
	})
}

func TestRegisterAndLogin(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.Password)

	// Duplicate username rejected.
	_, err = s.Register(ctx, &types.RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "password123",
	})
	assert.Error(t, err)

	token, err := s.Login(ctx, &types.LoginRequest{
		Username: "alice",
		Password: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, token.UserID)

	_, err = s.Login(ctx, &types.LoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	s := setupTestService(t)
	ctx := context.Background()

	user, err := s.Register(ctx, &types.RegisterRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	token, err := s.Login(ctx, &types.LoginRequest{
		Username: "bob",
		Password: "password123",
	})
	require.NoError(t, err)

	validated, err := s.ValidateToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, validated.ID)

	_, err = s.ValidateToken(ctx, "not.a.token")
	assert.Error(t, err)
}
