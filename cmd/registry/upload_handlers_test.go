package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boxvault/boxvault/internal/auth"
	"github.com/boxvault/boxvault/internal/boxes"
	"github.com/boxvault/boxvault/internal/common"
	"github.com/boxvault/boxvault/internal/storage"
	"github.com/boxvault/boxvault/internal/upload"
	"github.com/boxvault/boxvault/pkg/config"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type apiTestEnv struct {
	router *gin.Engine
	token  string
}

func setupAPITest(t *testing.T) *apiTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	database := &common.Database{DB: db}
	require.NoError(t, database.Migrate())

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	chunks, err := upload.NewChunkStore(t.TempDir())
	require.NoError(t, err)

	authService := auth.NewService(database, &config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: time.Hour,
		BCryptCost:    4,
	})
	boxService := boxes.NewService(database, blobs, nil)
	promoter := upload.NewPromoter(blobs, chunks)
	uploadService := upload.NewService(database, chunks, promoter, 24*time.Hour)

	router := setupRouter(authService, boxService, uploadService)
	env := &apiTestEnv{router: router}

	env.do(t, http.StatusCreated, "POST", "/api/v1/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	}, nil)

	var login struct {
		Data types.AuthToken `json:"data"`
	}
	env.do(t, http.StatusOK, "POST", "/api/v1/auth/login", gin.H{
		"username": "alice",
		"password": "password123",
	}, &login)
	env.token = login.Data.Token

	env.do(t, http.StatusCreated, "POST", "/api/v1/boxes", gin.H{
		"name": "trusty64",
	}, nil)

	return env
}

// do sends a JSON request and decodes the response into out when it is
// non-nil.
func (e *apiTestEnv) do(t *testing.T, wantStatus int, method, path string, body interface{}, out interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, wantStatus, w.Code, w.Body.String())

	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
}

// sendChunk issues a raw chunk PUT with a Content-Range header.
func (e *apiTestEnv) sendChunk(t *testing.T, uploadID, contentRange string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("PUT", "/api/v1/uploads/"+uploadID, bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	if contentRange != "" {
		req.Header.Set("Content-Range", contentRange)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *apiTestEnv) startUpload(t *testing.T, payload []byte) string {
	t.Helper()

	sum := sha256.Sum256(payload)
	var resp struct {
		Data types.BoxUpload `json:"data"`
	}
	e.do(t, http.StatusCreated, "POST", "/api/v1/boxes/alice/trusty64/uploads", gin.H{
		"version":       "1.2.0",
		"provider":      "virtualbox",
		"file_size":     len(payload),
		"checksum":      hex.EncodeToString(sum[:]),
		"checksum_type": "sha256",
	}, &resp)
	return resp.Data.ID.String()
}

func TestUploadProtocol_SingleChunk(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("entire box in one request")
	id := env.startUpload(t, payload)

	w := env.sendChunk(t, id,
		fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload)), payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Upload   types.BoxUpload   `json:"upload"`
		Provider types.BoxProvider `json:"provider"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.UploadCompleted, resp.Upload.Status)
	assert.Equal(t, int64(len(payload)), resp.Provider.FileSize)
	assert.Equal(t, "virtualbox", resp.Provider.Provider)

	// The catalog now lists the new provider.
	var catalog boxes.Catalog
	env.do(t, http.StatusOK, "GET", "/api/v1/boxes/alice/trusty64", nil, &catalog)
	require.Len(t, catalog.Versions, 1)
	assert.Equal(t, "1.2.0", catalog.Versions[0].Version)

	// And the file is downloadable.
	req := httptest.NewRequest("GET", "/api/v1/downloads/alice/trusty64/1.2.0/virtualbox", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	dw := httptest.NewRecorder()
	env.router.ServeHTTP(dw, req)
	require.Equal(t, http.StatusOK, dw.Code)
	assert.Equal(t, payload, dw.Body.Bytes())
}

func TestUploadProtocol_ChunkedTransfer(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("0123456789abcdef")
	id := env.startUpload(t, payload)
	total := len(payload)

	// First half: accepted, more expected.
	w := env.sendChunk(t, id, fmt.Sprintf("bytes 0-7/%d", total), payload[:8])
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var partial struct {
		Upload types.BoxUpload `json:"upload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &partial))
	assert.Equal(t, int64(8), partial.Upload.Offset)
	assert.Equal(t, types.UploadInProgress, partial.Upload.Status)

	// Second half completes the file.
	w = env.sendChunk(t, id, fmt.Sprintf("bytes 8-%d/%d", total-1, total), payload[8:])
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestUploadProtocol_RangeMismatchAnswers416(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("0123456789ab")
	id := env.startUpload(t, payload)

	w := env.sendChunk(t, id, fmt.Sprintf("bytes 2-5/%d", len(payload)), payload[2:6])
	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)

	var body struct {
		Detail   string `json:"detail"`
		Offset   int64  `json:"offset"`
		FileSize int64  `json:"file_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(0), body.Offset)
	assert.Equal(t, int64(len(payload)), body.FileSize)
	assert.NotEmpty(t, body.Detail)
}

func TestUploadProtocol_MissingRangeHeaderAnswers416(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("0123456789ab")
	id := env.startUpload(t, payload)

	w := env.sendChunk(t, id, "", payload)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
}

func TestUploadProtocol_EmptyBodyAnswers400(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("0123456789ab")
	id := env.startUpload(t, payload)

	w := env.sendChunk(t, id, fmt.Sprintf("bytes 0-4/%d", len(payload)), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadProtocol_DuplicateVariantOnStart(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("first upload wins")
	id := env.startUpload(t, payload)

	w := env.sendChunk(t, id,
		fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload)), payload)
	require.Equal(t, http.StatusCreated, w.Code)

	// A second session for the finalized (version, provider) is
	// refused before any bytes are accepted.
	sum := sha256.Sum256(payload)
	env.do(t, http.StatusConflict, "POST", "/api/v1/boxes/alice/trusty64/uploads", gin.H{
		"version":       "1.2.0",
		"provider":      "virtualbox",
		"file_size":     len(payload),
		"checksum":      hex.EncodeToString(sum[:]),
		"checksum_type": "sha256",
	}, nil)
}

func TestUploadProtocol_AbortRemovesSession(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("to be abandoned")
	id := env.startUpload(t, payload)

	req := httptest.NewRequest("DELETE", "/api/v1/uploads/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/uploads/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadProtocol_RequiresAuth(t *testing.T) {
	env := setupAPITest(t)

	payload := []byte("locked down")
	id := env.startUpload(t, payload)

	req := httptest.NewRequest("PUT", "/api/v1/uploads/"+id, bytes.NewReader(payload))
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload)))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
