package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/boxvault/boxvault/cmd/registry/middleware"
	"github.com/boxvault/boxvault/internal/auth"
	"github.com/boxvault/boxvault/internal/boxes"
	"github.com/boxvault/boxvault/internal/upload"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func handleStartUpload(boxService *boxes.Service, uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		box, ok := findAccessibleBox(c, boxService, auth.OpWrite)
		if !ok {
			return
		}

		var req upload.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: err.Error()})
			return
		}

		up, err := uploadService.Start(c.Request.Context(), box, &req)
		if err != nil {
			var dup *upload.DuplicateVariantError
			if errors.As(err, &dup) {
				c.JSON(http.StatusConflict, types.APIResponse{Success: false, Error: err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: err.Error()})
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{Success: true, Data: up})
	}
}

// loadAuthorizedUpload resolves the session id and enforces write
// access on the owning box.
func loadAuthorizedUpload(c *gin.Context, uploadService *upload.Service) (*types.BoxUpload, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "upload not found"})
		return nil, false
	}

	up, err := uploadService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, upload.ErrUploadNotFound) {
			c.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "upload not found"})
		} else {
			c.JSON(http.StatusInternalServerError, types.APIResponse{Success: false, Error: "internal error"})
		}
		return nil, false
	}

	user, _ := middleware.GetUserFromContext(c)
	if !auth.CanAccess(user, &up.Box, auth.OpWrite) {
		c.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "upload not found"})
		return nil, false
	}

	return up, true
}

func handleUploadStatus(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		up, ok := loadAuthorizedUpload(c, uploadService)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, types.APIResponse{Success: true, Data: up})
	}
}

func handleUploadChunk(boxService *boxes.Service, uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		up, ok := loadAuthorizedUpload(c, uploadService)
		if !ok {
			return
		}

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: "failed to read request body"})
			return
		}

		up, provider, err := uploadService.AcceptChunk(
			c.Request.Context(), up.ID, c.GetHeader("Content-Range"), payload)
		if err != nil {
			writeChunkError(c, err)
			return
		}

		if provider != nil {
			// This chunk completed the file; the variant is now
			// durable and the cached catalog is stale.
			boxService.InvalidateCatalog(c.Request.Context(), &up.Box)
			c.JSON(http.StatusCreated, gin.H{
				"upload":   up,
				"provider": provider,
			})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"upload": up})
	}
}

// writeChunkError maps the upload error taxonomy onto the wire: range
// rejections answer 416 with the authoritative offset so the client can
// resynchronize, everything else terminal for the request answers 400.
func writeChunkError(c *gin.Context, err error) {
	var rangeErr *upload.RangeError
	if errors.As(err, &rangeErr) {
		c.JSON(http.StatusRequestedRangeNotSatisfiable, gin.H{
			"detail":    rangeErr.Detail,
			"offset":    rangeErr.Offset,
			"file_size": rangeErr.FileSize,
		})
		return
	}

	switch {
	case errors.Is(err, upload.ErrEmptyPayload),
		errors.Is(err, upload.ErrAlreadyCompleted),
		errors.Is(err, upload.ErrUploadExpired):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	var mismatch *upload.ChecksumMismatchError
	var dup *upload.DuplicateVariantError
	if errors.As(err, &mismatch) || errors.As(err, &dup) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
}

func handleAbortUpload(uploadService *upload.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		up, ok := loadAuthorizedUpload(c, uploadService)
		if !ok {
			return
		}

		if err := uploadService.Abort(c.Request.Context(), up.ID); err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{Success: false, Error: "internal error"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
