package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/boxvault/boxvault/cmd/registry/middleware"
	"github.com/boxvault/boxvault/internal/auth"
	"github.com/boxvault/boxvault/internal/boxes"
	"github.com/boxvault/boxvault/pkg/types"
	"github.com/gin-gonic/gin"
)

func handleCreateBox(boxService *boxes.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, types.APIResponse{Success: false, Error: "unauthorized"})
			return
		}

		var req boxes.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: err.Error()})
			return
		}

		box, err := boxService.Create(c.Request.Context(), user, &req)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: err.Error()})
			return
		}

		c.JSON(http.StatusCreated, types.APIResponse{Success: true, Data: box})
	}
}

// findAccessibleBox loads a box and enforces the capability check for
// the requested operation. Inaccessible private boxes read as 404 so
// their existence is not leaked.
func findAccessibleBox(c *gin.Context, boxService *boxes.Service, op auth.Operation) (*types.Box, bool) {
	user, _ := middleware.GetUserFromContext(c)

	box, err := boxService.Find(c.Request.Context(), c.Param("username"), c.Param("name"))
	if err != nil {
		if errors.Is(err, boxes.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "box not found"})
		} else {
			c.JSON(http.StatusInternalServerError, types.APIResponse{Success: false, Error: "internal error"})
		}
		return nil, false
	}

	if !auth.CanAccess(user, box, op) {
		c.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "box not found"})
		return nil, false
	}

	return box, true
}

func handleCatalog(boxService *boxes.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		box, ok := findAccessibleBox(c, boxService, auth.OpRead)
		if !ok {
			return
		}

		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL := fmt.Sprintf("%s://%s/api/v1", scheme, c.Request.Host)

		catalog, err := boxService.Catalog(c.Request.Context(), box, baseURL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, types.APIResponse{Success: false, Error: "internal error"})
			return
		}

		c.JSON(http.StatusOK, catalog)
	}
}

func handleDownload(boxService *boxes.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		box, ok := findAccessibleBox(c, boxService, auth.OpRead)
		if !ok {
			return
		}

		provider, content, err := boxService.Download(
			c.Request.Context(), box.ID, c.Param("version"), c.Param("provider"))
		if err != nil {
			if errors.Is(err, boxes.ErrNotFound) {
				c.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "box file not found"})
			} else {
				c.JSON(http.StatusInternalServerError, types.APIResponse{Success: false, Error: "internal error"})
			}
			return
		}
		defer content.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.box", provider.Provider))
		c.DataFromReader(http.StatusOK, provider.FileSize, "application/octet-stream", content, nil)
	}
}
