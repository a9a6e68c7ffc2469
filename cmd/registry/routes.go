package main

import (
	"github.com/boxvault/boxvault/cmd/registry/middleware"
	"github.com/boxvault/boxvault/internal/auth"
	"github.com/boxvault/boxvault/internal/boxes"
	"github.com/boxvault/boxvault/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupRouter(authService *auth.Service, boxService *boxes.Service, uploadService *upload.Service) *gin.Engine {
	if log.Logger.GetLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", handleRegister(authService))
		authRoutes.POST("/login", handleLogin(authService))
	}

	boxRoutes := v1.Group("/boxes")
	{
		boxRoutes.POST("", middleware.AuthMiddleware(authService), handleCreateBox(boxService))
		boxRoutes.GET("/:username/:name", middleware.OptionalAuthMiddleware(authService), handleCatalog(boxService))
		boxRoutes.POST("/:username/:name/uploads", middleware.AuthMiddleware(authService), handleStartUpload(boxService, uploadService))
	}

	uploadRoutes := v1.Group("/uploads", middleware.AuthMiddleware(authService))
	{
		uploadRoutes.GET("/:id", handleUploadStatus(uploadService))
		uploadRoutes.PUT("/:id", handleUploadChunk(boxService, uploadService))
		uploadRoutes.DELETE("/:id", handleAbortUpload(uploadService))
	}

	v1.GET("/downloads/:username/:name/:version/:provider",
		middleware.OptionalAuthMiddleware(authService), handleDownload(boxService))

	return router
}
