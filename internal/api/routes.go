package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"buildmate/internal/api/middleware"
	"buildmate/internal/auth"
	"buildmate/internal/config"
	"buildmate/internal/storage"
)

// RegisterRoutes 注册 /api 下的业务路由。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	authHandler := NewAuthHandler(db, authService, logger)
	resumeHandler := NewResumeHandler(db, asynqClient, storageClient)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.CORSOrigin)
	assetHandler := NewAssetHandler(storageClient, logger, cfg.Clamd.Addr, cfg.API.MaxBodyBytes)
	authMiddleware := middleware.AuthMiddleware(authService)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/signup", authHandler.Signup)
		apiGroup.POST("/login", authHandler.Login)
		apiGroup.GET("/ws", wsHandler.HandleConnection)

		resumeGroup := apiGroup.Group("/resume")
		resumeGroup.Use(authMiddleware)
		{
			resumeGroup.GET("", resumeHandler.GetResume)
			resumeGroup.POST("", resumeHandler.SaveResume)
			resumeGroup.POST("/export", resumeHandler.ExportResume)
			resumeGroup.GET("/export", resumeHandler.GetExportStatus)
		}

		assetGroup := apiGroup.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/photo", assetHandler.UploadPhoto)
			assetGroup.GET("/photo", assetHandler.GetPhotoURL)
		}
	}
}
