package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"buildmate/internal/api/middleware"
	"buildmate/internal/config"
	"buildmate/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂载基础中间件与运维端点。
func NewRouter(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.API.CORSOrigin))
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(middleware.SlogLoggerMiddleware(logger))
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.BodyLimitMiddleware(cfg.API.MaxBodyBytes))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// dbcheck 直接打数据库拿当前时间，作为连通性探针。
	router.GET("/dbcheck", func(c *gin.Context) {
		var ts time.Time
		if err := db.WithContext(c.Request.Context()).Raw("SELECT NOW()").Scan(&ts).Error; err != nil {
			middleware.LoggerFromContext(c).Error("dbcheck failed", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "ts": ts})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
