package api

import (
	"clinicore/internal/config"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	middlewarepkg "clinicore/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 组装依赖容器并返回 Gin 路由
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer, error) {
	container, err := InitContainer(db, cfg)
	if err != nil {
		return nil, nil, err
	}

	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers := container.InitHandlers()
	RegisterRoutes(router, container, handlers)

	logger.Info("路由注册完成",
		zap.Bool("stream_enabled", container.StreamHub != nil),
		zap.Bool("queue_enabled", container.QueueClient != nil),
	)

	return router, container, nil
}
