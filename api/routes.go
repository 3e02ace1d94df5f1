package api

import (
	"clinicore/internal/auth"
	middlewarepkg "clinicore/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	// 认证 API（公开，不需要 JWT，但受限流保护）
	registerAuthRoutes(router, container, handlers)

	// 审计查询 API（需要审计员或管理员角色）
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService))
	registerAuditRoutes(api, container, handlers)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(container.JWTService))
	registerAuditRoutes(apiV1, container, handlers)
}

// registerAuthRoutes 注册认证相关路由（公开）
func registerAuthRoutes(router *gin.Engine, c *AppContainer, h *Handlers) {
	authGroup := router.Group("/api/auth")
	authGroup.Use(middlewarepkg.RateLimitByEndpoint(c.AuthLimiter))
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/login-event", h.Auth.LoginEvent)
		authGroup.POST("/logout-event", h.Auth.LogoutEvent)
		authGroup.GET("/check-lock-status", h.Auth.CheckLockStatus)
	}
}

// registerAuditRoutes 注册审计账本查询路由（需认证）
func registerAuditRoutes(apiGroup *gin.RouterGroup, c *AppContainer, h *Handlers) {
	auditorGuard := auth.RequireRole("auditor", "admin")

	auditGroup := apiGroup.Group("/audit")
	auditGroup.Use(auditorGuard)
	{
		auditGroup.GET("", h.Audit.ListEvents)
		auditGroup.GET("/event-types", h.Audit.ListEventTypes)
		auditGroup.GET("/entity-types", h.Audit.ListEntityTypes)
		auditGroup.GET("/export", h.Audit.Export)
		auditGroup.GET("/actor/:actorId", h.Audit.ListByActor)
		auditGroup.GET("/entity/:entityId", h.Audit.ListByEntity)
		auditGroup.GET("/:id", h.Audit.GetEvent)
		auditGroup.GET("/:id/verify", h.Audit.VerifyEvent)

		// 实时推送按配置开启
		if c.StreamHub != nil {
			auditGroup.GET("/stream", h.Audit.Stream)
		}
	}
}
