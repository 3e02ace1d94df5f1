package api

import (
	"os"
	"strings"
	"time"

	auditpkg "clinicore/internal/audit"
	"clinicore/internal/auth"
	"clinicore/internal/cache"
	"clinicore/internal/config"
	"clinicore/internal/infra"
	"clinicore/internal/infra/queue"
	"clinicore/internal/logger"
	"clinicore/internal/middleware"
	"clinicore/internal/notification"
	"clinicore/internal/security"
	"clinicore/internal/worker"

	auditHandlers "clinicore/api/handlers/audit"
	authHandlers "clinicore/api/handlers/auth"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用容器，集中管理所有服务依赖
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient
	QueueClient queue.Client
	CacheStore  cache.Store

	// 认证相关
	JWTService       *auth.JWTService
	IdentityProvider auth.IdentityProvider

	// 审计账本
	Ledger       *auditpkg.Ledger
	QueryService *auditpkg.QueryService
	StreamHub    *notification.StreamHub

	// 账户安全
	Guard *security.LoginGuard

	// 限流器（认证端点专用，抑制暴力尝试）
	AuthLimiter *middleware.RateLimiter

	// Worker
	WorkerServer *worker.Server
}

// Handlers 所有 HTTP 处理器
type Handlers struct {
	Audit *auditHandlers.AuditHandler
	Auth  *authHandlers.AuthHandler
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	container := &AppContainer{
		DB:     db,
		Config: cfg,
	}

	container.initRedis(cfg)
	container.initAuth(cfg)
	container.initAudit(cfg)
	container.initSecurity(cfg)
	container.initWorker(cfg)

	return container, nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Audit: auditHandlers.NewAuditHandler(c.QueryService, c.StreamHub),
		Auth:  authHandlers.NewAuthHandler(c.JWTService, c.IdentityProvider, c.Guard, c.Ledger),
	}
}

// --- 内部初始化方法 ---

func (c *AppContainer) initRedis(cfg *config.Config) {
	rdb, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 不可用时降级：枚举缓存走内存，令牌黑名单失效（fail-open）
		logger.Warn("Redis 不可用，缓存与令牌黑名单降级为内存实现", zap.Error(err))
		c.RedisClient = nil
		c.CacheStore = cache.NewMemoryStore()
		return
	}

	c.RedisClient = rdb
	c.CacheStore = cache.NewRedisStore(rdb)

	if cfg.Queue.Enabled {
		c.QueueClient = queue.NewClient(cfg.Redis)
	}
}

func (c *AppContainer) initAuth(cfg *config.Config) {
	jwtSecret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if jwtSecret == "" {
		jwtSecret = strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	}
	if jwtSecret == "" {
		if strings.EqualFold(cfg.Server.Mode, "release") {
			logger.Fatal("JWT 密钥未配置，生产环境禁止使用默认密钥")
		}
		jwtSecret = "default_jwt_secret_key_change_in_production"
		logger.Warn("JWT 密钥未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}

	issuer := cfg.Auth.JWTIssuer
	if issuer == "" {
		issuer = "ClinicCore"
	}
	accessExpiry := time.Duration(cfg.Auth.AccessTokenMinutes) * time.Minute
	c.JWTService = auth.NewJWTService(jwtSecret, issuer, accessExpiry, c.RedisClient)

	if url := strings.TrimSpace(cfg.Auth.IdentityProviderURL); url != "" {
		timeout := time.Duration(cfg.Auth.IdentityTimeoutSeconds) * time.Second
		c.IdentityProvider = auth.NewRemoteIdentityProvider(url, timeout)
	} else {
		logger.Warn("未配置身份校验服务地址，使用静态身份提供者（仅限开发环境）")
		c.IdentityProvider = &auth.StaticIdentityProvider{}
	}

	c.AuthLimiter = middleware.NewRateLimiter(middleware.AuthRateLimiterConfig())
}

func (c *AppContainer) initAudit(cfg *config.Config) {
	c.Ledger = auditpkg.NewLedger(c.DB)

	if cfg.Audit.StreamEnabled {
		c.StreamHub = notification.NewStreamHub()
		c.Ledger.SetPublisher(c.StreamHub)
	}

	c.QueryService = auditpkg.NewQueryService(
		c.DB,
		cfg.Security.Location(),
		c.CacheStore,
		cfg.Audit.DistinctCacheTTLDuration(),
	)
}

func (c *AppContainer) initSecurity(cfg *config.Config) {
	policy := security.Policy{
		MaxAttempts:  cfg.Security.MaxLoginAttempts,
		LockDuration: cfg.Security.LockDuration(),
	}
	c.Guard = security.NewLoginGuard(c.DB, c.Ledger, policy)

	if c.QueueClient != nil {
		c.Guard.SetNotifier(queue.NewAlertNotifier(c.QueueClient))
	}
}

func (c *AppContainer) initWorker(cfg *config.Config) {
	if !cfg.Queue.Enabled || c.RedisClient == nil {
		logger.Warn("异步告警任务已禁用，原因：队列未启用或 Redis 未连接")
		return
	}
	c.WorkerServer = worker.NewServer(cfg.Redis, cfg.Queue, &notification.LogMailer{}, logger.Get())
}

// Close 释放容器持有的资源
func (c *AppContainer) Close() {
	if c.StreamHub != nil {
		c.StreamHub.Close()
	}
	if ms, ok := c.CacheStore.(*cache.MemoryStore); ok {
		ms.Close()
	}
	if c.QueueClient != nil {
		_ = c.QueueClient.Close()
	}
	if c.AuthLimiter != nil {
		c.AuthLimiter.Stop()
	}
	if c.RedisClient != nil {
		_ = infra.CloseRedis()
	}
}
