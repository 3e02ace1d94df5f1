package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
	LogSQL          bool   `mapstructure:"log_sql"`           // 是否输出 SQL 执行日志
	SlowQueryMs     int    `mapstructure:"slow_query_ms"`     // 慢查询告警阈值（毫秒）
}

// SlowQueryThreshold 慢查询阈值，非法值回退 200ms
func (c *DatabaseConfig) SlowQueryThreshold() time.Duration {
	if c.SlowQueryMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接模式: standalone(单节点), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	// 单节点模式配置
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 哨兵模式配置
	MasterName       string   `mapstructure:"master_name"`       // 主节点名称
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`    // 哨兵地址列表
	SentinelPassword string   `mapstructure:"sentinel_password"` // 哨兵密码（可选）

	// 集群模式配置
	ClusterAddrs []string `mapstructure:"cluster_addrs"` // 集群节点地址列表

	// 通用配置
	PoolSize     int `mapstructure:"pool_size"`      // 连接池大小
	MinIdleConns int `mapstructure:"min_idle_conns"` // 最小空闲连接数
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// SecurityConfig 账户安全策略配置
type SecurityConfig struct {
	MaxLoginAttempts    int `mapstructure:"max_login_attempts"`    // 连续失败锁定阈值
	LockDurationMinutes int `mapstructure:"lock_duration_minutes"` // 锁定时长（分钟）
	TimezoneOffsetHours int `mapstructure:"timezone_offset_hours"` // 机构本地时区相对 UTC 的偏移（小时）
}

// LockDuration 返回锁定时长
func (c *SecurityConfig) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMinutes) * time.Minute
}

// Location 返回机构本地时区
func (c *SecurityConfig) Location() *time.Location {
	name := fmt.Sprintf("UTC%+d", c.TimezoneOffsetHours)
	return time.FixedZone(name, c.TimezoneOffsetHours*3600)
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTIssuer          string `mapstructure:"jwt_issuer"`
	AccessTokenMinutes int    `mapstructure:"access_token_minutes"` // 访问令牌有效期（分钟）

	// 外部身份校验服务（凭证校验不在本服务内完成）
	IdentityProviderURL    string `mapstructure:"identity_provider_url"`
	IdentityTimeoutSeconds int    `mapstructure:"identity_timeout_seconds"`
}

// AuditConfig 审计模块配置
type AuditConfig struct {
	StreamEnabled    bool   `mapstructure:"stream_enabled"`     // 是否开启 WebSocket 实时推送
	DistinctCacheTTL string `mapstructure:"distinct_cache_ttl"` // 枚举查询缓存时长(如"5m")
}

// DistinctCacheTTLDuration 解析枚举缓存时长，非法值回退 5 分钟
func (c *AuditConfig) DistinctCacheTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.DistinctCacheTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enabled     bool `mapstructure:"enabled"`     // 是否启用异步告警任务
	Concurrency int  `mapstructure:"concurrency"` // Worker 并发数
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP") // 环境变量前缀：APP_
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	// 安全策略默认值（配置缺省时按此执行）
	v.SetDefault("security.max_login_attempts", 3)
	v.SetDefault("security.lock_duration_minutes", 15)
	v.SetDefault("security.timezone_offset_hours", -5)
	v.SetDefault("audit.distinct_cache_ttl", "5m")
	v.SetDefault("database.slow_query_ms", 200)
	v.SetDefault("auth.access_token_minutes", 60)
	v.SetDefault("queue.concurrency", 4)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
