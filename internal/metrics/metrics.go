package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicore_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinicore_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
		},
		[]string{"method", "path"},
	)

	// APIRequestSize 请求体大小（字节）
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinicore_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: prometheus.ExponentialBuckets(128, 4, 6),
		},
		[]string{"method", "path"},
	)

	// APIResponseSize 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinicore_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: prometheus.ExponentialBuckets(128, 4, 6),
		},
		[]string{"method", "path"},
	)
)

// 审计账本指标
var (
	// AuditEventsTotal 审计事件写入总数（按事件类型）
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicore_audit_events_total",
			Help: "审计事件写入总数",
		},
		[]string{"event_type"},
	)

	// AuditAppendFailuresTotal 审计事件写入失败总数
	AuditAppendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinicore_audit_append_failures_total",
			Help: "审计事件写入失败总数",
		},
	)

	// AuditQueryDuration 审计查询耗时（秒）
	AuditQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinicore_audit_query_duration_seconds",
			Help:    "审计查询耗时分布",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	// AuditStreamConnections WebSocket 实时监控在线连接数
	AuditStreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinicore_audit_stream_connections",
			Help: "审计实时推送在线连接数",
		},
	)
)

// 账户安全指标
var (
	// LoginAttemptsTotal 登录尝试总数（按结果）
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicore_login_attempts_total",
			Help: "登录尝试总数",
		},
		[]string{"outcome"},
	)

	// AccountLockoutsTotal 账户锁定总数
	AccountLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinicore_account_lockouts_total",
			Help: "账户因连续登录失败被锁定的总数",
		},
	)

	// SecurityAlertsEnqueuedTotal 安全告警任务入队总数
	SecurityAlertsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicore_security_alerts_enqueued_total",
			Help: "安全告警任务入队总数",
		},
		[]string{"status"}, // status: ok, failed
	)
)

// 缓存指标
var (
	// CacheHitsTotal 缓存命中数
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicore_cache_hits_total",
			Help: "缓存命中总数",
		},
		[]string{"cache_type"},
	)

	// CacheMissesTotal 缓存未命中数
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicore_cache_misses_total",
			Help: "缓存未命中总数",
		},
		[]string{"cache_type"},
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clinicore_build_info",
			Help: "ClinicCore 构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}
