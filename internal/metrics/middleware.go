package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// 探针与指标端点本身不计入请求指标，避免监控噪声
var skipPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// PrometheusMiddleware Prometheus 指标收集中间件
// 记录 HTTP 请求的 QPS、延迟、请求与响应大小
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, skip := skipPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		// 提前取请求体长度，后续中间件可能消费请求体
		requestSize := c.Request.ContentLength

		c.Next()

		duration := time.Since(start).Seconds()
		path := normalizePath(c)
		status := strconv.Itoa(c.Writer.Status())

		APIRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if requestSize > 0 {
			APIRequestSize.WithLabelValues(c.Request.Method, path).Observe(float64(requestSize))
		}
		if respSize := c.Writer.Size(); respSize >= 0 {
			APIResponseSize.WithLabelValues(c.Request.Method, path).Observe(float64(respSize))
		}
	}
}

// normalizePath 使用路由模板作为指标标签（如 /api/audit/:id），
// 未匹配到路由时回退为实际路径，避免标签基数失控。
func normalizePath(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return path
}
