package audit

import (
	"github.com/gin-gonic/gin"
)

// ClientIP 获取客户端 IP 地址
// 审计事件的 SourceIP 统一经此解析，代理场景优先取转发头。
func ClientIP(c *gin.Context) string {
	// 优先从 X-Forwarded-For 获取
	clientIP := c.GetHeader("X-Forwarded-For")
	if clientIP != "" {
		return clientIP
	}

	// 其次从 X-Real-IP 获取
	clientIP = c.GetHeader("X-Real-IP")
	if clientIP != "" {
		return clientIP
	}

	// 最后使用 RemoteAddr
	return c.ClientIP()
}
