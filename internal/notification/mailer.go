package notification

import (
	"context"
	"time"

	"clinicore/internal/logger"

	"go.uber.org/zap"
)

// Mailer 安全告警邮件发送接口
// 邮件投递是外部协作方的职责，本服务只定义契约；
// 发送失败由任务队列按重试策略处理。
type Mailer interface {
	SendLockAlert(ctx context.Context, email string, attempts int, lockedUntil time.Time, sourceIP string) error
}

// LogMailer 仅写日志的实现，用于本地开发与未配置邮件网关的环境
type LogMailer struct{}

// SendLockAlert 记录告警内容到日志
func (m *LogMailer) SendLockAlert(ctx context.Context, email string, attempts int, lockedUntil time.Time, sourceIP string) error {
	logger.WithContext(ctx).Info("账户锁定告警（日志模式）",
		zap.String("email", email),
		zap.Int("failed_attempts", attempts),
		zap.Time("locked_until", lockedUntil),
		zap.String("source_ip", sourceIP),
	)
	return nil
}
