package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"clinicore/internal/notification"
	"clinicore/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AlertHandler 安全告警任务处理器
type AlertHandler struct {
	mailer notification.Mailer
	logger *zap.Logger
}

// NewAlertHandler 创建告警处理器
func NewAlertHandler(mailer notification.Mailer, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		mailer: mailer,
		logger: logger,
	}
}

// HandleSecurityAlert 处理账户锁定告警任务
// 返回 error 时由 asynq 按任务重试策略重新投递
func (h *AlertHandler) HandleSecurityAlert(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SecurityAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("解析告警任务载荷失败: %w", err)
	}

	h.logger.Info("处理账户锁定告警",
		zap.String("email", payload.Email),
		zap.Int("attempts", payload.Attempts),
		zap.Time("locked_until", payload.LockedUntil),
	)

	if err := h.mailer.SendLockAlert(ctx, payload.Email, payload.Attempts, payload.LockedUntil, payload.SourceIP); err != nil {
		return fmt.Errorf("发送锁定告警邮件失败: %w", err)
	}
	return nil
}
