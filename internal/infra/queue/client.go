package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinicore/internal/config"
	"clinicore/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueSecurityAlert(payload tasks.SecurityAlertPayload) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueSecurityAlert(payload tasks.SecurityAlertPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeSecurityAlert, data)

	// 告警邮件允许重试，投递失败不回滚锁定本身
	info, err := c.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(1*time.Minute),
		asynq.Queue("alerts"), // 安全告警专用队列
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	_ = info // 忽略 info
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}

// ============================================================================
// 适配器：把队列客户端接到登录守卫的告警通知接口上
// ============================================================================

// AlertNotifier 将锁定告警转换为异步任务
type AlertNotifier struct {
	client Client
}

// NewAlertNotifier 创建告警通知适配器
func NewAlertNotifier(client Client) *AlertNotifier {
	return &AlertNotifier{client: client}
}

// NotifyAccountLocked 将锁定告警入队
func (n *AlertNotifier) NotifyAccountLocked(ctx context.Context, email string, attempts int, lockedUntil time.Time, sourceIP string) error {
	return n.client.EnqueueSecurityAlert(tasks.SecurityAlertPayload{
		Email:       email,
		Attempts:    attempts,
		LockedUntil: lockedUntil,
		SourceIP:    sourceIP,
	})
}
