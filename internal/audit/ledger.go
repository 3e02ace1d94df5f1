package audit

import (
	"context"
	"fmt"
	"time"

	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/internal/models"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventPublisher 审计事件实时推送接口（WebSocket Hub 实现）
// 推送是尽力而为的，失败不影响审计写入。
type EventPublisher interface {
	PublishEvent(event *models.AuditEvent)
}

// AppendParams 追加审计事件的参数
type AppendParams struct {
	ActorID            string
	ActorRole          string
	ActorEmail         string
	EventType          EventType
	Description        string
	AffectedEntityID   string
	AffectedEntityType string
	ChangeDetails      map[string]interface{}
	SourceIP           string
}

// Ledger 仅追加的审计账本
// 写入失败直接向上返回（fail-closed），不重试、不吞错。
type Ledger struct {
	db        *gorm.DB
	now       func() time.Time
	publisher EventPublisher
}

// NewLedger 创建审计账本
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{
		db:  db,
		now: time.Now,
	}
}

// SetPublisher 设置实时推送端（可选）
func (l *Ledger) SetPublisher(p EventPublisher) {
	l.publisher = p
}

// Append 追加一条审计事件
func (l *Ledger) Append(ctx context.Context, p AppendParams) (*models.AuditEvent, error) {
	event, err := l.appendWith(ctx, l.db, p)
	if err != nil {
		return nil, err
	}
	l.Publish(event)
	return event, nil
}

// AppendInTx 在调用方事务内追加一条审计事件
// 调用方负责提交，并在提交成功后自行调用 Publish 推送。
func (l *Ledger) AppendInTx(ctx context.Context, tx *gorm.DB, p AppendParams) (*models.AuditEvent, error) {
	return l.appendWith(ctx, tx, p)
}

// Publish 将事件推送到实时监控端（尽力而为）
func (l *Ledger) Publish(events ...*models.AuditEvent) {
	if l.publisher == nil {
		return
	}
	for _, event := range events {
		if event != nil {
			l.publisher.PublishEvent(event)
		}
	}
}

func (l *Ledger) appendWith(ctx context.Context, db *gorm.DB, p AppendParams) (*models.AuditEvent, error) {
	if !p.EventType.IsValid() {
		return nil, fmt.Errorf("追加审计事件失败: 未知的事件类型 %q", p.EventType)
	}

	// 无法解析操作者或来源时使用哨兵值，保证事件仍可写入
	actorID := p.ActorID
	if actorID == "" {
		actorID = "unknown"
	}
	sourceIP := p.SourceIP
	if sourceIP == "" {
		sourceIP = "unknown"
	}
	description := p.Description
	if description == "" {
		description = GetEventDescription(p.EventType)
	}

	ts := l.now().UTC()
	event := &models.AuditEvent{
		ID:                 uuid.New().String(),
		ActorID:            actorID,
		ActorRole:          p.ActorRole,
		ActorEmail:         p.ActorEmail,
		EventType:          string(p.EventType),
		Description:        description,
		AffectedEntityID:   p.AffectedEntityID,
		AffectedEntityType: p.AffectedEntityType,
		ChangeDetails:      p.ChangeDetails,
		IntegrityHash:      ComputeIntegrityHash(actorID, p.EventType, p.AffectedEntityID, ts),
		Timestamp:          ts,
		SourceIP:           sourceIP,
	}

	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		metrics.AuditAppendFailuresTotal.Inc()
		logger.WithContext(ctx).Error("审计事件写入失败",
			zap.String("event_type", string(p.EventType)),
			zap.String("actor_id", actorID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("追加审计事件失败: %w", err)
	}

	metrics.AuditEventsTotal.WithLabelValues(string(p.EventType)).Inc()
	return event, nil
}

// ============================================================================
// 便捷封装：实体操作
// ============================================================================

// LogAccountCreated 记录账户创建事件
func (l *Ledger) LogAccountCreated(ctx context.Context, actorID, accountID, sourceIP string, details map[string]interface{}) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		EventType:          EventCreate,
		AffectedEntityID:   accountID,
		AffectedEntityType: EntityUsers,
		ChangeDetails:      details,
		SourceIP:           sourceIP,
	})
}

// LogAccountUpdated 记录账户更新事件
func (l *Ledger) LogAccountUpdated(ctx context.Context, actorID, accountID, sourceIP string, details map[string]interface{}) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		EventType:          EventUpdate,
		AffectedEntityID:   accountID,
		AffectedEntityType: EntityUsers,
		ChangeDetails:      details,
		SourceIP:           sourceIP,
	})
}

// LogAccountDeactivated 记录账户停用事件
func (l *Ledger) LogAccountDeactivated(ctx context.Context, actorID, accountID, sourceIP string) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		EventType:          EventDeactivate,
		AffectedEntityID:   accountID,
		AffectedEntityType: EntityUsers,
		SourceIP:           sourceIP,
	})
}

// LogAccountReactivated 记录账户重新启用事件
func (l *Ledger) LogAccountReactivated(ctx context.Context, actorID, accountID, sourceIP string) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		EventType:          EventReactivate,
		AffectedEntityID:   accountID,
		AffectedEntityType: EntityUsers,
		SourceIP:           sourceIP,
	})
}

// LogRecordUpdated 记录任意实体的字段变更，ChangeDetails 内含统一 diff
func (l *Ledger) LogRecordUpdated(ctx context.Context, actorID, entityType, entityID, field, before, after, sourceIP string) (*models.AuditEvent, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
	if err != nil {
		// diff 渲染失败不阻断审计写入
		logger.WithContext(ctx).Warn("变更 diff 渲染失败", zap.Error(err))
		diff = ""
	}

	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		EventType:          EventUpdate,
		AffectedEntityID:   entityID,
		AffectedEntityType: entityType,
		ChangeDetails: map[string]interface{}{
			"field":  field,
			"before": before,
			"after":  after,
			"diff":   diff,
		},
		SourceIP: sourceIP,
	})
}

// ============================================================================
// 便捷封装：认证事件
// ============================================================================

// LogLoginSuccess 记录登录成功事件
func (l *Ledger) LogLoginSuccess(ctx context.Context, actorID, email, sourceIP string) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		ActorEmail:         email,
		EventType:          EventLoginSuccess,
		AffectedEntityID:   actorID,
		AffectedEntityType: EntityUsers,
		SourceIP:           sourceIP,
	})
}

// LogLoginFailed 记录登录失败事件（操作者可能无法解析）
func (l *Ledger) LogLoginFailed(ctx context.Context, email, sourceIP, errorMessage string) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorEmail:         email,
		EventType:          EventLoginFailed,
		AffectedEntityType: EntityAuth,
		ChangeDetails: map[string]interface{}{
			"submitted_email": email,
			"error":           errorMessage,
		},
		SourceIP: sourceIP,
	})
}

// LogLogout 记录登出事件
func (l *Ledger) LogLogout(ctx context.Context, actorID, email, sourceIP string) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            actorID,
		ActorEmail:         email,
		EventType:          EventLogout,
		AffectedEntityID:   actorID,
		AffectedEntityType: EntityUsers,
		SourceIP:           sourceIP,
	})
}

// LogAccountLocked 记录账户锁定事件
func (l *Ledger) LogAccountLocked(ctx context.Context, accountID, email, sourceIP string, attempts int, lockedUntil time.Time) (*models.AuditEvent, error) {
	return l.Append(ctx, AppendParams{
		ActorID:            accountID,
		ActorEmail:         email,
		EventType:          EventAccountLocked,
		AffectedEntityID:   accountID,
		AffectedEntityType: EntityUsers,
		ChangeDetails: map[string]interface{}{
			"failed_attempts": attempts,
			"locked_until":    lockedUntil.UTC().Format(time.RFC3339),
		},
		SourceIP: sourceIP,
	})
}
