package security

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"clinicore/internal/audit"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AlertNotifier 账户锁定告警通知接口（异步任务队列实现）
// 通知是尽力而为的，入队失败只记日志，不影响锁定本身。
type AlertNotifier interface {
	NotifyAccountLocked(ctx context.Context, email string, attempts int, lockedUntil time.Time, sourceIP string) error
}

// Policy 登录安全策略
type Policy struct {
	MaxAttempts  int           // 连续失败锁定阈值
	LockDuration time.Duration // 锁定时长
}

// DefaultPolicy 默认策略: 3 次失败锁定 15 分钟
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		LockDuration: 15 * time.Minute,
	}
}

// LoginGuard 登录尝试守卫
// 每个账户的计数状态机变更都在事务内以行级锁串行化，
// 并发尝试不会出现读-改-写竞争导致的计数丢失。
type LoginGuard struct {
	db       *gorm.DB
	ledger   *audit.Ledger
	policy   Policy
	notifier AlertNotifier
	now      func() time.Time
}

// NewLoginGuard 创建登录守卫
func NewLoginGuard(db *gorm.DB, ledger *audit.Ledger, policy Policy) *LoginGuard {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = DefaultPolicy().LockDuration
	}
	return &LoginGuard{
		db:     db,
		ledger: ledger,
		policy: policy,
		now:    time.Now,
	}
}

// SetNotifier 设置锁定告警通知端（可选）
func (g *LoginGuard) SetNotifier(n AlertNotifier) {
	g.notifier = n
}

// Policy 当前生效的安全策略
func (g *LoginGuard) Policy() Policy {
	return g.policy
}

// lockAccount 以行级锁加载账户
// SQLite 不支持 FOR UPDATE 语法，但其写事务本身串行，锁子句仅在 PostgreSQL 生效。
func (g *LoginGuard) lockAccount(tx *gorm.DB, email string) (*models.Account, error) {
	q := tx.Where("email = ?", email)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var acct models.Account
	if err := q.First(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// Evaluate 登录前评估账户是否可以继续尝试
// 停用账户返回 AccountDisabled（终态，凭证正确与否都不放行）；
// 锁定窗口内返回 Blocked；锁定已过期则惰性清零并放行；
// 未知邮箱按可继续处理（与存在的账户行为一致，防枚举）。
func (g *LoginGuard) Evaluate(ctx context.Context, email string) (*Outcome, error) {
	out := &Outcome{Kind: OutcomeProceed}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := g.lockAccount(tx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if !acct.IsActive() {
			out.Kind = OutcomeAccountDisabled
			return nil
		}

		now := g.now().UTC()
		if acct.IsLockedAt(now) {
			out.Kind = OutcomeBlocked
			out.Attempts = acct.FailedLoginAttempts
			out.LockedUntil = acct.LockedUntil
			out.RemainingSeconds = remainingSeconds(now, *acct.LockedUntil)
			return nil
		}

		// 锁定已过期：在同一行锁内清零计数并解除锁定（惰性过期，无后台任务）
		if acct.LockedUntil != nil {
			return tx.Model(acct).Updates(map[string]interface{}{
				"failed_login_attempts": 0,
				"locked_until":          nil,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("评估登录状态失败: %w", err)
	}
	return out, nil
}

// RecordFailure 记录一次登录失败
// 计数自增、锁定判定与审计写入在同一事务内完成；
// 事务提交失败时计数与审计事件一起回滚，不会出现只有其一的状态。
func (g *LoginGuard) RecordFailure(ctx context.Context, email, sourceIP, errorMessage string) (*Outcome, error) {
	out := &Outcome{}
	var published []*models.AuditEvent

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := g.lockAccount(tx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 未知邮箱：仍然留痕，不维护计数，对外表现与普通失败一致
			event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorEmail:         email,
				EventType:          audit.EventLoginFailed,
				AffectedEntityType: audit.EntityAuth,
				ChangeDetails: map[string]interface{}{
					"submitted_email": email,
					"error":           errorMessage,
				},
				SourceIP: sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}
			published = append(published, event)
			out.Kind = OutcomeUnauthorized
			out.RemainingAttempts = g.policy.MaxAttempts - 1
			out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
			return nil
		}
		if err != nil {
			return err
		}

		now := g.now().UTC()

		// 停用账户不维护计数
		if !acct.IsActive() {
			event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorID:            acct.ID,
				ActorEmail:         acct.Email,
				ActorRole:          acct.Role,
				EventType:          audit.EventLoginFailed,
				Description:        "登录失败: 账户已停用",
				AffectedEntityID:   acct.ID,
				AffectedEntityType: audit.EntityUsers,
				SourceIP:           sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}
			published = append(published, event)
			out.Kind = OutcomeAccountDisabled
			out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
			return nil
		}

		// 并发路径下可能刚被其他请求锁定
		if acct.IsLockedAt(now) {
			event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorID:            acct.ID,
				ActorEmail:         acct.Email,
				ActorRole:          acct.Role,
				EventType:          audit.EventLoginFailedDetailed,
				Description:        "登录失败: 账户处于锁定窗口内",
				AffectedEntityID:   acct.ID,
				AffectedEntityType: audit.EntityUsers,
				ChangeDetails: map[string]interface{}{
					"failed_attempts": acct.FailedLoginAttempts,
					"error":           errorMessage,
				},
				SourceIP: sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}
			published = append(published, event)
			out.Kind = OutcomeBlocked
			out.Attempts = acct.FailedLoginAttempts
			out.LockedUntil = acct.LockedUntil
			out.RemainingSeconds = remainingSeconds(now, *acct.LockedUntil)
			out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
			return nil
		}

		attempts := acct.FailedLoginAttempts + 1

		if attempts >= g.policy.MaxAttempts {
			// 达到阈值：设置锁定窗口，锁定事件与计数更新同事务提交
			lockedUntil := now.Add(g.policy.LockDuration)
			if err := tx.Model(acct).Updates(map[string]interface{}{
				"failed_login_attempts": attempts,
				"locked_until":          lockedUntil,
			}).Error; err != nil {
				return err
			}

			failEvent, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorID:            acct.ID,
				ActorEmail:         acct.Email,
				ActorRole:          acct.Role,
				EventType:          audit.EventLoginFailedDetailed,
				AffectedEntityID:   acct.ID,
				AffectedEntityType: audit.EntityUsers,
				ChangeDetails: map[string]interface{}{
					"failed_attempts": attempts,
					"error":           errorMessage,
				},
				SourceIP: sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}
			lockEvent, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorID:            acct.ID,
				ActorEmail:         acct.Email,
				ActorRole:          acct.Role,
				EventType:          audit.EventAccountLocked,
				AffectedEntityID:   acct.ID,
				AffectedEntityType: audit.EntityUsers,
				ChangeDetails: map[string]interface{}{
					"failed_attempts": attempts,
					"locked_until":    lockedUntil.Format(time.RFC3339),
				},
				SourceIP: sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}

			published = append(published, failEvent, lockEvent)
			out.Kind = OutcomeLocked
			out.Attempts = attempts
			out.LockedUntil = &lockedUntil
			out.RemainingSeconds = int(g.policy.LockDuration.Seconds())
			out.AuditEventIDs = append(out.AuditEventIDs, failEvent.ID, lockEvent.ID)
			return nil
		}

		// 未达阈值：仅自增计数
		if err := tx.Model(acct).Update("failed_login_attempts", attempts).Error; err != nil {
			return err
		}
		event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
			ActorID:            acct.ID,
			ActorEmail:         acct.Email,
			ActorRole:          acct.Role,
			EventType:          audit.EventLoginFailed,
			AffectedEntityID:   acct.ID,
			AffectedEntityType: audit.EntityUsers,
			ChangeDetails: map[string]interface{}{
				"failed_attempts": attempts,
				"error":           errorMessage,
			},
			SourceIP: sourceIP,
		})
		if appendErr != nil {
			return appendErr
		}
		published = append(published, event)
		out.Kind = OutcomeUnauthorized
		out.Attempts = attempts
		out.RemainingAttempts = g.policy.MaxAttempts - attempts
		out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("记录登录失败出错: %w", err)
	}

	g.ledger.Publish(published...)
	metrics.LoginAttemptsTotal.WithLabelValues(string(out.Kind)).Inc()

	if out.Kind == OutcomeLocked {
		metrics.AccountLockoutsTotal.Inc()
		g.notifyLocked(ctx, email, out, sourceIP)
	}
	return out, nil
}

// RecordSuccess 记录一次登录成功：清零计数、解除锁定、写入审计事件
// 停用账户即使凭证校验通过也不放行：留痕 LOGIN_FAILED，状态保持不变。
func (g *LoginGuard) RecordSuccess(ctx context.Context, email, sourceIP string) (*Outcome, error) {
	out := &Outcome{Kind: OutcomeSuccess}
	var published []*models.AuditEvent

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := g.lockAccount(tx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 理论上不该发生（凭证校验已通过），仍然留痕
			event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorEmail:         email,
				EventType:          audit.EventLoginSuccess,
				AffectedEntityType: audit.EntityAuth,
				SourceIP:           sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}
			published = append(published, event)
			out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
			return nil
		}
		if err != nil {
			return err
		}

		if !acct.IsActive() {
			event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
				ActorID:            acct.ID,
				ActorEmail:         acct.Email,
				ActorRole:          acct.Role,
				EventType:          audit.EventLoginFailed,
				Description:        "登录失败: 账户已停用",
				AffectedEntityID:   acct.ID,
				AffectedEntityType: audit.EntityUsers,
				SourceIP:           sourceIP,
			})
			if appendErr != nil {
				return appendErr
			}
			published = append(published, event)
			out.Kind = OutcomeAccountDisabled
			out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
			return nil
		}

		now := g.now().UTC()
		if err := tx.Model(acct).Updates(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"last_login_at":         now,
			"last_login_ip":         sourceIP,
		}).Error; err != nil {
			return err
		}

		event, appendErr := g.ledger.AppendInTx(ctx, tx, audit.AppendParams{
			ActorID:            acct.ID,
			ActorEmail:         acct.Email,
			ActorRole:          acct.Role,
			EventType:          audit.EventLoginSuccess,
			AffectedEntityID:   acct.ID,
			AffectedEntityType: audit.EntityUsers,
			SourceIP:           sourceIP,
		})
		if appendErr != nil {
			return appendErr
		}
		published = append(published, event)
		out.AuditEventIDs = append(out.AuditEventIDs, event.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("记录登录成功出错: %w", err)
	}

	g.ledger.Publish(published...)
	metrics.LoginAttemptsTotal.WithLabelValues(string(out.Kind)).Inc()
	return out, nil
}

// CheckLockStatus 查询账户锁定状态（只读）
// 未知邮箱与未锁定账户返回相同形状，避免通过此接口探测账户是否存在。
func (g *LoginGuard) CheckLockStatus(ctx context.Context, email string) (*LockStatus, error) {
	var acct models.Account
	err := g.db.WithContext(ctx).Where("email = ?", email).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &LockStatus{IsLocked: false, Message: "OK"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询锁定状态失败: %w", err)
	}

	now := g.now().UTC()
	if !acct.IsLockedAt(now) {
		return &LockStatus{IsLocked: false, Message: "OK"}, nil
	}

	return &LockStatus{
		IsLocked:         true,
		Message:          "账户已锁定，请稍后再试",
		LockedUntil:      acct.LockedUntil,
		Attempts:         acct.FailedLoginAttempts,
		RemainingSeconds: remainingSeconds(now, *acct.LockedUntil),
	}, nil
}

func (g *LoginGuard) notifyLocked(ctx context.Context, email string, out *Outcome, sourceIP string) {
	if g.notifier == nil || out.LockedUntil == nil {
		return
	}
	if err := g.notifier.NotifyAccountLocked(ctx, email, out.Attempts, *out.LockedUntil, sourceIP); err != nil {
		// 告警通知失败不影响锁定结果（降级成功）
		metrics.SecurityAlertsEnqueuedTotal.WithLabelValues("failed").Inc()
		logger.WithContext(ctx).Warn("账户锁定告警入队失败",
			zap.String("email", email), zap.Error(err))
		return
	}
	metrics.SecurityAlertsEnqueuedTotal.WithLabelValues("ok").Inc()
}

func remainingSeconds(now, until time.Time) int {
	secs := int(math.Ceil(until.Sub(now).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}
