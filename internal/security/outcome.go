package security

import "time"

// OutcomeKind 登录尝试的预期结果类型
// 预期结果（锁定、凭证错误、账户停用等）通过类型化结果表达，不走 error 通道；
// error 仅用于存储层故障。
type OutcomeKind string

const (
	OutcomeProceed         OutcomeKind = "proceed"          // 可继续校验凭证
	OutcomeSuccess         OutcomeKind = "success"          // 登录成功
	OutcomeUnauthorized    OutcomeKind = "unauthorized"     // 凭证错误，未达锁定阈值
	OutcomeLocked          OutcomeKind = "locked"           // 本次失败触发锁定
	OutcomeBlocked         OutcomeKind = "blocked"          // 已处于锁定窗口内
	OutcomeAccountDisabled OutcomeKind = "account_disabled" // 账户已停用
)

// Outcome 登录尝试结果
type Outcome struct {
	Kind              OutcomeKind `json:"kind"`
	Attempts          int         `json:"attempts"`                    // 当前连续失败次数
	RemainingAttempts int         `json:"remaining_attempts"`          // 距锁定还剩的尝试次数
	LockedUntil       *time.Time  `json:"locked_until,omitempty"`      // 锁定截止时刻（UTC）
	RemainingSeconds  int         `json:"remaining_seconds,omitempty"` // 锁定剩余秒数
	AuditEventIDs     []string    `json:"audit_event_ids,omitempty"`   // 本次产生的审计事件
}

// LockStatus 账户锁定状态查询结果
// 未知邮箱与未锁定账户返回同样的形状，避免账户枚举。
type LockStatus struct {
	IsLocked         bool       `json:"is_locked"`
	Message          string     `json:"message"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	Attempts         int        `json:"attempts,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds,omitempty"`
}
