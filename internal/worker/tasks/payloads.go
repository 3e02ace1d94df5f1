package tasks

import "time"

// Task Types
const (
	TypeSecurityAlert = "security:lock_alert"
)

// SecurityAlertPayload 账户锁定告警任务载荷
type SecurityAlertPayload struct {
	Email       string    `json:"email"`
	Attempts    int       `json:"attempts"`
	LockedUntil time.Time `json:"locked_until"`
	SourceIP    string    `json:"source_ip"`
}
