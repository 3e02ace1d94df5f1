package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 账户状态
const (
	AccountStatusActive   = "active"   // 正常
	AccountStatusInactive = "inactive" // 已停用
)

// Account 诊所员工账户
// FailedLoginAttempts 与 LockedUntil 构成账户安全状态：
// 连续失败达到阈值后设置 LockedUntil，解锁时计数归零、LockedUntil 置空。
type Account struct {
	ID                  string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email               string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName            string     `gorm:"type:varchar(255)" json:"full_name"`
	Role                string     `gorm:"type:varchar(50);not null" json:"role"` // admin, auditor, dentist, assistant
	Status              string     `gorm:"type:varchar(20);not null;default:active" json:"status"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP         string     `gorm:"type:varchar(100)" json:"last_login_ip,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
	return nil
}

// TableName 指定表名
func (Account) TableName() string {
	return "accounts"
}

// IsActive 账户是否可用
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// IsLockedAt 在给定时刻账户是否处于锁定窗口内
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
