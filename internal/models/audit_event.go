package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditEventImmutable 审计事件为仅追加数据，禁止修改或删除
var ErrAuditEventImmutable = errors.New("审计事件不可修改或删除")

// AuditEvent 审计事件（仅追加）
// Seq 为存储层自增主键，仅用于同一时间戳下的插入顺序排序；
// 对外暴露的主键是 UUID 形式的 ID。
type AuditEvent struct {
	Seq                int64             `gorm:"primaryKey;autoIncrement" json:"-"`
	ID                 string            `gorm:"type:uuid;uniqueIndex;not null" json:"id"`
	ActorID            string            `gorm:"type:varchar(100);not null;index:idx_audit_actor" json:"actor_id"`
	ActorRole          string            `gorm:"type:varchar(50)" json:"actor_role,omitempty"`
	ActorEmail         string            `gorm:"type:varchar(255)" json:"actor_email,omitempty"`
	EventType          string            `gorm:"type:varchar(50);not null;index:idx_audit_event_type" json:"event_type"`
	Description        string            `gorm:"type:text" json:"description,omitempty"`
	AffectedEntityID   string            `gorm:"type:varchar(100);index:idx_audit_entity" json:"affected_entity_id"`
	AffectedEntityType string            `gorm:"type:varchar(50);index:idx_audit_entity_type" json:"affected_entity_type"`
	ChangeDetails      datatypes.JSONMap `gorm:"type:jsonb" json:"change_details,omitempty"`
	IntegrityHash      string            `gorm:"type:varchar(64);not null" json:"integrity_hash"`
	Timestamp          time.Time         `gorm:"not null;index:idx_audit_timestamp" json:"timestamp"`
	SourceIP           string            `gorm:"type:varchar(100)" json:"source_ip"`
}

// BeforeCreate GORM 钩子：创建前设置 ID 和时间戳
func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate GORM 钩子：拒绝任何更新路径
func (e *AuditEvent) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditEventImmutable
}

// BeforeDelete GORM 钩子：拒绝任何删除路径
func (e *AuditEvent) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditEventImmutable
}

// TableName 指定表名
func (AuditEvent) TableName() string {
	return "audit_events"
}
