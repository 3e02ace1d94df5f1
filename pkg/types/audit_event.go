package types

import "time"

// AuditEventView 审计事件展示模型
// 纯数据结构,不依赖任何internal包
// Timestamp 为 UTC 存储值, LocalTimestamp 是查询时按机构时区换算的展示值
type AuditEventView struct {
	ID                 string                 `json:"id"`
	ActorID            string                 `json:"actor_id"`
	ActorRole          string                 `json:"actor_role,omitempty"`
	ActorEmail         string                 `json:"actor_email,omitempty"`
	EventType          string                 `json:"event_type"`
	Description        string                 `json:"description,omitempty"`
	AffectedEntityID   string                 `json:"affected_entity_id"`
	AffectedEntityType string                 `json:"affected_entity_type"`
	ChangeDetails      map[string]interface{} `json:"change_details,omitempty"`
	IntegrityHash      string                 `json:"integrity_hash"`
	Timestamp          time.Time              `json:"timestamp"`
	LocalTimestamp     time.Time              `json:"local_timestamp"`
	SourceIP           string                 `json:"source_ip"`
}
