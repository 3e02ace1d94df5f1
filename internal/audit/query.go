package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinicore/internal/cache"
	"clinicore/internal/common"
	"clinicore/internal/metrics"
	"clinicore/internal/models"
	"clinicore/pkg/types"

	"gorm.io/gorm"
)

// 查询层错误
var (
	// ErrEventNotFound 审计事件不存在
	ErrEventNotFound = errors.New("审计事件不存在")
	// ErrInvalidRange 区间查询要求 from 严格早于 to
	ErrInvalidRange = errors.New("时间范围无效: fromTime 必须早于 toTime")
)

// 枚举缓存键
const (
	cacheKeyEventTypes  = "audit:distinct:event_types"
	cacheKeyEntityTypes = "audit:distinct:entity_types"
)

// Filter 审计事件查询条件，零值字段不参与过滤
type Filter struct {
	ActorID            string     `json:"actor_id"`
	EventType          string     `json:"event_type"`
	AffectedEntityID   string     `json:"affected_entity_id"`
	AffectedEntityType string     `json:"affected_entity_type"`
	FromTime           *time.Time `json:"from_time"`
	ToTime             *time.Time `json:"to_time"`
}

// QueryService 审计账本只读查询服务
type QueryService struct {
	db       *gorm.DB
	loc      *time.Location // 机构本地时区，裸时间戳按此解释
	store    cache.Store
	cacheTTL time.Duration
}

// NewQueryService 创建查询服务
func NewQueryService(db *gorm.DB, loc *time.Location, store cache.Store, cacheTTL time.Duration) *QueryService {
	if loc == nil {
		loc = time.FixedZone("UTC-5", -5*3600)
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &QueryService{
		db:       db,
		loc:      loc,
		store:    store,
		cacheTTL: cacheTTL,
	}
}

// Location 机构本地时区
func (s *QueryService) Location() *time.Location {
	return s.loc
}

// ParseTimestamp 解析查询参数中的时间戳
// 带时区信息的按原样解析；裸时间戳按机构本地时区解释，随后统一转为 UTC。
func (s *QueryService) ParseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	naiveLayouts := []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, s.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳: %q", value)
}

// ListEvents 按条件分页查询审计事件
// 排序固定: timestamp DESC, seq DESC（同一时间戳按插入顺序倒序）
func (s *QueryService) ListEvents(ctx context.Context, filter Filter, page common.PageRequest) ([]types.AuditEventView, int64, error) {
	started := time.Now()
	defer func() {
		metrics.AuditQueryDuration.WithLabelValues("list").Observe(time.Since(started).Seconds())
	}()

	var events []models.AuditEvent
	var total int64

	db := s.db.WithContext(ctx).Model(&models.AuditEvent{})

	// 应用过滤条件
	if filter.ActorID != "" {
		db = db.Where("actor_id = ?", filter.ActorID)
	}
	if filter.EventType != "" {
		db = db.Where("event_type = ?", filter.EventType)
	}
	if filter.AffectedEntityID != "" {
		db = db.Where("affected_entity_id = ?", filter.AffectedEntityID)
	}
	if filter.AffectedEntityType != "" {
		db = db.Where("affected_entity_type = ?", filter.AffectedEntityType)
	}
	if filter.FromTime != nil {
		db = db.Where("timestamp >= ?", filter.FromTime.UTC())
	}
	if filter.ToTime != nil {
		db = db.Where("timestamp <= ?", filter.ToTime.UTC())
	}

	// 统计总数
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计审计事件失败: %w", err)
	}

	// 应用分页与排序
	err := db.Order("timestamp DESC").
		Order("seq DESC").
		Offset(page.GetSkip()).
		Limit(page.GetLimit()).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询审计事件失败: %w", err)
	}

	return s.toViews(events), total, nil
}

// GetEvent 通过 ID 获取单条审计事件
func (s *QueryService) GetEvent(ctx context.Context, id string) (*types.AuditEventView, error) {
	var event models.AuditEvent
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("查询审计事件失败: %w", err)
	}
	view := s.toView(event)
	return &view, nil
}

// ListEventsForActor 查询指定操作者的事件
func (s *QueryService) ListEventsForActor(ctx context.Context, actorID string, page common.PageRequest) ([]types.AuditEventView, int64, error) {
	return s.ListEvents(ctx, Filter{ActorID: actorID}, page)
}

// ListEventsForEntity 查询指定受影响实体的事件
func (s *QueryService) ListEventsForEntity(ctx context.Context, entityID string, page common.PageRequest) ([]types.AuditEventView, int64, error) {
	return s.ListEvents(ctx, Filter{AffectedEntityID: entityID}, page)
}

// ListEventsInRange 查询指定时间区间的事件，两个边界均必填
func (s *QueryService) ListEventsInRange(ctx context.Context, from, to time.Time, page common.PageRequest) ([]types.AuditEventView, int64, error) {
	if !from.Before(to) {
		return nil, 0, ErrInvalidRange
	}
	return s.ListEvents(ctx, Filter{FromTime: &from, ToTime: &to}, page)
}

// DistinctEventTypes 账本中出现过的事件类型（升序，带 TTL 缓存）
func (s *QueryService) DistinctEventTypes(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, cacheKeyEventTypes, "event_type")
}

// DistinctAffectedEntityTypes 账本中出现过的实体类型（升序，带 TTL 缓存）
func (s *QueryService) DistinctAffectedEntityTypes(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, cacheKeyEntityTypes, "affected_entity_type")
}

func (s *QueryService) distinctColumn(ctx context.Context, cacheKey, column string) ([]string, error) {
	if s.store != nil {
		if cached, ok := s.store.Get(ctx, cacheKey); ok {
			var values []string
			if err := json.Unmarshal([]byte(cached), &values); err == nil {
				return values, nil
			}
		}
	}

	var values []string
	err := s.db.WithContext(ctx).
		Model(&models.AuditEvent{}).
		Distinct(column).
		Where(column+" <> ''").
		Order(column).
		Pluck(column, &values).Error
	if err != nil {
		return nil, fmt.Errorf("查询审计枚举失败: %w", err)
	}

	if s.store != nil {
		if raw, err := json.Marshal(values); err == nil {
			s.store.Set(ctx, cacheKey, string(raw), s.cacheTTL)
		}
	}
	return values, nil
}

func (s *QueryService) toView(e models.AuditEvent) types.AuditEventView {
	return types.AuditEventView{
		ID:                 e.ID,
		ActorID:            e.ActorID,
		ActorRole:          e.ActorRole,
		ActorEmail:         e.ActorEmail,
		EventType:          e.EventType,
		Description:        e.Description,
		AffectedEntityID:   e.AffectedEntityID,
		AffectedEntityType: e.AffectedEntityType,
		ChangeDetails:      e.ChangeDetails,
		IntegrityHash:      e.IntegrityHash,
		Timestamp:          e.Timestamp.UTC(),
		LocalTimestamp:     e.Timestamp.In(s.loc),
		SourceIP:           e.SourceIP,
	}
}

func (s *QueryService) toViews(events []models.AuditEvent) []types.AuditEventView {
	views := make([]types.AuditEventView, 0, len(events))
	for _, e := range events {
		views = append(views, s.toView(e))
	}
	return views
}
