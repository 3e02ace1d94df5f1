package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"clinicore/internal/cache"
	"clinicore/internal/common"
	"clinicore/internal/logger"
	"clinicore/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupQueryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = logger.Init("error", "console", "stdout")
	dsn := fmt.Sprintf("file:audit_query_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditEvent{}))
	return db
}

func seedEvent(t *testing.T, db *gorm.DB, actorID string, eventType EventType, entityID, entityType string, ts time.Time) *models.AuditEvent {
	t.Helper()
	event := &models.AuditEvent{
		ID:                 uuid.New().String(),
		ActorID:            actorID,
		EventType:          string(eventType),
		Description:        GetEventDescription(eventType),
		AffectedEntityID:   entityID,
		AffectedEntityType: entityType,
		IntegrityHash:      ComputeIntegrityHash(actorID, eventType, entityID, ts),
		Timestamp:          ts.UTC(),
		SourceIP:           "10.0.0.1",
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

func TestQueryServiceListEvents(t *testing.T) {
	ctx := context.Background()
	db := setupQueryTestDB(t)
	svc := NewQueryService(db, time.UTC, nil, 0)

	base := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	seedEvent(t, db, "dentist-1", EventCreate, "patient-1", EntityPatients, base)
	seedEvent(t, db, "dentist-1", EventUpdate, "patient-1", EntityPatients, base.Add(time.Minute))
	seedEvent(t, db, "admin-1", EventDeactivate, "user-9", EntityUsers, base.Add(2*time.Minute))
	seedEvent(t, db, "dentist-2", EventRead, "history-3", EntityClinicalHistories, base.Add(3*time.Minute))

	t.Run("无条件返回全部并按时间倒序", func(t *testing.T) {
		views, total, err := svc.ListEvents(ctx, Filter{}, common.PageRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(4), total)
		require.Len(t, views, 4)
		for i := 1; i < len(views); i++ {
			require.False(t, views[i-1].Timestamp.Before(views[i].Timestamp),
				"结果应按 timestamp 倒序排列")
		}
		require.Equal(t, "READ", views[0].EventType)
	})

	t.Run("按操作者过滤", func(t *testing.T) {
		views, total, err := svc.ListEvents(ctx, Filter{ActorID: "dentist-1"}, common.PageRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(2), total)
		for _, v := range views {
			require.Equal(t, "dentist-1", v.ActorID)
		}
	})

	t.Run("按事件类型过滤", func(t *testing.T) {
		views, total, err := svc.ListEvents(ctx, Filter{EventType: "DEACTIVATE"}, common.PageRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		require.Equal(t, "user-9", views[0].AffectedEntityID)
	})

	t.Run("按实体过滤", func(t *testing.T) {
		views, total, err := svc.ListEvents(ctx, Filter{AffectedEntityID: "patient-1"}, common.PageRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(2), total)
		_ = views
	})

	t.Run("按时间区间过滤", func(t *testing.T) {
		from := base.Add(30 * time.Second)
		to := base.Add(2 * time.Minute)
		views, total, err := svc.ListEvents(ctx, Filter{FromTime: &from, ToTime: &to}, common.PageRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(2), total)
		require.Equal(t, "DEACTIVATE", views[0].EventType)
		require.Equal(t, "UPDATE", views[1].EventType)
	})

	t.Run("分页", func(t *testing.T) {
		views, total, err := svc.ListEvents(ctx, Filter{}, common.PageRequest{Skip: 1, Limit: 2})
		require.NoError(t, err)
		require.Equal(t, int64(4), total, "total 为过滤后的总数，与分页无关")
		require.Len(t, views, 2)
		require.Equal(t, "DEACTIVATE", views[0].EventType)
	})
}

func TestQueryServiceSameTimestampOrdering(t *testing.T) {
	ctx := context.Background()
	db := setupQueryTestDB(t)
	svc := NewQueryService(db, time.UTC, nil, 0)

	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	first := seedEvent(t, db, "a", EventCreate, "e1", EntityPatients, ts)
	second := seedEvent(t, db, "a", EventUpdate, "e1", EntityPatients, ts)

	views, _, err := svc.ListEvents(ctx, Filter{}, common.PageRequest{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	// 同一时间戳按插入顺序倒序（seq DESC）
	require.Equal(t, second.ID, views[0].ID)
	require.Equal(t, first.ID, views[1].ID)
}

func TestQueryServiceGetEvent(t *testing.T) {
	ctx := context.Background()
	db := setupQueryTestDB(t)
	loc := time.FixedZone("UTC-5", -5*3600)
	svc := NewQueryService(db, loc, nil, 0)

	ts := time.Date(2026, 3, 15, 15, 0, 0, 0, time.UTC)
	event := seedEvent(t, db, "dentist-1", EventRead, "history-1", EntityClinicalHistories, ts)

	t.Run("命中", func(t *testing.T) {
		view, err := svc.GetEvent(ctx, event.ID)
		require.NoError(t, err)
		require.Equal(t, event.ID, view.ID)
		require.True(t, view.Timestamp.Equal(ts))
		// 本地时间戳按机构时区呈现，指向同一时刻
		require.Equal(t, 10, view.LocalTimestamp.Hour())
		require.True(t, view.LocalTimestamp.Equal(view.Timestamp))
	})

	t.Run("不存在", func(t *testing.T) {
		_, err := svc.GetEvent(ctx, uuid.New().String())
		require.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestQueryServiceListEventsInRange(t *testing.T) {
	ctx := context.Background()
	db := setupQueryTestDB(t)
	svc := NewQueryService(db, time.UTC, nil, 0)

	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	t.Run("from 不早于 to 时拒绝", func(t *testing.T) {
		_, _, err := svc.ListEventsInRange(ctx, ts, ts, common.PageRequest{})
		require.ErrorIs(t, err, ErrInvalidRange)

		_, _, err = svc.ListEventsInRange(ctx, ts.Add(time.Hour), ts, common.PageRequest{})
		require.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("合法区间", func(t *testing.T) {
		seedEvent(t, db, "a", EventCreate, "e1", EntityPatients, ts)
		views, total, err := svc.ListEventsInRange(ctx, ts.Add(-time.Minute), ts.Add(time.Minute), common.PageRequest{})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		require.Len(t, views, 1)
	})
}

func TestQueryServiceParseTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	svc := NewQueryService(nil, loc, nil, 0)

	t.Run("带时区按原样解析", func(t *testing.T) {
		parsed, err := svc.ParseTimestamp("2026-01-15T08:00:00+02:00")
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC), parsed)
	})

	t.Run("裸时间戳按机构时区解释", func(t *testing.T) {
		parsed, err := svc.ParseTimestamp("2026-01-15T08:00:00")
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC), parsed)
	})

	t.Run("纯日期", func(t *testing.T) {
		parsed, err := svc.ParseTimestamp("2026-01-15")
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 1, 15, 5, 0, 0, 0, time.UTC), parsed)
	})

	t.Run("无法解析", func(t *testing.T) {
		_, err := svc.ParseTimestamp("15/01/2026")
		require.Error(t, err)
	})
}

func TestQueryServiceDistinctCaching(t *testing.T) {
	ctx := context.Background()
	db := setupQueryTestDB(t)
	store := cache.NewMemoryStore()
	svc := NewQueryService(db, time.UTC, store, time.Minute)

	ts := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	seedEvent(t, db, "a", EventCreate, "e1", EntityPatients, ts)
	seedEvent(t, db, "a", EventLoginSuccess, "a", EntityUsers, ts.Add(time.Minute))

	types1, err := svc.DistinctEventTypes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"CREATE", "LOGIN_SUCCESS"}, types1, "枚举应升序返回")

	entities, err := svc.DistinctAffectedEntityTypes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"patients", "users"}, entities)

	// 清空底层数据后命中缓存，结果保持不变
	require.NoError(t, db.Exec("DELETE FROM audit_events").Error)

	types2, err := svc.DistinctEventTypes(ctx)
	require.NoError(t, err)
	require.Equal(t, types1, types2, "TTL 内应返回缓存值")
}
