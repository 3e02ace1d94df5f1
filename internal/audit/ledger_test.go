package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"clinicore/internal/logger"
	"clinicore/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = logger.Init("error", "console", "stdout")
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AuditEvent{}))
	return db
}

// capturePublisher 捕获推送事件的测试替身
type capturePublisher struct {
	events []*models.AuditEvent
}

func (p *capturePublisher) PublishEvent(event *models.AuditEvent) {
	p.events = append(p.events, event)
}

func TestLedgerAppend(t *testing.T) {
	ctx := context.Background()
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db)

	t.Run("基本追加", func(t *testing.T) {
		event, err := ledger.Append(ctx, AppendParams{
			ActorID:            "actor-1",
			ActorRole:          "admin",
			EventType:          EventCreate,
			AffectedEntityID:   "patient-1",
			AffectedEntityType: EntityPatients,
			SourceIP:           "10.0.0.1",
		})
		require.NoError(t, err)
		require.NotEmpty(t, event.ID)
		require.Equal(t, "CREATE", event.EventType)
		require.Equal(t, "创建记录", event.Description, "未提供描述时应使用事件类型默认描述")
		require.Equal(t, time.UTC, event.Timestamp.Location(), "时间戳应为 UTC")

		expected := ComputeIntegrityHash("actor-1", EventCreate, "patient-1", event.Timestamp)
		require.Equal(t, expected, event.IntegrityHash)

		var stored models.AuditEvent
		require.NoError(t, db.Where("id = ?", event.ID).First(&stored).Error)
		require.Equal(t, event.IntegrityHash, stored.IntegrityHash)
	})

	t.Run("操作者与来源缺省为哨兵值", func(t *testing.T) {
		event, err := ledger.Append(ctx, AppendParams{
			EventType:          EventLoginFailed,
			AffectedEntityType: EntityAuth,
		})
		require.NoError(t, err)
		require.Equal(t, "unknown", event.ActorID)
		require.Equal(t, "unknown", event.SourceIP)
	})

	t.Run("未知事件类型拒绝写入", func(t *testing.T) {
		_, err := ledger.Append(ctx, AppendParams{
			EventType: EventType("NOT_A_TYPE"),
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "未知的事件类型")
	})
}

func TestLedgerAppendOnly(t *testing.T) {
	ctx := context.Background()
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db)

	event, err := ledger.Append(ctx, AppendParams{
		ActorID:            "actor-1",
		EventType:          EventUpdate,
		AffectedEntityID:   "patient-1",
		AffectedEntityType: EntityPatients,
	})
	require.NoError(t, err)

	t.Run("禁止更新", func(t *testing.T) {
		err := db.Model(event).Update("description", "篡改").Error
		require.ErrorIs(t, err, models.ErrAuditEventImmutable)
	})

	t.Run("禁止删除", func(t *testing.T) {
		err := db.Delete(event).Error
		require.ErrorIs(t, err, models.ErrAuditEventImmutable)
	})

	t.Run("数据未被破坏", func(t *testing.T) {
		var stored models.AuditEvent
		require.NoError(t, db.Where("id = ?", event.ID).First(&stored).Error)
		require.Equal(t, "更新记录", stored.Description)
	})
}

func TestLedgerPublish(t *testing.T) {
	ctx := context.Background()
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db)
	pub := &capturePublisher{}
	ledger.SetPublisher(pub)

	t.Run("Append 直接推送", func(t *testing.T) {
		event, err := ledger.Append(ctx, AppendParams{
			ActorID:            "actor-1",
			EventType:          EventCreate,
			AffectedEntityType: EntityPatients,
		})
		require.NoError(t, err)
		require.Len(t, pub.events, 1)
		require.Equal(t, event.ID, pub.events[0].ID)
	})

	t.Run("AppendInTx 不推送，由调用方提交后推送", func(t *testing.T) {
		pub.events = nil
		var event *models.AuditEvent
		err := db.Transaction(func(tx *gorm.DB) error {
			var txErr error
			event, txErr = ledger.AppendInTx(ctx, tx, AppendParams{
				ActorID:            "actor-1",
				EventType:          EventUpdate,
				AffectedEntityType: EntityPatients,
			})
			return txErr
		})
		require.NoError(t, err)
		require.Empty(t, pub.events, "事务内追加不应触发推送")

		ledger.Publish(event)
		require.Len(t, pub.events, 1)
	})
}

func TestLogRecordUpdatedProducesDiff(t *testing.T) {
	ctx := context.Background()
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db)

	event, err := ledger.LogRecordUpdated(ctx,
		"dentist-1", EntityClinicalHistories, "history-9",
		"diagnosis", "轻度龋齿\n", "中度龋齿，建议补牙\n", "10.0.0.9")
	require.NoError(t, err)
	require.Equal(t, "UPDATE", event.EventType)

	require.Equal(t, "diagnosis", event.ChangeDetails["field"])
	require.Equal(t, "轻度龋齿\n", event.ChangeDetails["before"])
	diff, ok := event.ChangeDetails["diff"].(string)
	require.True(t, ok)
	require.Contains(t, diff, "-轻度龋齿")
	require.Contains(t, diff, "+中度龋齿，建议补牙")
}

func TestLedgerAuthWrappers(t *testing.T) {
	ctx := context.Background()
	db := setupLedgerTestDB(t)
	ledger := NewLedger(db)

	lockedUntil := time.Date(2026, 3, 15, 10, 45, 0, 0, time.UTC)

	_, err := ledger.LogLoginSuccess(ctx, "user-1", "a@clinic.test", "10.0.0.1")
	require.NoError(t, err)
	_, err = ledger.LogLoginFailed(ctx, "b@clinic.test", "10.0.0.2", "密码错误")
	require.NoError(t, err)
	_, err = ledger.LogLogout(ctx, "user-1", "a@clinic.test", "10.0.0.1")
	require.NoError(t, err)
	lockEvent, err := ledger.LogAccountLocked(ctx, "user-2", "b@clinic.test", "10.0.0.2", 3, lockedUntil)
	require.NoError(t, err)

	require.Equal(t, 3, lockEvent.ChangeDetails["failed_attempts"])
	require.Equal(t, "2026-03-15T10:45:00Z", lockEvent.ChangeDetails["locked_until"])

	var count int64
	require.NoError(t, db.Model(&models.AuditEvent{}).Count(&count).Error)
	require.Equal(t, int64(4), count)
}
