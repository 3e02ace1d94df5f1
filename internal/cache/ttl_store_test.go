package cache

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	_, ok := store.Get(ctx, "missing")
	require.False(t, ok)

	store.Set(ctx, "k1", "v1", time.Minute)
	val, ok := store.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "v1", val)

	store.Set(ctx, "k1", "v2", time.Minute)
	val, ok = store.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "v2", val, "重复写入应覆盖旧值")

	store.Delete(ctx, "k1")
	_, ok = store.Get(ctx, "k1")
	require.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	current := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Set(ctx, "k1", "v1", 5*time.Minute)

	_, ok := store.Get(ctx, "k1")
	require.True(t, ok)

	// TTL 过后条目视为未命中
	current = current.Add(6 * time.Minute)
	_, ok = store.Get(ctx, "k1")
	require.False(t, ok, "过期条目不应命中")
}

func TestMemoryStoreCloseStopsJanitor(t *testing.T) {
	before := runtime.NumGoroutine()

	stores := make([]*MemoryStore, 0, 8)
	for i := 0; i < 8; i++ {
		stores = append(stores, NewMemoryStore())
	}
	for _, s := range stores {
		s.Close()
		s.Close() // 重复关闭应安全
	}

	// 等待清理协程退出
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.LessOrEqual(t, runtime.NumGoroutine(), before,
		"Close 后清理协程应全部退出")

	// 关闭后读写仍可用，仅失去后台清理
	ctx := context.Background()
	stores[0].Set(ctx, "k1", "v1", time.Minute)
	val, ok := stores[0].Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "v1", val)
}
