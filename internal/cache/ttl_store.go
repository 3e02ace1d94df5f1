package cache

import (
	"context"
	"sync"
	"time"

	"clinicore/internal/logger"
	"clinicore/internal/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store 带过期时间的键值存储
// 替代全局 map 式的进程内缓存：过期策略显式、可注入、可替换后端。
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// ============================================================================
// Redis 后端
// ============================================================================

// RedisStore Redis 实现
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get 读取键值
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.WithContext(ctx).Warn("Redis 缓存读取失败",
				zap.String("key", key), zap.Error(err))
		}
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return "", false
	}
	metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	return val, true
}

// Set 写入键值（带过期时间）
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.WithContext(ctx).Warn("Redis 缓存写入失败",
			zap.String("key", key), zap.Error(err))
	}
}

// Delete 删除键
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		logger.WithContext(ctx).Warn("Redis 缓存删除失败",
			zap.String("key", key), zap.Error(err))
	}
}

// ============================================================================
// 进程内后端（Redis 不可用时的回退）
// ============================================================================

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore 进程内实现，惰性过期 + 定时清理
// 不再使用时调用 Close 停止清理协程。
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	now       func() time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go s.janitor(10 * time.Minute)
	return s
}

// Close 停止后台清理协程，可重复调用
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
}

// Get 读取键值，过期条目视为未命中
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		metrics.CacheMissesTotal.WithLabelValues("memory").Inc()
		return "", false
	}
	metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
	return entry.value, true
}

// Set 写入键值（带过期时间）
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = memoryEntry{
		value:     value,
		expiresAt: s.now().Add(ttl),
	}
	s.mu.Unlock()
}

// Delete 删除键
func (s *MemoryStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// janitor 定期清理过期条目，Close 后退出
func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
