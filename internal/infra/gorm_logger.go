package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

const defaultSlowThreshold = 200 * time.Millisecond

// GormZapLogger 把 GORM 内部日志接到全局 Zap 上
// 慢查询阈值来自数据库配置，审计账本的区间查询与导出可据此调优。
// ErrRecordNotFound 不作为错误输出：未命中是查询服务的正常分支。
type GormZapLogger struct {
	zap           *zap.Logger
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

// NewGormZapLogger 创建 GORM 日志适配器
func NewGormZapLogger(l *zap.Logger, level gormLogger.LogLevel, slowThreshold time.Duration) *GormZapLogger {
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowThreshold
	}
	return &GormZapLogger{
		zap:           l,
		level:         level,
		slowThreshold: slowThreshold,
	}
}

// LogMode 返回指定级别的副本
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info 日志
func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.zap.Sugar().Infof(msg, data...)
	}
}

// Warn 日志
func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.zap.Sugar().Warnf(msg, data...)
	}
}

// Error 日志
func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.zap.Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志：错误、慢查询、普通执行三档
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.zap.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold:
		l.zap.Warn("SQL 慢查询",
			append(fields, zap.Duration("threshold", l.slowThreshold))...)
	case l.level >= gormLogger.Info:
		l.zap.Debug("SQL 执行", fields...)
	}
}
