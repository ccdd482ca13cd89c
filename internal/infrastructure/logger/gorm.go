package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's logging through zap. Record-not-found is not an
// error at this layer; repositories translate it into domain sentinels.
type GormLogger struct {
	logger *zap.Logger
	level  gormlogger.LogLevel
}

// NewGormLogger wraps zapLogger for use as a gorm logger at the given level.
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{logger: zapLogger.Named("gorm"), level: level}
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// LogMode returns a copy of the logger at the requested level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Sugar().Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Sugar().Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Sugar().Errorf(msg, args...)
	}
}

// Trace logs each statement with its latency and row count, escalating to
// warn for slow queries and error for failures.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.level >= gormlogger.Error {
			l.logger.Error("query failed", append(fields, zap.Error(err))...)
		}
	case elapsed >= slowQueryThreshold:
		if l.level >= gormlogger.Warn {
			l.logger.Warn("slow query", fields...)
		}
	default:
		if l.level >= gormlogger.Info {
			l.logger.Debug("query", fields...)
		}
	}
}
