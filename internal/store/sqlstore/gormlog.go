package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"igharvest/pkg/logger"
)

// gormLogger forwards gorm's log output to a logger.Logger
type gormLogger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(log logger.Logger) *gormLogger {
	return &gormLogger{log: log, level: gormlogger.Warn, slowThreshold: time.Second}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.ErrorWithFields("query failed", map[string]interface{}{
			"sql":      sql,
			"rows":     rows,
			"duration": elapsed,
			"error":    err.Error(),
		})
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.WarnWithFields("slow query", map[string]interface{}{
			"sql":      sql,
			"rows":     rows,
			"duration": elapsed,
		})
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.DebugWithFields("query", map[string]interface{}{
			"sql":      sql,
			"rows":     rows,
			"duration": elapsed,
		})
	}
}
