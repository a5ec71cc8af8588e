// Package xgorm is a gorm logger that writes through xlog instead of the std log package.
package xgorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"peachcash/pkg/xlog"

	gl "gorm.io/gorm/logger"
)

var zapLogger = xlog.GetLogger()

type logger struct {
	gl.Config
}

func New(config gl.Config) gl.Interface {
	return &logger{Config: config}
}

// LogMode log mode
func (l *logger) LogMode(level gl.LogLevel) gl.Interface {
	newlogger := *l
	newlogger.LogLevel = level
	return &newlogger
}

func (l logger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gl.Info {
		zapLogger.Infof("[gorm] "+msg, data...)
	}
}

func (l logger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gl.Warn {
		zapLogger.Warningf("[gorm] "+msg, data...)
	}
}

func (l logger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gl.Error {
		zapLogger.Errorf("[gorm] "+msg, data...)
	}
}

// Trace print sql message
func (l logger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gl.Silent {
		return
	}

	elapsed := float64(time.Since(begin).Nanoseconds()) / 1e6
	switch {
	case err != nil && l.LogLevel >= gl.Error && (!errors.Is(err, gl.ErrRecordNotFound) || !l.IgnoreRecordNotFoundError):
		sql, rows := fc()
		zapLogger.Errorf("[gorm] %s [%.3fms] [rows:%s] %s", err, elapsed, rowsString(rows), sql)
	case l.SlowThreshold != 0 && time.Since(begin) > l.SlowThreshold && l.LogLevel >= gl.Warn:
		sql, rows := fc()
		zapLogger.Warningf("[gorm] SLOW SQL >= %v [%.3fms] [rows:%s] %s", l.SlowThreshold, elapsed, rowsString(rows), sql)
	case l.LogLevel == gl.Info:
		sql, rows := fc()
		zapLogger.Debugf("[gorm] [%.3fms] [rows:%s] %s", elapsed, rowsString(rows), sql)
	}
}

func rowsString(rows int64) string {
	if rows == -1 {
		return "-"
	}
	return fmt.Sprint(rows)
}
