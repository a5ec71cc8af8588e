package xlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

type Logger struct {
	mu    sync.RWMutex
	level int
}

const (
	TRACE = iota
	DEBUG
	INFO
	WARNING
	ERROR
	FATAL
)

var levelNames = []string{
	"TRACE",
	"DEBUG",
	"INFO",
	"WARNING",
	"ERROR",
	"FATAL",
}

var (
	_logger *Logger
	once    sync.Once
)

// GetLogger returns the process wide logger, level taken from PEACH_LOG_LVL
func GetLogger() *Logger {
	once.Do(func() {
		lvl := os.Getenv("PEACH_LOG_LVL")
		_logger = &Logger{
			level: ParseLevel(lvl),
		}
		_logger.Debugf("using xlog with %s, PEACH_LOG_LVL:%s", levelNames[_logger.level], lvl)
	})
	return _logger
}

// ParseLevel accepts short and long level names, unknown names become INFO
func ParseLevel(s string) int {
	switch strings.ToUpper(s) {
	case "T", "TRC", "TRACE":
		return TRACE
	case "D", "DBG", "DEBUG":
		return DEBUG
	case "I", "INF", "INFO":
		return INFO
	case "W", "WRN", "WARN", "WARNING":
		return WARNING
	case "E", "ERR", "ERROR":
		return ERROR
	case "F", "FTL", "FATAL":
		return FATAL
	}
	return INFO
}

func (s *Logger) SetLevel(level string) {
	num := ParseLevel(level)
	s.SetLevelNum(num)
	s.Infof("set xlog level to %s", levelNames[num])
}

func (s *Logger) SetLevelNum(num int) {
	s.mu.Lock()
	s.level = num
	s.mu.Unlock()
}

func (s *Logger) GetLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

func (s *Logger) enabled(level int) bool {
	return level >= s.GetLevel()
}

func (s *Logger) Trace(args ...interface{}) {
	if s.enabled(TRACE) {
		Zap.Debug(fmt.Sprintf("[TRC] %v", argsToString(args)), FileField())
	}
}

func (s *Logger) Tracef(format string, args ...interface{}) {
	if s.enabled(TRACE) {
		Zap.Debug(fmt.Sprintf("[TRC] %v", fmt.Sprintf(format, args...)), FileField())
	}
}

func (s *Logger) Debug(args ...interface{}) {
	if s.enabled(DEBUG) {
		Zap.Debug(fmt.Sprintf("[DBG] %v", argsToString(args)), FileField())
	}
}

func (s *Logger) Debugf(format string, args ...interface{}) {
	if s.enabled(DEBUG) {
		Zap.Debug(fmt.Sprintf("[DBG] %v", fmt.Sprintf(format, args...)), FileField())
	}
}

func (s *Logger) Info(args ...interface{}) {
	if s.enabled(INFO) {
		Zap.Info(fmt.Sprintf("[INF] %v", argsToString(args)), FileField())
	}
}

func (s *Logger) Infof(format string, args ...interface{}) {
	if s.enabled(INFO) {
		Zap.Info(fmt.Sprintf("[INF] %v", fmt.Sprintf(format, args...)), FileField())
	}
}

func (s *Logger) Warning(args ...interface{}) {
	if s.enabled(WARNING) {
		Zap.Warn(fmt.Sprintf("[WRN] %v", argsToString(args)), FileField())
	}
}

func (s *Logger) Warningf(format string, args ...interface{}) {
	if s.enabled(WARNING) {
		Zap.Warn(fmt.Sprintf("[WRN] %v", fmt.Sprintf(format, args...)), FileField())
	}
}

func (s *Logger) Error(args ...interface{}) {
	if s.enabled(ERROR) {
		Zap.Error(fmt.Sprintf("[ERR] %v", argsToString(args)), FileField())
	}
}

func (s *Logger) Errorf(format string, args ...interface{}) {
	if s.enabled(ERROR) {
		Zap.Error(fmt.Sprintf("[ERR] %v", fmt.Sprintf(format, args...)), FileField())
	}
}

// Fatal logs and exits, it is only meant for the cmd entrypoints
func (s *Logger) Fatal(args ...interface{}) {
	Zap.Error(fmt.Sprintf("[FTL] %v", argsToString(args)), FileField())
	_ = Zap.Sync()
	os.Exit(1)
}

func (s *Logger) Fatalf(format string, args ...interface{}) {
	Zap.Error(fmt.Sprintf("[FTL] %v", fmt.Sprintf(format, args...)), FileField())
	_ = Zap.Sync()
	os.Exit(1)
}

// Write lets the logger be used as an io.Writer, e.g. for the std log package
func (s *Logger) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	Zap.Info(strings.TrimRight(string(p), "\n"), FileField())
	return len(p), nil
}

func argsToString(args ...interface{}) string {
	s := fmt.Sprintf("%v", args...)
	if len(s) <= 2 {
		return s
	}
	return s[1 : len(s)-1]
}
