package xlog

import (
	"flag"
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Zap = zap.NewNop()

	EnvMode  = "development"
	EnvColor = false

	optsName    string
	optsLogPath string
	optsDebug   bool
)

func init() {
	mode := os.Getenv("PEACH_LOG_MODE")
	if mode != "" {
		EnvMode = mode
	}

	color := os.Getenv("PEACH_LOG_COLOR")
	if color == "" {
		if flag.Lookup("test.v") == nil {
			color = "true"
		} else {
			color = "false"
		}
	}
	EnvColor = color != "false" && color != "0"
}

// Init builds the zap logger writing json lines to logPath and a readable copy to stdout
func Init(name string, logPath string) {
	if name == "" {
		name = "peach"
	}
	if logPath == "" {
		logPath = path.Join("logs", name+".log")
	}

	optsName = name
	optsLogPath = logPath
	optsDebug = EnvMode != "release"

	Zap = NewZap(optsDebug)
	Zap.Info("zap init succeed", FileField())
}

func NewZap(debug bool) *zap.Logger {
	hook := lumberjack.Logger{
		Filename:   optsLogPath,
		MaxSize:    64, // MB
		MaxAge:     14, // days
		MaxBackups: 14,
		Compress:   true,
	}
	stdout := &stdoutWriter{Color: EnvColor}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "file",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	atomicLevel := zap.NewAtomicLevel()
	if debug {
		atomicLevel.SetLevel(zap.DebugLevel)
	} else {
		atomicLevel.SetLevel(zap.InfoLevel)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(zapcore.AddSync(&hook), zapcore.AddSync(stdout)),
		atomicLevel,
	)

	opts := []zap.Option{zap.Fields(zap.String("app", optsName))}
	if debug {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...)
}

func FileField() zap.Field {
	return zap.String("file", FileWithLineNum())
}

// FileWithLineNum returns dir/file:line of the first caller outside the logging plumbing
func FileWithLineNum() string {
	var (
		file string
		line int
	)

	for i := 0; i < 15; i++ {
		_, _file, _line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		plumbing := strings.Contains(_file, "/pkg/xlog/") && !strings.HasSuffix(_file, "_test.go")
		if !plumbing &&
			!strings.Contains(_file, "/pkg/model/xgorm/") &&
			!strings.Contains(_file, "gorm.io/gorm") {
			file = _file
			line = _line
			break
		}
	}

	ss := strings.Split(file, "/")
	if len(ss) > 1 {
		return fmt.Sprintf("%s/%s:%d", ss[len(ss)-2], ss[len(ss)-1], line)
	}
	return fmt.Sprintf("%s:%d", file, line)
}
