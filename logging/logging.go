// Package logging sets up the per-node file logger. Diagnostics go to
// a rotating file instead of stdout so they never clobber the
// interactive prompt.
package logging

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a SugaredLogger writing to <dir>/<ip>-<port>-app.log with
// size-based rotation.
func New(dir, ip string, port int) *zap.SugaredLogger {
	lj := &lumberjack.Logger{
		Filename:   filepath.Join(dir, fmt.Sprintf("%s-%d-app.log", ip, port)),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(lj), zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller()).Sugar()
}
