package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/luabind"
	"github.com/wippyai/script-bridge/script"
	"github.com/wippyai/script-bridge/wasmbind"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the bridge package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the logger of the bridge and of every package it
// drives. This must be called before creating a Bridge.
func SetLogger(l *zap.Logger) {
	logger = l
	script.SetLogger(l.Named("script"))
	luabind.SetLogger(l.Named("lua"))
	wasmbind.SetLogger(l.Named("wasm"))
}
