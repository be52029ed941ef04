package rudo

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop().Sugar()
)

// SetLogger replaces rudo's package-level logger. Passing nil restores the
// no-op logger. Hosts that already run zap should call this once at
// startup with their own *zap.SugaredLogger so collector phase
// transitions land in the same log stream as everything else.
func SetLogger(l *zap.SugaredLogger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l
}

func log() *zap.SugaredLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
