package log

import "sync"

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// SetDefaultLogger replaces the process-wide default logger.
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// DefaultLogger returns the process-wide default logger, creating one
// from the standard config on first use.
func DefaultLogger() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	l = Default()
	SetDefaultLogger(l)
	return l
}
