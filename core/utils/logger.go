package utils

import (
	"log"
	"os"
)

// Logger is a thin prefix-tagging wrapper over the standard logger.
// All methods are safe on a nil receiver so callers can pass nil in tests.
type Logger struct {
	l *log.Logger
}

func NewLogger() *Logger {
	return &Logger{l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (lg *Logger) Printf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Printf("INFO "+format, args...)
}

func (lg *Logger) Warnf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Printf("WARN "+format, args...)
}

func (lg *Logger) Errorf(format string, args ...any) {
	if lg == nil || lg.l == nil {
		return
	}
	lg.l.Printf("ERROR "+format, args...)
}
