package logger

import (
	"io"
	"log"
	"os"
)

// Logger is the printf-style leveled logger used by services and workers.
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// StdLogger writes leveled lines through a log.Logger.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// New returns a StdLogger writing to stdout with the given prefix, e.g. "[CHAT] ".
func New(prefix string, debug bool) *StdLogger {
	return Wrap(log.New(os.Stdout, prefix, log.LstdFlags), debug)
}

// Wrap adapts an existing log.Logger.
func Wrap(l *log.Logger, debug bool) *StdLogger {
	return &StdLogger{logger: l, debug: debug}
}

// Nop discards everything.
func Nop() *StdLogger {
	return Wrap(log.New(io.Discard, "", 0), false)
}

func (l *StdLogger) Info(msg string, args ...interface{}) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *StdLogger) Error(msg string, args ...interface{}) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...interface{}) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.logger.Printf("[DEBUG] "+msg, args...)
}

// Std exposes the underlying log.Logger for handlers.
func (l *StdLogger) Std() *log.Logger {
	return l.logger
}
