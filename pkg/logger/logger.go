// Package logger provides the component logger used across the payments
// database, backed by zerolog.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger scoped to a component.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger for the named component writing to stderr.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter creates a logger for the named component writing to w.
func NewWithWriter(component string, w io.Writer) *Logger {
	zl := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// SetLevel adjusts the global log level from a string ("debug", "info",
// "warn", "error"). Unknown values leave the level at info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// With returns a child logger with an extra string field attached.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Debug(msg string)              { l.zl.Debug().Msg(msg) }
func (l *Logger) Debugf(f string, args ...any)  { l.zl.Debug().Msgf(f, args...) }
func (l *Logger) Info(msg string)               { l.zl.Info().Msg(msg) }
func (l *Logger) Infof(f string, args ...any)   { l.zl.Info().Msgf(f, args...) }
func (l *Logger) Warn(msg string)               { l.zl.Warn().Msg(msg) }
func (l *Logger) Warnf(f string, args ...any)   { l.zl.Warn().Msgf(f, args...) }
func (l *Logger) Error(err error, msg string)   { l.zl.Error().Err(err).Msg(msg) }
func (l *Logger) Errorf(err error, f string, args ...any) {
	l.zl.Error().Err(err).Msgf(f, args...)
}
