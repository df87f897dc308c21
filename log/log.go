// Package log defines the logger used across extension-dev and a
// zerolog-backed implementation of it.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the logging surface components accept through their options.
type Logger interface {
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	Info(args ...interface{})
	Debug(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
}

type zlogger struct {
	z zerolog.Logger
}

var _ Logger = (*zlogger)(nil)

// New returns a Logger writing to w at the given level ("debug", "info", ...).
// An unknown level falls back to info.
func New(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &zlogger{z: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// NewConsole returns a Logger with human readable output on stderr,
// optionally duplicated as JSON lines into file.
func NewConsole(level string, file io.Writer) Logger {
	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	if file != nil {
		w = zerolog.MultiLevelWriter(w, file)
	}
	return New(w, level)
}

// Nop discards everything.
func Nop() Logger {
	return &zlogger{z: zerolog.Nop()}
}

func (l *zlogger) Infof(format string, args ...interface{}) {
	l.z.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *zlogger) Debugf(format string, args ...interface{}) {
	l.z.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *zlogger) Warnf(format string, args ...interface{}) {
	l.z.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *zlogger) Errorf(format string, args ...interface{}) {
	l.z.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *zlogger) Info(args ...interface{}) {
	l.z.Info().Msg(fmt.Sprint(args...))
}

func (l *zlogger) Debug(args ...interface{}) {
	l.z.Debug().Msg(fmt.Sprint(args...))
}

func (l *zlogger) Warn(args ...interface{}) {
	l.z.Warn().Msg(fmt.Sprint(args...))
}

func (l *zlogger) Error(args ...interface{}) {
	l.z.Error().Msg(fmt.Sprint(args...))
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
