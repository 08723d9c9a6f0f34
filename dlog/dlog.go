// Package dlog is the structured logging façade the rest of the module
// calls into, generalizing the teacher's log/value.libevm.go TypeOf
// helper (there a one-off slog.LogValuer) into the client's ambient
// logging concern. It is built on golang.org/x/exp/slog, matching the
// teacher's own import: a plain text handler (written through go-colorable
// on a TTY) and optional rotating file output.
package dlog

import (
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/exp/slog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps *slog.Logger with a couple of client-specific
// conveniences.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to w at the given level. If w is nil,
// os.Stderr is used, wrapped by go-colorable when it is a TTY. The handler
// itself is slog's plain text handler and adds no colour of its own.
func New(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			w = colorable.NewColorableStderr()
		} else {
			w = os.Stderr
		}
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(h)}
}

// NewRotatingFile builds a Logger that writes to a size/age-rotated file,
// for long-running clients that should not be relied on to have a
// supervising process capturing stderr.
func NewRotatingFile(path string, level slog.Level) *Logger {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(h)}
}

// With returns a Logger with the given structured fields attached to
// every subsequent line, e.g. the client instance id.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// TypeOf reports the concrete Go type of v, extending the teacher's
// log.TypeOf helper.
func TypeOf(v interface{}) slog.LogValuer {
	return concreteTypeValue{v}
}

type concreteTypeValue struct{ v interface{} }

func (v concreteTypeValue) LogValue() slog.Value {
	return slog.StringValue(colorize(v.v))
}

func colorize(v interface{}) string {
	return color.New(color.FgHiBlack).Sprintf("%T", v)
}

// Dump renders v as a multi-line, deeply expanded representation for
// Debug-level diagnostics, via github.com/davecgh/go-spew.
func Dump(v interface{}) slog.LogValuer {
	return dumpValue{v}
}

type dumpValue struct{ v interface{} }

func (v dumpValue) LogValue() slog.Value {
	return slog.StringValue(spew.Sdump(v.v))
}
