// Package logging provides structured logging configuration and utilities.
//
// Libraries in this module log through *slog.Logger; the loggers built here
// route those records into zerolog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewZerolog builds a zerolog logger for cfg. Unknown levels fall back to info.
func NewZerolog(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).Level(ParseLevel(cfg.Level))
}

// NewLogger returns a slog.Logger writing through zerolog.
func NewLogger(cfg Config) *slog.Logger {
	zl := NewZerolog(cfg)
	return slog.New(&handler{logger: zl, level: slogLevel(zl.GetLevel())})
}

// SetupLogger configures the global zerolog logger and makes the matching
// slog.Logger the process default.
func SetupLogger(cfg Config) *slog.Logger {
	log.Logger = NewZerolog(cfg)
	logger := NewLogger(cfg)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to zerolog. Unknown or empty names give info.
func ParseLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func slogLevel(l zerolog.Level) slog.Level {
	switch {
	case l <= zerolog.DebugLevel:
		return slog.LevelDebug
	case l == zerolog.InfoLevel:
		return slog.LevelInfo
	case l == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l < slog.LevelDebug:
		return zerolog.TraceLevel
	case l < slog.LevelInfo:
		return zerolog.DebugLevel
	case l < slog.LevelWarn:
		return zerolog.InfoLevel
	case l < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

type boundAttr struct {
	prefix string
	attr   slog.Attr
}

// handler adapts slog records to zerolog events.
type handler struct {
	logger zerolog.Logger
	level  slog.Level
	prefix string
	attrs  []boundAttr
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	ev := h.logger.WithLevel(zerologLevel(r.Level))
	if ev == nil {
		return nil
	}
	if !r.Time.IsZero() {
		ev.Time(zerolog.TimestampFieldName, r.Time)
	}
	for _, b := range h.attrs {
		appendAttr(ev, b.prefix, b.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(ev, h.prefix, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = make([]boundAttr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, boundAttr{prefix: h.prefix, attr: a})
	}
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func appendAttr(ev *zerolog.Event, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key

	switch a.Value.Kind() {
	case slog.KindGroup:
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = key + "."
		}
		for _, sub := range a.Value.Group() {
			appendAttr(ev, groupPrefix, sub)
		}
	case slog.KindString:
		ev.Str(key, a.Value.String())
	case slog.KindInt64:
		ev.Int64(key, a.Value.Int64())
	case slog.KindUint64:
		ev.Uint64(key, a.Value.Uint64())
	case slog.KindFloat64:
		ev.Float64(key, a.Value.Float64())
	case slog.KindBool:
		ev.Bool(key, a.Value.Bool())
	case slog.KindDuration:
		ev.Dur(key, a.Value.Duration())
	case slog.KindTime:
		ev.Time(key, a.Value.Time())
	default:
		if err, ok := a.Value.Any().(error); ok {
			ev.AnErr(key, err)
			return
		}
		ev.Interface(key, a.Value.Any())
	}
}
