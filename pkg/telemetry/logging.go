// Copyright 2026 © The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/concord/pkg/errors"
)

// maxLogValue caps string attributes. Request content and policy reasons
// come from callers and may be arbitrarily long.
const maxLogValue = 1024

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// LogConfig selects the concord log output.
type LogConfig struct {
	Level   string // debug, info, warn or error
	Format  string // json or text
	Service string
	Version string
}

// SetupLogging installs the concord logger as the slog default.
func SetupLogging(w io.Writer, cfg LogConfig) *slog.Logger {
	logger := NewLogger(w, cfg)
	slog.SetDefault(logger)
	return logger
}

// NewLogger builds a concord logger. Records carry the service identity,
// the active span ids and typed errors broken out into code and message.
// Debug level also records the call site.
func NewLogger(w io.Writer, cfg LogConfig) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	level := LogLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: concordAttr,
	}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	var identity []slog.Attr
	if cfg.Service != "" {
		identity = append(identity, slog.String("service", cfg.Service))
	}
	if cfg.Version != "" {
		identity = append(identity, slog.String("version", cfg.Version))
	}
	if len(identity) > 0 {
		h = h.WithAttrs(identity)
	}
	return slog.New(spanHandler{h})
}

// Component scopes logger to a concord component. A nil logger means the
// slog default.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}

// LogLevel parses a configured level. "warning" is accepted for warn and
// anything unrecognised logs at info.
func LogLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// concordAttr normalises timestamps to UTC, caps long strings and expands
// typed errors.
func concordAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindTime:
		if a.Key == slog.TimeKey {
			return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(logTimeLayout))
		}
	case slog.KindString:
		if s := a.Value.String(); len(s) > maxLogValue {
			return slog.String(a.Key, TruncateString(s, maxLogValue))
		}
	case slog.KindAny:
		err, ok := a.Value.Any().(error)
		if !ok {
			break
		}
		var typed *errors.Error
		if !stderrors.As(err, &typed) {
			return slog.String(a.Key, err.Error())
		}
		return slog.Group(a.Key,
			slog.String("code", string(typed.Code)),
			slog.String("message", TruncateString(err.Error(), maxLogValue)),
			slog.Bool("recoverable", typed.Recoverable),
		)
	}
	return a
}

// spanHandler stamps records logged under an active span with its ids.
type spanHandler struct {
	slog.Handler
}

func (h spanHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanHandler{h.Handler.WithAttrs(attrs)}
}

func (h spanHandler) WithGroup(name string) slog.Handler {
	return spanHandler{h.Handler.WithGroup(name)}
}
