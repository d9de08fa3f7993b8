package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

func newLogger() *slog.Logger {
	var logLevel slog.Level
	if level, ok := logLevels[os.Getenv("LOG_LEVEL")]; ok {
		logLevel = level
	}
	return slog.New(newLoggingHandler(os.Stdout, logLevel))
}

func newLoggingHandler(out io.Writer, level slog.Level) *loggingHandler {
	return &loggingHandler{
		out:   out,
		mu:    new(sync.Mutex),
		level: level,
	}
}

type loggingHandler struct {
	out   io.Writer
	mu    *sync.Mutex // shared by derived handlers
	level slog.Level
	attrs []slog.Attr
}

var _ slog.Handler = (*loggingHandler)(nil)

func (lh *loggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lh.level
}

func (lh *loggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, len(lh.attrs), len(lh.attrs)+len(attrs))
	copy(combined, lh.attrs)
	for _, attr := range attrs {
		if !isDefaultAttr(attr) {
			combined = append(combined, attr)
		}
	}
	return &loggingHandler{
		out:   lh.out,
		mu:    lh.mu,
		level: lh.level,
		attrs: combined,
	}
}

func (lh *loggingHandler) WithGroup(_ string) slog.Handler {
	panic("not implemented")
}

// Attributes rendered as a colored [problem/split] tag rather than key=value.
const (
	problemAttrKey = "problem"
	splitAttrKey   = "split"
)

func (lh *loggingHandler) Handle(_ context.Context, record slog.Record) error {
	var builder strings.Builder

	if !record.Time.IsZero() {
		builder.WriteRune('[')
		builder.WriteString(record.Time.Format(time.RFC3339))
		builder.WriteString("] ")
	}

	switch record.Level {
	case slog.LevelWarn:
		builder.WriteString("[WARN] ")
	case slog.LevelError:
		builder.WriteString("[ERROR] ")
	default:
	}

	var problem, split string
	collectTag := func(attr slog.Attr) {
		switch attr.Key {
		case problemAttrKey:
			problem = attr.Value.String()
		case splitAttrKey:
			split = attr.Value.String()
		}
	}
	for _, attr := range lh.attrs {
		collectTag(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		collectTag(attr)
		return true
	})
	if problem != "" {
		switch split {
		case "train": // green (32)
			builder.WriteString("\x1b[32m")
		case "dev": // yellow (33)
			builder.WriteString("\x1b[33m")
		default: // cyan (36)
			builder.WriteString("\x1b[36m")
		}
		builder.WriteRune('[')
		builder.WriteString(problem)
		if split != "" {
			builder.WriteRune('/')
			builder.WriteString(split)
		}
		builder.WriteString("]\x1b[0m ")
	}

	builder.WriteString(record.Message)

	writeAttr := func(attr slog.Attr) {
		if attr.Key == problemAttrKey || (problem != "" && attr.Key == splitAttrKey) {
			return
		}
		builder.WriteRune(' ')
		builder.WriteString(attr.Key)
		builder.WriteString("=")
		builder.WriteString(attr.Value.String())
	}
	for _, attr := range lh.attrs {
		writeAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(attr)
		return true
	})
	builder.WriteRune('\n')

	lh.mu.Lock()
	defer lh.mu.Unlock()
	_, err := fmt.Fprint(lh.out, builder.String())
	return err
}

func isDefaultAttr(attr slog.Attr) bool {
	return attr.Equal(slog.Attr{})
}
