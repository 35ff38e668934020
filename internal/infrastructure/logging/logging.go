// Package logging собирает slog-логгер процесса по настройкам.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// New создаёт логгер с уровнем level (debug, info, warn, error) и форматом json или text.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Discard логгер, который ничего не пишет. Для тестов и необязательных зависимостей.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard возвращает l или Discard для nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
