// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Log formats accepted by [NewLogger].
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger creates the structured logger for a command. With format
// "auto", a terminal stderr gets slog.TextHandler and anything else
// (pipes, CI, log collectors) gets slog.JSONHandler.
func NewLogger(level slog.Level, format string) *slog.Logger {
	if format == LogFormatAuto {
		format = LogFormatJSON
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = LogFormatText
		}
	}
	return newLogger(os.Stderr, level, format)
}

func newLogger(output io.Writer, level slog.Level, format string) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(output, options))
	}
	return slog.New(slog.NewTextHandler(output, options))
}

// IsInteractive reports whether file is a terminal.
func IsInteractive(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}
