// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the lmsession binary: a
// tree of [Command] values with pflag flag sets, structured help, and
// typo suggestions for unknown commands and flags.
//
// Commands receive the process context (cancelled on SIGINT/SIGTERM)
// and their positional arguments. Output for humans goes through the
// lipgloss styles in this package; diagnostics go through the slog
// logger from [NewLogger].
package cli
