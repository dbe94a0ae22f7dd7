// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// lmsession drives the language model session manager from a
// terminal: it reports model availability, installs the on-device
// model, runs interactive chat sessions with forking and token
// counting, and manages saved session snapshots.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/languagemodel/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &app{
		stdin:           os.Stdin,
		stdout:          os.Stdout,
		stderr:          os.Stderr,
		openEnvironment: openEnvironment,
	}
	return app.root().Execute(ctx, os.Args[1:])
}
