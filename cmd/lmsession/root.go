// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
	"github.com/bureau-foundation/languagemodel/lib/version"
)

// app holds the process I/O and the environment constructor, so
// commands can be driven from tests with buffers and a scripted
// backend.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	openEnvironment func(ctx context.Context, options globalOptions) (*environment, error)
}

func (app *app) root() *cli.Command {
	return &cli.Command{
		Name: "lmsession",
		Description: `lmsession: language model sessions from the terminal.

Check whether the configured model can run, install it, chat with it,
and keep snapshots of conversations to resume later.`,
		HelpOutput: app.stderr,
		Subcommands: []*cli.Command{
			app.availabilityCommand(),
			app.chatCommand(),
			app.modelCommand(),
			app.snapshotCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					fmt.Fprintf(app.stdout, "lmsession %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// withEnvironment opens the environment for options, runs body, and
// closes it.
func (app *app) withEnvironment(ctx context.Context, options globalOptions, body func(env *environment) error) (err error) {
	env, err := app.openEnvironment(ctx, options)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return body(env)
}
