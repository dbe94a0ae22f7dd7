// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
)

const progressBarWidth = 30

func (app *app) modelCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "model",
		Summary: "Manage the on-device model",
		Subcommands: []*cli.Command{{
			Name:    "install",
			Summary: "Download and verify the on-device model",
			Description: `Download the on-device model from ondevice.download_url, verify its
digest, and install it into ondevice.model_dir. A model that is
already installed and valid is left alone.`,
			Usage: "lmsession model install [flags]",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("install", pflag.ContinueOnError)
				options.addFlags(flagSet)
				return flagSet
			},
			Run: func(ctx context.Context, args []string) error {
				if err := cli.RequireArgs(args, 0, "lmsession model install"); err != nil {
					return err
				}
				return app.withEnvironment(ctx, options, func(env *environment) error {
					if env.Installer == nil {
						return errors.New("the configured backend has no model to install")
					}
					display := newProgressDisplay(app.stderr)
					remove := env.Manager.AddDownloadProgressObserver(display.update)
					err := env.Installer.Install(ctx)
					remove()
					display.finish()
					if err != nil {
						return err
					}
					fmt.Fprintln(app.stdout, "model installed")
					return nil
				})
			},
		}},
	}
}

// progressDisplay redraws a single progress bar line in place.
// Updates may arrive from the installing goroutine.
type progressDisplay struct {
	mu     sync.Mutex
	output io.Writer
	drawn  bool
}

func newProgressDisplay(output io.Writer) *progressDisplay {
	return &progressDisplay{output: output}
}

func (display *progressDisplay) update(downloaded, total int64) {
	display.mu.Lock()
	defer display.mu.Unlock()
	fmt.Fprintf(display.output, "\r%s", cli.ProgressBar(downloaded, total, progressBarWidth))
	display.drawn = true
}

func (display *progressDisplay) finish() {
	display.mu.Lock()
	defer display.mu.Unlock()
	if display.drawn {
		fmt.Fprintln(display.output)
		display.drawn = false
	}
}
