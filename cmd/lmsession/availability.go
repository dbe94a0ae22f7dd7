// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/languagemodel"
)

// Exit codes of the availability command.
const (
	exitAfterDownload = 2
	exitUnavailable   = 3
)

func (app *app) availabilityCommand() *cli.Command {
	var options globalOptions
	var capabilityName string
	return &cli.Command{
		Name:    "availability",
		Summary: "Report whether a session can be created",
		Description: `Report whether a session can be created for a capability.

Prints the availability code. Exits 0 when sessions can be created
now, 2 when they can be created once the model has downloaded, and 3
otherwise.`,
		Usage: "lmsession availability [--capability NAME] [flags]",
		Examples: []cli.Example{
			{Description: "Check the default capability", Command: "lmsession availability"},
			{Description: "Check summarization", Command: "lmsession availability --capability summarize"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("availability", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.StringVar(&capabilityName, "capability", "", "capability to check (default model.capability)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "lmsession availability [--capability NAME]"); err != nil {
				return err
			}
			return app.withEnvironment(ctx, options, func(env *environment) error {
				capability, err := executor.ParseCapability(capabilityName)
				if capabilityName == "" {
					capability, err = executor.ParseCapability(env.Config.Model.Capability)
				}
				if err != nil {
					return err
				}

				availability := env.Manager.CanCreateSession(ctx, capability)
				fmt.Fprintf(app.stdout, "%s: %s\n", capability, cli.Status(availability.String()))
				switch availability {
				case languagemodel.AvailabilityReadily:
					return nil
				case languagemodel.AvailabilityAfterDownload:
					return &cli.ExitError{Code: exitAfterDownload}
				default:
					return &cli.ExitError{Code: exitUnavailable}
				}
			})
		},
	}
}
