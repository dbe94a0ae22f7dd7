// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
	"github.com/bureau-foundation/languagemodel/lib/codec"
	"github.com/bureau-foundation/languagemodel/lib/snapshot"
)

func (app *app) snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:    "snapshot",
		Summary: "Manage saved sessions",
		Description: `Manage session snapshots saved with /save in "lmsession chat".

Snapshots live in the store selected by snapshots.driver. Sealed
snapshots can only be read with snapshots.identity_file set.`,
		Subcommands: []*cli.Command{
			app.snapshotListCommand(),
			app.snapshotShowCommand(),
			app.snapshotExportCommand(),
			app.snapshotDeleteCommand(),
			app.snapshotKeygenCommand(),
		},
	}
}

// withSnapshots runs body against the configured snapshot store.
func (app *app) withSnapshots(ctx context.Context, options globalOptions, body func(store snapshot.Store) error) error {
	return app.withEnvironment(ctx, options, func(env *environment) error {
		if env.Snapshots == nil {
			return errors.New("snapshots are disabled; set snapshots.driver in the config")
		}
		return body(env.Snapshots)
	})
}

func (app *app) snapshotListCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "list",
		Summary: "List saved sessions",
		Usage:   "lmsession snapshot list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			options.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "lmsession snapshot list"); err != nil {
				return err
			}
			return app.withSnapshots(ctx, options, func(store snapshot.Store) error {
				ids, err := store.List(ctx)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(app.stderr, "no snapshots")
					return nil
				}
				table := tabwriter.NewWriter(app.stdout, 2, 0, 3, ' ', 0)
				fmt.Fprintln(table, "ID\tSIZE\tCOMPRESSION\tSEALED")
				for _, id := range ids {
					header, err := store.Inspect(ctx, id)
					if err != nil {
						// Removed between List and Inspect.
						if errors.Is(err, snapshot.ErrNotFound) {
							continue
						}
						return err
					}
					fmt.Fprintf(table, "%s\t%s\t%s\t%t\n", id, cli.FormatBytes(int64(header.Size)), header.Compression, header.Sealed)
				}
				return table.Flush()
			})
		},
	}
}

func (app *app) snapshotShowCommand() *cli.Command {
	var options globalOptions
	var diagnostic bool
	return &cli.Command{
		Name:    "show",
		Summary: "Show a saved session's details",
		Usage:   "lmsession snapshot show <id> [--cbor] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.BoolVar(&diagnostic, "cbor", false, "also print the snapshot body in CBOR diagnostic notation")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "lmsession snapshot show <id>"); err != nil {
				return err
			}
			return app.withSnapshots(ctx, options, func(store snapshot.Store) error {
				header, err := store.Inspect(ctx, args[0])
				if err != nil {
					return err
				}
				table := tabwriter.NewWriter(app.stdout, 2, 0, 2, ' ', 0)
				fmt.Fprintf(table, "id:\t%s\n", args[0])
				fmt.Fprintf(table, "envelope version:\t%d\n", header.Version)
				fmt.Fprintf(table, "body size:\t%s\n", cli.FormatBytes(int64(header.Size)))
				fmt.Fprintf(table, "compression:\t%s\n", header.Compression)
				fmt.Fprintf(table, "sealed:\t%t\n", header.Sealed)
				fmt.Fprintf(table, "digest:\t%s\n", header.DigestHex())

				saved, err := store.Load(ctx, args[0])
				if errors.Is(err, snapshot.ErrSealed) {
					return table.Flush()
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(table, "capability:\t%s\n", saved.Capability)
				fmt.Fprintf(table, "created:\t%s\n", saved.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
				fmt.Fprintf(table, "sampling:\ttop_k %d, temperature %g\n", saved.Sampling.TopK, saved.Sampling.Temperature)
				fmt.Fprintf(table, "turns:\t%d initial, %d rolling\n", len(saved.Initial), len(saved.Rolling))
				window, err := saved.Window(0)
				if err != nil {
					return err
				}
				fmt.Fprintf(table, "tokens:\t%d/%d\n", window.CurrentTokens(), window.MaxTokens())
				if err := table.Flush(); err != nil {
					return err
				}
				if !diagnostic {
					return nil
				}
				body, err := codec.Marshal(saved)
				if err != nil {
					return err
				}
				notation, err := codec.Diagnose(body)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.stdout, "\n%s\n", notation)
				return nil
			})
		},
	}
}

func (app *app) snapshotExportCommand() *cli.Command {
	var options globalOptions
	var asHTML bool
	return &cli.Command{
		Name:    "export",
		Summary: "Print a saved session's transcript",
		Usage:   "lmsession snapshot export <id> [--html] [flags]",
		Examples: []cli.Example{
			{Description: "Write an HTML transcript", Command: "lmsession snapshot export --html 0b6f1c9e-5d1c-4c38-9a55-1f3f0fd9a2b7 > chat.html"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			options.addFlags(flagSet)
			flagSet.BoolVar(&asHTML, "html", false, "render Markdown turns as an HTML document")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "lmsession snapshot export <id> [--html]"); err != nil {
				return err
			}
			return app.withSnapshots(ctx, options, func(store snapshot.Store) error {
				saved, err := store.Load(ctx, args[0])
				if err != nil {
					return err
				}
				if asHTML {
					return writeTranscriptHTML(app.stdout, saved)
				}
				return writeTranscript(app.stdout, saved)
			})
		},
	}
}

func (app *app) snapshotDeleteCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a saved session",
		Usage:   "lmsession snapshot delete <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			options.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "lmsession snapshot delete <id>"); err != nil {
				return err
			}
			return app.withSnapshots(ctx, options, func(store snapshot.Store) error {
				if err := store.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(app.stdout, "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func (app *app) snapshotKeygenCommand() *cli.Command {
	return &cli.Command{
		Name:    "keygen",
		Summary: "Create an age identity for sealing snapshots",
		Description: `Generate an X25519 age identity and write it to PATH with mode 0600.
Point snapshots.identity_file at it to seal new snapshots.`,
		Usage: "lmsession snapshot keygen <path>",
		Run: func(_ context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "lmsession snapshot keygen <path>"); err != nil {
				return err
			}
			recipient, err := snapshot.WriteIdentity(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "wrote %s\npublic key: %s\n", args[0], recipient)
			return nil
		},
	}
}
