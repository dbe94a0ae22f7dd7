// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/languagemodel/cmd/lmsession/cli"
	"github.com/bureau-foundation/languagemodel/lib/executor"
	"github.com/bureau-foundation/languagemodel/lib/languagemodel"
)

type chatOptions struct {
	global globalOptions

	system      string
	resume      string
	mode        string
	temperature float64
	topK        int
}

// sampling returns the requested sampling parameters with unset values
// filled from info, or nil when neither was requested.
func (options chatOptions) sampling(info executor.ModelInfo) *executor.SamplingParams {
	if options.temperature < 0 && options.topK <= 0 {
		return nil
	}
	sampling := executor.SamplingParams{TopK: info.DefaultTopK, Temperature: info.DefaultTemperature}
	if options.topK > 0 {
		sampling.TopK = options.topK
	}
	if options.temperature >= 0 {
		sampling.Temperature = options.temperature
	}
	return &sampling
}

func (app *app) chatCommand() *cli.Command {
	var options chatOptions
	return &cli.Command{
		Name:    "chat",
		Summary: "Chat with the model interactively",
		Description: `Start an interactive session with the model.

Each line is sent as a prompt and the response is streamed back. Lines
starting with "/" are commands:

  /fork          continue in a copy of this conversation
  /info          show token usage and sampling parameters
  /count TEXT    count the tokens TEXT would add as the next prompt
  /save          save a snapshot of the conversation
  /quit          leave

When the on-device model has not been downloaded yet, the download
starts and the session is created once it has been installed.`,
		Usage: "lmsession chat [--system TEXT] [--resume ID] [flags]",
		Examples: []cli.Example{
			{Description: "Start with a system prompt", Command: `lmsession chat --system "Answer in one sentence."`},
			{Description: "Continue a saved conversation", Command: "lmsession chat --resume 0b6f1c9e-5d1c-4c38-9a55-1f3f0fd9a2b7"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("chat", pflag.ContinueOnError)
			options.global.addFlags(flagSet)
			flagSet.StringVar(&options.system, "system", "", "system prompt for a new session")
			flagSet.StringVar(&options.resume, "resume", "", "snapshot ID to resume instead of starting fresh")
			flagSet.StringVar(&options.mode, "mode", "", "on-device streaming mode: chunk or full (default ondevice.streaming_mode)")
			flagSet.Float64Var(&options.temperature, "temperature", -1, "sampling temperature (default: model default)")
			flagSet.IntVar(&options.topK, "top-k", 0, "sampling top-k, capped at the model maximum (default: model default)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "lmsession chat [flags]"); err != nil {
				return err
			}
			if options.resume != "" && options.system != "" {
				return errors.New("--system cannot be combined with --resume")
			}
			global := options.global
			global.StreamingMode = options.mode
			return app.withEnvironment(ctx, global, func(env *environment) error {
				session, err := app.startChat(ctx, env, options)
				if err != nil {
					return err
				}
				chat := &repl{
					ctx:     ctx,
					manager: env.Manager,
					session: session,
					input:   bufio.NewScanner(app.stdin),
					output:  app.stdout,
				}
				return chat.run()
			})
		},
	}
}

// startChat creates or restores the session. When the model still has
// to be downloaded, it installs the model in the background and shows
// the download while the creation is pending.
func (app *app) startChat(ctx context.Context, env *environment, options chatOptions) (*languagemodel.Session, error) {
	capability, err := executor.ParseCapability(env.Config.Model.Capability)
	if err != nil {
		return nil, fmt.Errorf("model.capability: %w", err)
	}

	createCtx := ctx
	if env.Manager.CanCreateSession(ctx, capability) == languagemodel.AvailabilityAfterDownload {
		fmt.Fprintln(app.stderr, "The model is not installed yet. Waiting for the download...")
		display := newProgressDisplay(app.stderr)
		defer display.finish()
		remove := env.Manager.AddDownloadProgressObserver(display.update)
		defer remove()

		if env.Installer != nil {
			var cancel context.CancelCauseFunc
			createCtx, cancel = context.WithCancelCause(ctx)
			installed := make(chan struct{})
			go func() {
				defer close(installed)
				if err := env.Installer.Install(createCtx); err != nil {
					cancel(fmt.Errorf("installing model: %w", err))
				}
			}()
			defer func() {
				cancel(nil)
				<-installed
			}()
		}
	}

	var session *languagemodel.Session
	if options.resume != "" {
		session, _, err = env.Manager.RestoreSession(createCtx, options.resume)
	} else {
		session, _, err = env.Manager.CreateSession(createCtx, languagemodel.CreateOptions{
			Capability:   capability,
			Sampling:     options.sampling(env.Manager.ModelInfo(capability)),
			SystemPrompt: options.system,
		})
	}
	if err != nil {
		if cause := context.Cause(createCtx); cause != nil && ctx.Err() == nil {
			return nil, cause
		}
		return nil, err
	}
	return session, nil
}

// repl reads prompts and commands line by line.
type repl struct {
	ctx     context.Context
	manager *languagemodel.Manager
	session *languagemodel.Session
	input   *bufio.Scanner
	output  io.Writer
}

func (repl *repl) run() error {
	repl.printInfo()
	fmt.Fprintln(repl.output, cli.Faint("Type /quit to leave."))
	for {
		fmt.Fprintf(repl.output, "%s> ", cli.RoleLabel("user"))
		if !repl.input.Scan() {
			fmt.Fprintln(repl.output)
			return repl.input.Err()
		}
		line := strings.TrimSpace(repl.input.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if repl.command(line) {
				return nil
			}
		default:
			repl.prompt(line)
		}
		if err := repl.ctx.Err(); err != nil {
			return err
		}
	}
}

// command runs a slash command and reports whether the REPL should
// exit.
func (repl *repl) command(line string) bool {
	name, argument, _ := strings.Cut(line, " ")
	argument = strings.TrimSpace(argument)
	switch name {
	case "/quit", "/exit":
		return true
	case "/info":
		repl.printInfo()
	case "/count":
		if argument == "" {
			fmt.Fprintln(repl.output, "usage: /count TEXT")
			return false
		}
		tokens, err := repl.session.CountPromptTokens(repl.ctx, argument)
		if err != nil {
			repl.printError(err)
			return false
		}
		fmt.Fprintf(repl.output, "%d tokens with the conversation so far\n", tokens)
	case "/fork":
		forked, _, err := repl.session.Fork(repl.ctx)
		if err != nil {
			repl.printError(err)
			return false
		}
		fmt.Fprintf(repl.output, "forked %s into %s\n", repl.session.ID(), forked.ID())
		repl.session = forked
	case "/save":
		if err := repl.manager.SaveSession(repl.ctx, repl.session); err != nil {
			repl.printError(err)
			return false
		}
		fmt.Fprintf(repl.output, "saved %s\n", repl.session.ID())
	case "/help":
		fmt.Fprintln(repl.output, "commands: /fork /info /count TEXT /save /quit")
	default:
		fmt.Fprintf(repl.output, "unknown command %s (try /help)\n", name)
	}
	return false
}

func (repl *repl) prompt(input string) {
	fmt.Fprintf(repl.output, "%s: ", cli.RoleLabel("assistant"))
	overflowed := false
	err := repl.session.Prompt(repl.ctx, input, languagemodel.ListenerFuncs{
		Streaming: func(text string) {
			fmt.Fprint(repl.output, cli.SanitizeModelOutput(text))
		},
		ContextOverflow: func() { overflowed = true },
	})
	fmt.Fprintln(repl.output)
	if err != nil {
		repl.printError(err)
		return
	}
	if overflowed {
		fmt.Fprintln(repl.output, cli.Faint("(the oldest turns were dropped to fit the context window)"))
	}
}

func (repl *repl) printInfo() {
	info := repl.session.Info()
	sampling := repl.session.SamplingParams()
	fmt.Fprintln(repl.output, cli.Faint(fmt.Sprintf("session %s: %d/%d tokens, top_k %d, temperature %g",
		repl.session.ID(), info.CurrentTokens, info.MaxTokens, sampling.TopK, sampling.Temperature)))
}

func (repl *repl) printError(err error) {
	switch {
	case errors.Is(err, languagemodel.ErrNoSnapshotStore):
		fmt.Fprintln(repl.output, "snapshots are disabled; set snapshots.driver in the config")
	case errors.Is(err, languagemodel.ErrExecutionInProgress):
		fmt.Fprintln(repl.output, "the session is busy")
	default:
		fmt.Fprintf(repl.output, "error: %v\n", err)
	}
}
