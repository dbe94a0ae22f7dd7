// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/languagemodel/lib/clock"
	"github.com/bureau-foundation/languagemodel/lib/config"
	"github.com/bureau-foundation/languagemodel/lib/executor/executortest"
	"github.com/bureau-foundation/languagemodel/lib/languagemodel"
	"github.com/bureau-foundation/languagemodel/lib/snapshot"
	"github.com/bureau-foundation/languagemodel/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// installFunc adapts a function to the installer interface.
type installFunc func(ctx context.Context) error

func (install installFunc) Install(ctx context.Context) error { return install(ctx) }

// harness runs commands against a scripted backend and an in-memory
// snapshot store that outlives each command's environment.
type harness struct {
	backend          *executortest.Backend
	store            *snapshot.MemoryStore
	installer        installer
	disableSnapshots bool
}

func newHarness() *harness {
	return &harness{
		backend: executortest.NewBackend(),
		store:   snapshot.NewMemoryStore(snapshot.Codec{Compression: snapshot.CompressionZstd}),
	}
}

// run executes the command line args with stdin as input and returns
// what was written to stdout and stderr, stripped of styling.
func (harness *harness) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := &app{
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
		openEnvironment: func(context.Context, globalOptions) (*environment, error) {
			return harness.environment(t)
		},
	}
	err := app.root().Execute(context.Background(), args)
	return ansi.Strip(stdout.String()), ansi.Strip(stderr.String()), err
}

func (harness *harness) environment(t *testing.T) (*environment, error) {
	var store snapshot.Store
	if !harness.disableSnapshots {
		store = harness.store
	}
	logger := testutil.Logger(t)
	manager, err := languagemodel.NewManager(languagemodel.Config{
		Backend:   harness.backend,
		Logger:    logger,
		Clock:     clock.NewFake(epoch),
		Snapshots: store,
	})
	if err != nil {
		return nil, err
	}
	return &environment{
		Config:    config.Default(),
		Logger:    logger,
		Backend:   harness.backend,
		Snapshots: store,
		Manager:   manager,
		Installer: harness.installer,
	}, nil
}

// storedIDs lists the snapshot IDs in the harness store.
func (harness *harness) storedIDs(t *testing.T) []string {
	t.Helper()
	ids, err := harness.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return ids
}

func requireContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()
	stdout, _, err := newHarness().run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout, "lmsession 0.1.0-dev") {
		t.Errorf("version output = %q, want prefix %q", stdout, "lmsession 0.1.0-dev")
	}
}

func TestRootHelpListsCommands(t *testing.T) {
	t.Parallel()
	_, stderr, err := newHarness().run(t, "", "--help")
	if err != nil {
		t.Fatalf("--help: %v", err)
	}
	requireContains(t, stderr, "availability", "chat", "model", "snapshot", "version")
}
