// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/google/uuid"
)

// exerciseStore runs the behavior every Store must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	first := testSnapshot(t)
	second := testSnapshot(t)
	for _, snapshot := range []Snapshot{first, second} {
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("Save(%s): %v", snapshot.ID, err)
		}
	}

	loaded, err := store.Load(ctx, first.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshotEqual(t, loaded, first)

	header, err := store.Inspect(ctx, second.ID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if header.Size == 0 {
		t.Error("Inspect().Size = 0")
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{first.ID, second.ID}
	slices.Sort(want)
	if !slices.Equal(ids, want) {
		t.Errorf("List() = %v, want %v", ids, want)
	}

	// Save replaces.
	first.Rolling = nil
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save (replace): %v", err)
	}
	loaded, err = store.Load(ctx, first.ID)
	if err != nil {
		t.Fatalf("Load after replace: %v", err)
	}
	if len(loaded.Rolling) != 0 {
		t.Errorf("Load() after replace has %d rolling turns, want 0", len(loaded.Rolling))
	}

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if _, err := store.Load(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(unknown) error = %v, want ErrNotFound", err)
	}

	invalid := testSnapshot(t)
	invalid.ID = "../escape"
	if err := store.Save(ctx, invalid); err == nil {
		t.Error("Save with a non-UUID id succeeded")
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore(Codec{Compression: CompressionLZ4}))
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "snapshots")
	store, err := NewFileStore(dir, Codec{Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, store)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temporary file %s left behind", entry.Name())
		}
	}
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, Codec{})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, name := range []string{"notes.txt", "not-a-uuid.lms"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() = %v, want none", ids)
	}
}

func TestSealedFileStoreWithIdentityFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	identityPath := filepath.Join(dir, "identity.txt")
	recipient, err := WriteIdentity(identityPath)
	if err != nil {
		t.Fatalf("WriteIdentity: %v", err)
	}
	if !strings.HasPrefix(recipient, "age1") {
		t.Errorf("WriteIdentity() recipient = %q, want age1 prefix", recipient)
	}
	if _, err := WriteIdentity(identityPath); err == nil {
		t.Error("WriteIdentity over an existing file succeeded")
	}

	identities, err := LoadIdentities(identityPath)
	if err != nil {
		t.Fatalf("LoadIdentities: %v", err)
	}
	recipients, err := RecipientsFor(identities)
	if err != nil {
		t.Fatalf("RecipientsFor: %v", err)
	}
	if recipients[0].(*age.X25519Recipient).String() != recipient {
		t.Errorf("RecipientsFor() = %v, want %s", recipients[0], recipient)
	}

	sealing := Codec{Recipients: recipients, Identities: identities}
	store, err := NewFileStore(filepath.Join(dir, "snapshots"), sealing)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	original := testSnapshot(t)
	if err := store.Save(context.Background(), original); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// The same directory without the identity can list and inspect
	// but not load.
	blind, err := NewFileStore(filepath.Join(dir, "snapshots"), Codec{})
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	header, err := blind.Inspect(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !header.Sealed {
		t.Error("Inspect().Sealed = false")
	}
	if _, err := blind.Load(context.Background(), original.ID); !errors.Is(err, ErrSealed) {
		t.Errorf("Load without identity error = %v, want ErrSealed", err)
	}

	loaded, err := store.Load(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSnapshotEqual(t, loaded, original)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	if _, err := Open(Options{Driver: DriverMemory}); err != nil {
		t.Errorf("Open(memory): %v", err)
	}
	if _, err := Open(Options{Driver: DriverFile, Dir: t.TempDir()}); err != nil {
		t.Errorf("Open(file): %v", err)
	}
	if _, err := Open(Options{Driver: DriverFile}); err == nil {
		t.Error("Open(file) without a directory succeeded")
	}
	if _, err := Open(Options{Driver: DriverRedis}); err == nil {
		t.Error("Open(redis) without an address succeeded")
	}
	if _, err := Open(Options{Driver: "sqlite"}); err == nil {
		t.Error("Open(sqlite) succeeded")
	}
}
