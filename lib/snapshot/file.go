// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const fileExtension = ".lms"

// FileStore keeps one envelope file per snapshot in a directory.
// Writes go to a temporary file that is renamed into place, so a
// reader never sees a partial envelope.
type FileStore struct {
	dir   string
	codec Codec
}

// NewFileStore creates dir (mode 0700) if needed.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("snapshot: file driver requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("snapshot: creating %s: %w", dir, err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

func (store *FileStore) path(id string) string {
	return filepath.Join(store.dir, id+fileExtension)
}

func (store *FileStore) Save(_ context.Context, snapshot Snapshot) error {
	if err := validateID(snapshot.ID); err != nil {
		return err
	}
	envelope, err := store.codec.Encode(snapshot)
	if err != nil {
		return err
	}

	temporary, err := os.CreateTemp(store.dir, ".tmp-"+snapshot.ID+"-*")
	if err != nil {
		return fmt.Errorf("snapshot: creating temporary file: %w", err)
	}
	temporaryPath := temporary.Name()
	_, err = temporary.Write(envelope)
	if closeErr := temporary.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(temporaryPath, store.path(snapshot.ID))
	}
	if err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("snapshot: writing %s: %w", snapshot.ID, err)
	}
	return nil
}

func (store *FileStore) read(id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	envelope, err := os.ReadFile(store.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading %s: %w", id, err)
	}
	return envelope, nil
}

func (store *FileStore) Load(_ context.Context, id string) (Snapshot, error) {
	envelope, err := store.read(id)
	if err != nil {
		return Snapshot{}, err
	}
	return store.codec.Decode(envelope)
}

func (store *FileStore) Inspect(_ context.Context, id string) (Header, error) {
	envelope, err := store.read(id)
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(envelope)
}

func (store *FileStore) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing %s: %w", store.dir, err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		id := strings.TrimSuffix(name, fileExtension)
		if validateID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (store *FileStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	err := os.Remove(store.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("snapshot: deleting %s: %w", id, err)
	}
	return nil
}

func (store *FileStore) Close() error { return nil }
