// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ondevice

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

type validationOutcome int

const (
	validationPassed validationOutcome = iota
	validationFailed
	validationPending
)

// fileIdentity detects a replaced model file without rehashing it.
type fileIdentity struct {
	size    int64
	modTime time.Time
}

// validationState caches the digest check of the installed file.
type validationState struct {
	checked  bool
	identity fileIdentity
	outcome  validationOutcome
	running  bool
}

// validate checks the installed model against the configured digest.
// The result is cached until the file changes. While one caller hashes,
// others see validationPending.
func (backend *Backend) validate(info fs.FileInfo) (validationOutcome, error) {
	if backend.config.Digest == "" {
		return validationPassed, nil
	}
	identity := fileIdentity{size: info.Size(), modTime: info.ModTime()}

	backend.mu.Lock()
	state := &backend.validation
	if state.running {
		backend.mu.Unlock()
		return validationPending, nil
	}
	if state.checked && state.identity == identity {
		outcome := state.outcome
		backend.mu.Unlock()
		return outcome, nil
	}
	state.running = true
	backend.mu.Unlock()

	digest, err := fileDigest(backend.modelPath)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	state.running = false
	if err != nil {
		return validationFailed, fmt.Errorf("ondevice: validating model: %w", err)
	}
	state.checked = true
	state.identity = identity
	state.outcome = validationPassed
	if !strings.EqualFold(digest, backend.config.Digest) {
		state.outcome = validationFailed
		backend.logger.Error("installed model failed validation",
			"path", backend.modelPath, "digest", digest, "want", backend.config.Digest)
	}
	return state.outcome, nil
}

// markValidated records a digest computed while installing.
func (backend *Backend) markValidated(info fs.FileInfo) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.validation = validationState{
		checked:  true,
		identity: fileIdentity{size: info.Size(), modTime: info.ModTime()},
		outcome:  validationPassed,
	}
}

// fileDigest returns the hex BLAKE3 digest of the file at path.
func fileDigest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Digest returns the hex BLAKE3 digest of data, the form [Config.Digest]
// takes.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
