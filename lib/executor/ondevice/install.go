// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ondevice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/languagemodel/lib/version"
)

var (
	// ErrInstallInProgress is returned when another Install is running.
	ErrInstallInProgress = errors.New("ondevice: model install already in progress")

	// ErrNoDownloadURL is returned by Install when no URL is configured.
	ErrNoDownloadURL = errors.New("ondevice: no model download URL configured")

	// ErrDigestMismatch is returned when a downloaded model does not
	// match the configured digest. Nothing is installed.
	ErrDigestMismatch = errors.New("ondevice: downloaded model digest mismatch")
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// progressInterval is how many downloaded bytes separate progress
// reports.
const progressInterval = 256 << 10

// Install downloads the model and installs it. Observers receive
// download progress in bytes of the transfer, then an availability
// change for every enabled capability once the model is in place. An
// already installed, valid model is left alone.
func (backend *Backend) Install(ctx context.Context) error {
	if backend.config.DownloadURL == "" {
		return ErrNoDownloadURL
	}

	backend.mu.Lock()
	if backend.installing {
		backend.mu.Unlock()
		return ErrInstallInProgress
	}
	backend.installing = true
	backend.mu.Unlock()
	defer func() {
		backend.mu.Lock()
		backend.installing = false
		backend.mu.Unlock()
	}()

	if info, err := os.Stat(backend.modelPath); err == nil {
		outcome, err := backend.validate(info)
		if err != nil {
			return err
		}
		if outcome == validationPassed {
			backend.logger.Info("model already installed", "path", backend.modelPath)
			return nil
		}
		backend.logger.Warn("replacing model that failed validation", "path", backend.modelPath)
	}

	backend.logger.Info("downloading model", "url", backend.config.DownloadURL, "path", backend.modelPath)
	digest, err := backend.download(ctx)
	if err != nil {
		return err
	}

	info, err := os.Stat(backend.modelPath)
	if err != nil {
		return fmt.Errorf("ondevice: checking installed model: %w", err)
	}
	backend.markValidated(info)
	backend.logger.Info("model installed", "path", backend.modelPath, "size", info.Size(), "digest", digest)
	backend.notifyAllCapabilities()
	return nil
}

// download fetches the model into a temporary file beside the final
// path and renames it into place once the digest checks out.
func (backend *Backend) download(ctx context.Context) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.config.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("ondevice: creating download request: %w", err)
	}
	request.Header.Set("User-Agent", version.UserAgent())
	response, err := backend.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("ondevice: downloading model: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ondevice: downloading model: HTTP %d", response.StatusCode)
	}

	total := max(response.ContentLength, 0)
	progress := &progressReader{reader: response.Body, total: total, report: backend.observers.NotifyDownloadProgress}
	progress.report(0, total)

	decoded, closeDecoder, err := decompressByMagic(bufio.NewReader(progress))
	if err != nil {
		return "", err
	}
	defer closeDecoder()

	temp, err := os.CreateTemp(backend.config.ModelDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("ondevice: creating download file: %w", err)
	}
	tempPath := temp.Name()
	installed := false
	defer func() {
		if !installed {
			temp.Close()
			os.Remove(tempPath)
		}
	}()

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(temp, hasher), decoded); err != nil {
		return "", fmt.Errorf("ondevice: writing model: %w", err)
	}
	progress.finish()

	digest := hex.EncodeToString(hasher.Sum(nil))
	if want := backend.config.Digest; want != "" && !strings.EqualFold(digest, want) {
		return "", fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, digest, want)
	}
	if err := temp.Sync(); err != nil {
		return "", fmt.Errorf("ondevice: syncing model: %w", err)
	}
	if err := temp.Close(); err != nil {
		return "", fmt.Errorf("ondevice: closing model: %w", err)
	}
	if err := os.Rename(tempPath, backend.modelPath); err != nil {
		return "", fmt.Errorf("ondevice: installing model: %w", err)
	}
	installed = true
	return digest, nil
}

// decompressByMagic wraps reader in a zstd or lz4 frame decoder when
// the stream starts with that format's magic number, and passes it
// through otherwise.
func decompressByMagic(reader *bufio.Reader) (io.Reader, func(), error) {
	magic, err := reader.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("ondevice: reading download: %w", err)
	}
	switch {
	case bytes.Equal(magic, zstdMagic):
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, nil, fmt.Errorf("ondevice: creating zstd decoder: %w", err)
		}
		return decoder, decoder.Close, nil
	case bytes.Equal(magic, lz4Magic):
		return lz4.NewReader(reader), func() {}, nil
	default:
		return reader, func() {}, nil
	}
}

// progressReader reports bytes read every progressInterval and once at
// the end.
type progressReader struct {
	reader       io.Reader
	total        int64
	downloaded   int64
	lastReported int64
	report       func(downloaded, total int64)
}

func (progress *progressReader) Read(buffer []byte) (int, error) {
	n, err := progress.reader.Read(buffer)
	progress.downloaded += int64(n)
	if progress.downloaded-progress.lastReported >= progressInterval {
		progress.lastReported = progress.downloaded
		progress.report(progress.downloaded, progress.total)
	}
	return n, err
}

// finish reports the final count if the last read did not.
func (progress *progressReader) finish() {
	if progress.downloaded != progress.lastReported {
		progress.lastReported = progress.downloaded
		progress.report(progress.downloaded, progress.total)
	}
}
