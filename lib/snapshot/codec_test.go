// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/binary"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"

	"github.com/bureau-foundation/languagemodel/lib/contextwindow"
	"github.com/bureau-foundation/languagemodel/lib/executor"
)

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()
	window := contextwindow.New(100, contextwindow.SystemTurn("You are terse.", 3))
	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)
	window.AddTurn(contextwindow.UserTurn("How are you?", 3))
	window.AddTurn(contextwindow.AssistantTurn(long, 40))
	return Capture(uuid.NewString(), executor.CapabilityPrompt,
		executor.SamplingParams{TopK: 3, Temperature: 0.8}, window,
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func assertSnapshotEqual(t *testing.T, got, want Snapshot) {
	t.Helper()
	if got.ID != want.ID || got.Capability != want.Capability || got.Sampling != want.Sampling || got.MaxTokens != want.MaxTokens {
		t.Errorf("snapshot header = %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if !slices.Equal(got.Initial, want.Initial) {
		t.Errorf("Initial = %v, want %v", got.Initial, want.Initial)
	}
	if !slices.Equal(got.Rolling, want.Rolling) {
		t.Errorf("Rolling = %v, want %v", got.Rolling, want.Rolling)
	}
}

func TestCodecRoundtrip(t *testing.T) {
	t.Parallel()

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			original := testSnapshot(t)
			snapshotCodec := Codec{Compression: tag}

			envelope, err := snapshotCodec.Encode(original)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			header, err := ParseHeader(envelope)
			if err != nil {
				t.Fatalf("ParseHeader: %v", err)
			}
			if header.Compression != tag {
				t.Errorf("header.Compression = %v, want %v", header.Compression, tag)
			}
			if header.Sealed {
				t.Error("header.Sealed = true for an unsealed codec")
			}

			decoded, err := snapshotCodec.Decode(envelope)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			assertSnapshotEqual(t, decoded, original)
		})
	}
}

func TestCodecIncompressibleFallsBackToNone(t *testing.T) {
	t.Parallel()

	// A tiny snapshot cannot shrink.
	original := Snapshot{ID: uuid.NewString(), MaxTokens: 1}
	envelope, err := Codec{Compression: CompressionZstd}.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	header, err := ParseHeader(envelope)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if header.Compression != CompressionNone {
		t.Errorf("header.Compression = %v, want none", header.Compression)
	}
	if _, err := (Codec{}).Decode(envelope); err != nil {
		t.Errorf("Decode: %v", err)
	}
}

func TestCodecDigestIndependentOfCompression(t *testing.T) {
	t.Parallel()

	original := testSnapshot(t)
	var digests []string
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		envelope, err := Codec{Compression: tag}.Encode(original)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tag, err)
		}
		header, err := ParseHeader(envelope)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		digests = append(digests, header.DigestHex())
	}
	if digests[0] != digests[1] || digests[1] != digests[2] {
		t.Errorf("digests differ across compression: %v", digests)
	}
}

func TestCodecSealed(t *testing.T) {
	t.Parallel()

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	sealing := Codec{
		Compression: CompressionZstd,
		Recipients:  []age.Recipient{identity.Recipient()},
		Identities:  []age.Identity{identity},
	}
	original := testSnapshot(t)

	envelope, err := sealing.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(envelope), "How are you?") {
		t.Error("sealed envelope contains plaintext")
	}
	header, err := ParseHeader(envelope)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if !header.Sealed {
		t.Error("header.Sealed = false, want true")
	}

	decoded, err := sealing.Decode(envelope)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertSnapshotEqual(t, decoded, original)

	if _, err := (Codec{}).Decode(envelope); !errors.Is(err, ErrSealed) {
		t.Errorf("Decode without identity error = %v, want ErrSealed", err)
	}

	stranger, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	if _, err := (Codec{Identities: []age.Identity{stranger}}).Decode(envelope); err == nil {
		t.Error("Decode with the wrong identity succeeded")
	}
}

func TestCodecRejectsCorruption(t *testing.T) {
	t.Parallel()

	envelope, err := Codec{}.Encode(testSnapshot(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(data []byte) []byte { return data[:10] }},
		{"bad magic", func(data []byte) []byte { data[0] = 'X'; return data }},
		{"bad version", func(data []byte) []byte { data[4] = 9; return data }},
		{"flipped body byte", func(data []byte) []byte { data[len(data)-1] ^= 0xFF; return data }},
		{"flipped digest byte", func(data []byte) []byte { data[20] ^= 0xFF; return data }},
		{"truncated body", func(data []byte) []byte { return data[:len(data)-4] }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			corrupted := test.mutate(slices.Clone(envelope))
			if _, err := (Codec{}).Decode(corrupted); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Decode() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestCodecRejectsOversizedDeclaredSize(t *testing.T) {
	t.Parallel()

	envelope, err := Codec{Compression: CompressionLZ4}.Encode(testSnapshot(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	header, err := ParseHeader(envelope)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if header.Compression != CompressionLZ4 {
		t.Fatalf("Compression = %v, want lz4", header.Compression)
	}
	bodySize := len(envelope) - headerSize

	tests := []struct {
		name string
		size uint32
	}{
		{"beyond the size limit", 0xFFFFFFFF},
		{"beyond the lz4 expansion ratio", uint32(bodySize*lz4MaxExpansion + 1)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			corrupted := slices.Clone(envelope)
			binary.BigEndian.PutUint32(corrupted[8:12], test.size)
			if _, err := (Codec{}).Decode(corrupted); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Decode() error = %v, want ErrCorrupt", err)
			}
		})
	}

	oversized := slices.Clone(envelope)
	binary.BigEndian.PutUint32(oversized[8:12], 0xFFFFFFFF)
	if _, err := ParseHeader(oversized); !errors.Is(err, ErrCorrupt) {
		t.Errorf("ParseHeader() error = %v, want ErrCorrupt", err)
	}
}

func TestSnapshotWindow(t *testing.T) {
	t.Parallel()

	original := testSnapshot(t)
	window, err := original.Window(0)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if window.MaxTokens() != 100 || window.CurrentTokens() != 46 {
		t.Errorf("Window(0) sizing = %d/%d, want 46/100", window.CurrentTokens(), window.MaxTokens())
	}

	// A smaller budget drops the oldest rolling turn.
	smaller, err := original.Window(45)
	if err != nil {
		t.Fatalf("Window(45): %v", err)
	}
	rolling := smaller.RollingTurns()
	if len(rolling) != 1 || rolling[0].Role != contextwindow.RoleAssistant {
		t.Errorf("Window(45) rolling = %v, want only the assistant turn", rolling)
	}

	if _, err := original.Window(2); err == nil {
		t.Error("Window(2) succeeded with a 3-token initial region")
	}
}

func TestCompressionTagParse(t *testing.T) {
	t.Parallel()

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil || parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %v, %v; want %v", tag.String(), parsed, err, tag)
		}
	}
	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("ParseCompressionTag(brotli) succeeded")
	}
}
