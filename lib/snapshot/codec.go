// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/languagemodel/lib/codec"
)

const (
	envelopeMagic   = "LMSS"
	envelopeVersion = 1

	// magic, version, compression, flags, reserved, size, digest
	headerSize = 4 + 1 + 1 + 1 + 1 + 4 + 32

	flagSealed = 1 << 0

	// maxSnapshotSize bounds the uncompressed body. Headers claiming
	// more are rejected before anything is allocated.
	maxSnapshotSize = 64 << 20
)

var (
	// ErrSealed is returned when decoding a sealed envelope with no
	// identities configured.
	ErrSealed = errors.New("snapshot: envelope is sealed and no identity is configured")

	// ErrCorrupt is returned for envelopes that fail structural or
	// digest checks.
	ErrCorrupt = errors.New("snapshot: corrupt envelope")
)

// Codec encodes snapshots into envelopes and back. The zero value
// writes uncompressed, unsealed envelopes and reads unsealed ones.
type Codec struct {
	// Compression is attempted on every encode and skipped when it
	// would not shrink the body.
	Compression CompressionTag

	// Recipients, when non-empty, seal every encoded envelope.
	Recipients []age.Recipient

	// Identities open sealed envelopes.
	Identities []age.Identity
}

// Header is the unencrypted prefix of an envelope.
type Header struct {
	Version     uint8
	Compression CompressionTag
	Sealed      bool
	Size        int
	Digest      [32]byte
}

// DigestHex returns the body digest in lowercase hex.
func (header Header) DigestHex() string { return hex.EncodeToString(header.Digest[:]) }

// Encode serializes snapshot into an envelope.
func (snapshotCodec Codec) Encode(snapshot Snapshot) ([]byte, error) {
	plaintext, err := codec.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", snapshot.ID, err)
	}
	if len(plaintext) > maxSnapshotSize {
		return nil, fmt.Errorf("encoding snapshot %s: %d bytes exceeds the %d byte limit", snapshot.ID, len(plaintext), maxSnapshotSize)
	}

	body, tag, err := compress(plaintext, snapshotCodec.Compression)
	if err != nil {
		return nil, fmt.Errorf("compressing snapshot %s: %w", snapshot.ID, err)
	}

	var flags uint8
	if len(snapshotCodec.Recipients) > 0 {
		body, err = seal(body, snapshotCodec.Recipients)
		if err != nil {
			return nil, fmt.Errorf("sealing snapshot %s: %w", snapshot.ID, err)
		}
		flags |= flagSealed
	}

	envelope := make([]byte, headerSize, headerSize+len(body))
	copy(envelope, envelopeMagic)
	envelope[4] = envelopeVersion
	envelope[5] = uint8(tag)
	envelope[6] = flags
	binary.BigEndian.PutUint32(envelope[8:12], uint32(len(plaintext)))
	digest := blake3.Sum256(plaintext)
	copy(envelope[12:headerSize], digest[:])
	return append(envelope, body...), nil
}

// Decode opens an envelope produced by Encode.
func (snapshotCodec Codec) Decode(envelope []byte) (Snapshot, error) {
	header, err := ParseHeader(envelope)
	if err != nil {
		return Snapshot{}, err
	}

	body := envelope[headerSize:]
	if header.Sealed {
		if len(snapshotCodec.Identities) == 0 {
			return Snapshot{}, ErrSealed
		}
		body, err = unseal(body, snapshotCodec.Identities)
		if err != nil {
			return Snapshot{}, err
		}
	}

	plaintext, err := decompress(body, header.Compression, header.Size)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if blake3.Sum256(plaintext) != header.Digest {
		return Snapshot{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}

	var snapshot Snapshot
	if err := codec.Unmarshal(plaintext, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return snapshot, nil
}

// ParseHeader reads the unencrypted header. It needs no identity.
func ParseHeader(envelope []byte) (Header, error) {
	if len(envelope) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(envelope))
	}
	if string(envelope[:4]) != envelopeMagic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, envelope[:4])
	}
	header := Header{
		Version:     envelope[4],
		Compression: CompressionTag(envelope[5]),
		Sealed:      envelope[6]&flagSealed != 0,
	}
	size := binary.BigEndian.Uint32(envelope[8:12])
	if header.Version != envelopeVersion {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
	if size > maxSnapshotSize {
		return Header{}, fmt.Errorf("%w: declared size %d exceeds the %d byte limit", ErrCorrupt, size, maxSnapshotSize)
	}
	header.Size = int(size)
	copy(header.Digest[:], envelope[12:headerSize])
	return header, nil
}

func seal(plaintext []byte, recipients []age.Recipient) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func unseal(ciphertext []byte, identities []age.Identity) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting snapshot: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted snapshot: %w", err)
	}
	return plaintext, nil
}
