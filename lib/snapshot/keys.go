// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"fmt"
	"os"

	"filippo.io/age"
)

// LoadIdentities reads an age identity file (one AGE-SECRET-KEY per
// line, # comments allowed).
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

// RecipientsFor returns the recipients that the X25519 identities
// decrypt for, so a store can read back what it writes.
func RecipientsFor(identities []age.Identity) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(identities))
	for _, identity := range identities {
		x25519, ok := identity.(*age.X25519Identity)
		if !ok {
			return nil, fmt.Errorf("identity type %T has no recipient", identity)
		}
		recipients = append(recipients, x25519.Recipient())
	}
	return recipients, nil
}

// WriteIdentity generates a new X25519 identity and writes it to path
// with mode 0600. The file must not already exist. Returns the public
// recipient string.
func WriteIdentity(path string) (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating identity file: %w", err)
	}
	recipient := identity.Recipient().String()
	_, err = fmt.Fprintf(file, "# public key: %s\n%s\n", recipient, identity.String())
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing identity file: %w", err)
	}
	return recipient, nil
}
