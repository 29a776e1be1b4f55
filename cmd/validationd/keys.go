package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/luxfi/validation/identity"
)

// saveIdentity writes id's private key to path as a single hex-encoded
// line, mode 0600 since it is key material.
func saveIdentity(path string, id *identity.Identity) error {
	line := hex.EncodeToString(id.PrivateKey) + "\n"
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		return fmt.Errorf("write key file %s: %w", path, err)
	}
	return nil
}

// loadIdentity reads back an Identity previously written by saveIdentity.
func loadIdentity(path string) (*identity.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	return identity.FromPrivateKey(ed25519.PrivateKey(raw))
}
