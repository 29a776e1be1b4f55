// Package identity derives and verifies peer identities from Ed25519 key
// pairs, and canonically encodes them as the peer IDs carried on the wire.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidPeerID is returned when a wire-format peer ID cannot be decoded.
var ErrInvalidPeerID = errors.New("identity: invalid peer id")

// ErrInvalidSignature is returned when a signature fails verification.
var ErrInvalidSignature = errors.New("identity: invalid signature")

// PeerID is the canonical string form of a peer's Ed25519 public key.
type PeerID string

// String satisfies fmt.Stringer.
func (p PeerID) String() string { return string(p) }

// Bytes decodes the base58-encoded public key back to raw bytes.
func (p PeerID) Bytes() ([]byte, error) {
	b, err := base58.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeerID, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPeerID, ed25519.PublicKeySize, len(b))
	}
	return b, nil
}

// PublicKey recovers the Ed25519 public key encoded in the peer ID.
func (p PeerID) PublicKey() (ed25519.PublicKey, error) {
	b, err := p.Bytes()
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(b), nil
}

// PeerIDFromPublicKey derives the canonical peer ID for a public key.
func PeerIDFromPublicKey(pub ed25519.PublicKey) PeerID {
	return PeerID(base58.Encode(pub))
}

// Short returns a truncated hex fingerprint, useful for log lines.
func (p PeerID) Short() string {
	b, err := p.Bytes()
	if err != nil || len(b) < 4 {
		return string(p)
	}
	return hex.EncodeToString(b[:4])
}

// Identity is a peer's long-lived key pair.
type Identity struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	PeerID     PeerID
}

// Generate creates a new random identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		PeerID:     PeerIDFromPublicKey(pub),
	}, nil
}

// FromPrivateKey rebuilds an Identity from a previously generated private key,
// e.g. one loaded from disk.
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("identity: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("identity: could not derive public key")
	}
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		PeerID:     PeerIDFromPublicKey(pub),
	}, nil
}

// Sign signs payload with the identity's private key.
func (id *Identity) Sign(payload []byte) []byte {
	return ed25519.Sign(id.PrivateKey, payload)
}

// Verify checks that sig is a valid signature over payload by the peer
// identified by id.
func Verify(id PeerID, payload, sig []byte) error {
	pub, err := id.PublicKey()
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, payload, sig) {
		return ErrInvalidSignature
	}
	return nil
}
