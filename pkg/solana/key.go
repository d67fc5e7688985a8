// Package solana contains the address and instruction primitives shared by
// the generated programs, the generated clients and the host emulator.
package solana

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

// PublicKey is an ed25519 public key or a program derived address.
type PublicKey [ed25519.PublicKeySize]byte

// ZeroKey is the all-zero key. It is also the system program address.
var ZeroKey PublicKey

// ParsePublicKey decodes a base58 encoded address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pub PublicKey

	raw, err := base58.Decode(s)
	if err != nil {
		return pub, errors.Wrapf(err, "invalid base58 address %q", s)
	}
	if len(raw) != ed25519.PublicKeySize {
		return pub, errors.Errorf("invalid address length %d for %q (expected %d)", len(raw), s, ed25519.PublicKeySize)
	}

	copy(pub[:], raw)
	return pub, nil
}

// MustParsePublicKey is like ParsePublicKey but panics on error.
// Use only for compile-time constants and tests.
func MustParsePublicKey(s string) PublicKey {
	pub, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pub
}

// PublicKeyFromBytes copies a 32 byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pub PublicKey
	if len(b) != ed25519.PublicKeySize {
		return pub, errors.Errorf("invalid key length: %d", len(b))
	}
	copy(pub[:], b)
	return pub, nil
}

// String returns the base58 encoding of the key.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Bytes returns a copy of the raw key bytes.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, ed25519.PublicKeySize)
	copy(out, k[:])
	return out
}

// IsZero reports whether the key is all zeros.
func (k PublicKey) IsZero() bool {
	return k == ZeroKey
}

// MarshalText encodes the key as base58.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a base58 key.
func (k *PublicKey) UnmarshalText(text []byte) error {
	pub, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = pub
	return nil
}
