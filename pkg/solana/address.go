package solana

import (
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included, accepted by
	// CreateProgramAddress.
	MaxSeeds = 16

	// MaxSeedLength is the maximum length of a single seed.
	MaxSeedLength = 32
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNoViableBump     = errors.New("unable to find a viable program address bump seed")
)

var (
	programHashCtor = sha256.New
	pdaMarker       = []byte("ProgramDerivedAddress")
)

// CreateProgramAddress mirrors the Solana runtime's create_program_address.
//
// Program addresses are keys that do not lie on the ed25519 curve, so no
// private key exists for them. If the seeds hash to a valid curve point,
// ErrInvalidPublicKey is returned.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program PublicKey, seeds ...[]byte) (PublicKey, error) {
	var pub PublicKey

	if len(seeds) > MaxSeeds {
		return pub, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return pub, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return pub, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program[:], pdaMarker} {
		if _, err := h.Write(v); err != nil {
			return pub, errors.Wrap(err, "failed to hash seed")
		}
	}

	copy(pub[:], h.Sum(nil))

	// The runtime rejects hashes that decode to a compressed Edwards point.
	// x/crypto keeps its point type internal, so the decoder comes from the
	// standalone edwards25519 package.
	var A edwards25519.ExtendedGroupElement
	candidate := [32]byte(pub)
	if A.FromBytes(&candidate) {
		return PublicKey{}, ErrInvalidPublicKey
	}

	return pub, nil
}

// FindProgramAddressAndBump mirrors the runtime's find_program_address. The
// bump search starts at 255 and walks down until an off-curve address is
// found.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program PublicKey, seeds ...[]byte) (PublicKey, uint8, error) {
	bumpSeed := []byte{math.MaxUint8}
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, bumpSeed)

	for i := 0; i < math.MaxUint8; i++ {
		pub, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return pub, bumpSeed[0], nil
		}
		if err != ErrInvalidPublicKey {
			return PublicKey{}, 0, err
		}

		bumpSeed[0]--
	}

	return PublicKey{}, 0, ErrNoViableBump
}

// FindProgramAddress is like FindProgramAddressAndBump but only returns the
// address.
func FindProgramAddress(program PublicKey, seeds ...[]byte) (PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}
