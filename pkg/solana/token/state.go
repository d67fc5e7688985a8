package token

import (
	"encoding/binary"

	"github.com/roach88/solforge/pkg/solana"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L37
const MintSize = 82

const optionSize = 4

// Account is a token balance account.
type Account struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
	// Delegate is the zero key when no delegate is set.
	Delegate        solana.PublicKey
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  solana.PublicKey
}

func (a *Account) Marshal() []byte {
	b := make([]byte, AccountSize)

	var offset int
	putKey(b, a.Mint, &offset)
	putKey(b[offset:], a.Owner, &offset)
	putUint64(b[offset:], a.Amount, &offset)
	putOptionalKey(b[offset:], a.Delegate, &offset)
	b[offset] = byte(a.State)
	offset++
	putOptionalUint64(b[offset:], a.IsNative, &offset)
	putUint64(b[offset:], a.DelegatedAmount, &offset)
	putOptionalKey(b[offset:], a.CloseAuthority, &offset)

	return b
}

func (a *Account) Unmarshal(b []byte) bool {
	if len(b) != AccountSize {
		return false
	}

	var offset int
	getKey(b, &a.Mint, &offset)
	getKey(b[offset:], &a.Owner, &offset)
	getUint64(b[offset:], &a.Amount, &offset)
	getOptionalKey(b[offset:], &a.Delegate, &offset)
	a.State = AccountState(b[offset])
	offset++
	getOptionalUint64(b[offset:], &a.IsNative, &offset)
	getUint64(b[offset:], &a.DelegatedAmount, &offset)
	getOptionalKey(b[offset:], &a.CloseAuthority, &offset)

	return true
}

// Mint is the state of a token mint.
type Mint struct {
	// MintAuthority is the zero key when minting is disabled.
	MintAuthority   solana.PublicKey
	Supply          uint64
	Decimals        byte
	IsInitialized   bool
	FreezeAuthority solana.PublicKey
}

func (m *Mint) Marshal() []byte {
	b := make([]byte, MintSize)

	var offset int
	putOptionalKey(b, m.MintAuthority, &offset)
	putUint64(b[offset:], m.Supply, &offset)
	b[offset] = m.Decimals
	offset++
	if m.IsInitialized {
		b[offset] = 1
	}
	offset++
	putOptionalKey(b[offset:], m.FreezeAuthority, &offset)

	return b
}

func (m *Mint) Unmarshal(b []byte) bool {
	if len(b) != MintSize {
		return false
	}

	var offset int
	getOptionalKey(b, &m.MintAuthority, &offset)
	getUint64(b[offset:], &m.Supply, &offset)
	m.Decimals = b[offset]
	offset++
	m.IsInitialized = b[offset] == 1
	offset++
	getOptionalKey(b[offset:], &m.FreezeAuthority, &offset)

	return true
}

func putKey(dst []byte, src solana.PublicKey, offset *int) {
	copy(dst, src[:])
	*offset += len(src)
}

func putOptionalKey(dst []byte, src solana.PublicKey, offset *int) {
	if !src.IsZero() {
		dst[0] = 1
		copy(dst[optionSize:], src[:])
	}
	*offset += optionSize + len(src)
}

func putUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst, v)
	*offset += 8
}

func putOptionalUint64(dst []byte, v *uint64, offset *int) {
	if v != nil {
		dst[0] = 1
		binary.LittleEndian.PutUint64(dst[optionSize:], *v)
	}
	*offset += optionSize + 8
}

func getKey(src []byte, dst *solana.PublicKey, offset *int) {
	copy(dst[:], src)
	*offset += len(dst)
}

func getOptionalKey(src []byte, dst *solana.PublicKey, offset *int) {
	if src[0] == 1 {
		copy(dst[:], src[optionSize:])
	}
	*offset += optionSize + len(dst)
}

func getUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src)
	*offset += 8
}

func getOptionalUint64(src []byte, dst **uint64, offset *int) {
	if src[0] == 1 {
		v := binary.LittleEndian.Uint64(src[optionSize:])
		*dst = &v
	}
	*offset += optionSize + 8
}
