// Package token builds and decodes SPL token program instructions and
// account state.
package token

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/roach88/solforge/pkg/solana"
)

// ProgramKey is the address of the token program.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = solana.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

type Command byte

const (
	// nolint:varcheck,deadcode,unused
	CommandInitializeMint Command = iota
	// nolint:varcheck,deadcode,unused
	CommandInitializeAccount
	// nolint:varcheck,deadcode,unused
	CommandInitializeMultisig
	CommandTransfer
	// nolint:varcheck,deadcode,unused
	CommandApprove
	// nolint:varcheck,deadcode,unused
	CommandRevoke
	// nolint:varcheck,deadcode,unused
	CommandSetAuthority
	CommandMintTo
	CommandBurn

	CommandUnknown = Command(math.MaxUint8)
)

// String returns the instruction name used by the runtime logs.
func (c Command) String() string {
	switch c {
	case CommandTransfer:
		return "Transfer"
	case CommandMintTo:
		return "MintTo"
	case CommandBurn:
		return "Burn"
	default:
		return "Unknown"
	}
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L76-L91
func Transfer(source, dest, owner solana.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The source account.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The source account's owner/delegate.
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandTransfer, amount),
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L175-L191
func MintTo(mint, dest, authority solana.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The mint.
	//   1. `[writable]` The account to mint tokens to.
	//   2. `[signer]` The mint's minting authority.
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandMintTo, amount),
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L193-L209
func Burn(source, mint, owner solana.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The account to burn from.
	//   1. `[writable]` The token mint.
	//   2. `[signer]` The account's owner/delegate.
	return solana.NewInstruction(
		ProgramKey,
		amountData(CommandBurn, amount),
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

func amountData(cmd Command, amount uint64) []byte {
	data := make([]byte, 1+8)
	data[0] = byte(cmd)
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

// DecodeAmountInstruction decodes the data of a Transfer, MintTo or Burn
// instruction.
func DecodeAmountInstruction(data []byte) (Command, uint64, error) {
	if len(data) != 1+8 {
		return CommandUnknown, 0, errors.Errorf("invalid instruction data size: %d", len(data))
	}

	cmd := Command(data[0])
	switch cmd {
	case CommandTransfer, CommandMintTo, CommandBurn:
		return cmd, binary.LittleEndian.Uint64(data[1:]), nil
	default:
		return CommandUnknown, 0, solana.ErrIncorrectInstruction
	}
}
