// Package system builds and decodes system program instructions.
package system

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/roach88/solforge/pkg/solana"
)

// ProgramKey is the address of the system program (all zeros).
//
// Current key: 11111111111111111111111111111111
var ProgramKey solana.PublicKey

const (
	commandCreateAccount uint32 = iota
	// nolint:varcheck,deadcode,unused
	commandAssign
	commandTransfer
)

// CreateAccountDataSize is the encoded size of a CreateAccount instruction.
const CreateAccountDataSize = 4 + 2*8 + 32

// Rent parameters used by MinimumBalance. These match the runtime defaults.
const (
	AccountStorageOverhead  = 128
	LamportsPerByteYear     = 3480
	ExemptionThresholdYears = 2
)

// MinimumBalance returns the rent-exempt lamport balance for an account of
// the given data size.
func MinimumBalance(space uint64) uint64 {
	return (space + AccountStorageOverhead) * LamportsPerByteYear * ExemptionThresholdYears
}

// CreateAccount builds a system CreateAccount instruction.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner solana.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	data := make([]byte, CreateAccountDataSize)
	binary.LittleEndian.PutUint32(data, commandCreateAccount)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner[:])

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

// Transfer builds a system Transfer instruction.
func Transfer(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data, commandTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

// Command identifies a decoded system instruction.
type Command uint32

const (
	CommandCreateAccount = Command(commandCreateAccount)
	CommandTransfer      = Command(commandTransfer)
)

// DecodedCreateAccount holds the arguments of a CreateAccount instruction.
type DecodedCreateAccount struct {
	Lamports uint64
	Size     uint64
	Owner    solana.PublicKey
}

// DecodeCommand returns the command prefix of a system instruction.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) < 4 {
		return 0, errors.Errorf("invalid instruction data size: %d", len(data))
	}
	return Command(binary.LittleEndian.Uint32(data)), nil
}

// DecodeCreateAccount decodes CreateAccount instruction data.
func DecodeCreateAccount(data []byte) (*DecodedCreateAccount, error) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return nil, err
	}
	if cmd != CommandCreateAccount {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(data) != CreateAccountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(data))
	}

	v := &DecodedCreateAccount{
		Lamports: binary.LittleEndian.Uint64(data[4:]),
		Size:     binary.LittleEndian.Uint64(data[4+8:]),
	}
	copy(v.Owner[:], data[4+2*8:])
	return v, nil
}

// DecodeTransfer decodes Transfer instruction data and returns the lamports.
func DecodeTransfer(data []byte) (uint64, error) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return 0, err
	}
	if cmd != CommandTransfer {
		return 0, solana.ErrIncorrectInstruction
	}
	if len(data) != 12 {
		return 0, errors.Errorf("invalid instruction data size: %d", len(data))
	}
	return binary.LittleEndian.Uint64(data[4:]), nil
}
