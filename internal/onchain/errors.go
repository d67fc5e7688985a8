package onchain

import "fmt"

// ProgramError is an error returned by a generated program, encoded the way
// the runtime encodes program results: builtin errors occupy the upper 32
// bits, custom errors the lower.
//
// Reference: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/program_error.rs
type ProgramError uint64

const builtinShift = 32

const (
	ErrInvalidArgument           ProgramError = 2 << builtinShift
	ErrInvalidInstructionData    ProgramError = 3 << builtinShift
	ErrInvalidAccountData        ProgramError = 4 << builtinShift
	ErrAccountDataTooSmall       ProgramError = 5 << builtinShift
	ErrInsufficientFunds         ProgramError = 6 << builtinShift
	ErrIncorrectProgramID        ProgramError = 7 << builtinShift
	ErrMissingRequiredSignature  ProgramError = 8 << builtinShift
	ErrAccountAlreadyInitialized ProgramError = 9 << builtinShift
	ErrUninitializedAccount      ProgramError = 10 << builtinShift
	ErrNotEnoughAccountKeys      ProgramError = 11 << builtinShift
	ErrInvalidSeeds              ProgramError = 14 << builtinShift
	ErrArithmeticOverflow        ProgramError = 24 << builtinShift
)

// Custom program errors.
const (
	ErrDivisionByZero ProgramError = 1
)

var builtinNames = map[ProgramError]string{
	ErrInvalidArgument:           "InvalidArgument",
	ErrInvalidInstructionData:    "InvalidInstructionData",
	ErrInvalidAccountData:        "InvalidAccountData",
	ErrAccountDataTooSmall:       "AccountDataTooSmall",
	ErrInsufficientFunds:         "InsufficientFunds",
	ErrIncorrectProgramID:        "IncorrectProgramId",
	ErrMissingRequiredSignature:  "MissingRequiredSignature",
	ErrAccountAlreadyInitialized: "AccountAlreadyInitialized",
	ErrUninitializedAccount:      "UninitializedAccount",
	ErrNotEnoughAccountKeys:      "NotEnoughAccountKeys",
	ErrInvalidSeeds:              "InvalidSeeds",
	ErrArithmeticOverflow:        "ArithmeticOverflow",
}

var customNames = map[ProgramError]string{
	ErrDivisionByZero: "DivisionByZero",
}

// Custom reports the custom error code, if e is not a builtin error.
func (e ProgramError) Custom() (uint32, bool) {
	if e>>builtinShift != 0 {
		return 0, false
	}
	return uint32(e), true
}

// Key is the runtime's name for e: the builtin error name, or "Custom".
func (e ProgramError) Key() string {
	if _, ok := e.Custom(); ok {
		return "Custom"
	}
	if name, ok := builtinNames[e]; ok {
		return name
	}
	return "InvalidError"
}

// Name is a human-readable name, resolving known custom codes.
func (e ProgramError) Name() string {
	if name, ok := customNames[e]; ok {
		return name
	}
	return e.Key()
}

func (e ProgramError) Error() string {
	if code, ok := e.Custom(); ok {
		if name, ok := customNames[e]; ok {
			return fmt.Sprintf("custom program error: %#x (%s)", code, name)
		}
		return fmt.Sprintf("custom program error: %#x", code)
	}
	return e.Key()
}

// ParseProgramError resolves a name produced by Name back to its error.
func ParseProgramError(name string) (ProgramError, bool) {
	for e, n := range builtinNames {
		if n == name {
			return e, true
		}
	}
	for e, n := range customNames {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

// Lowering error codes (E120-E129), reported as compiler.ValidationError.
const (
	ErrSignerAuthority = "E120" // op signer is neither a PDA nor a signer slot
	ErrInitTarget      = "E121" // state.init target is neither a PDA nor a signer
	ErrInitSeeds       = "E122" // state.init target seeds read persisted fields
	ErrInitPayer       = "E123" // state.init without a writable signer to pay rent
)
