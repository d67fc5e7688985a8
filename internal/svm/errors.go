package svm

import (
	"errors"
	"fmt"
)

// Runtime errors raised by the emulator itself rather than by a program.
var (
	ErrReadonlyDataModified     = errors.New("instruction modified data of a read-only account")
	ErrExternalDataModified     = errors.New("instruction modified data of an account it does not own")
	ErrPrivilegeEscalation      = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrMissingAccount           = errors.New("an account required by the instruction is missing")
	ErrUnsupportedProgram       = errors.New("unsupported program id")
	ErrSignatureVerification    = errors.New("transaction did not pass signature verification")
	ErrInsufficientFundsForRent = errors.New("insufficient funds for rent")
)

// InstructionError reports the failing instruction of a transaction. Err is
// an onchain.ProgramError, a TokenError, a SystemError or one of the
// runtime errors above.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// TokenError is a custom error of the token program.
type TokenError uint32

// Token program error codes.
const (
	TokenNotRentExempt     TokenError = 0
	TokenInsufficientFunds TokenError = 1
	TokenInvalidMint       TokenError = 2
	TokenMintMismatch      TokenError = 3
	TokenOwnerMismatch     TokenError = 4
	TokenUninitialized     TokenError = 9
	TokenInvalidState      TokenError = 13
	TokenOverflow          TokenError = 14
	TokenAccountFrozen     TokenError = 17
)

var tokenErrorNames = map[TokenError]string{
	TokenNotRentExempt:     "NotRentExempt",
	TokenInsufficientFunds: "InsufficientFunds",
	TokenInvalidMint:       "InvalidMint",
	TokenMintMismatch:      "MintMismatch",
	TokenOwnerMismatch:     "OwnerMismatch",
	TokenUninitialized:     "UninitializedState",
	TokenInvalidState:      "InvalidState",
	TokenOverflow:          "Overflow",
	TokenAccountFrozen:     "AccountFrozen",
}

// Name is the token program's name for e.
func (e TokenError) Name() string {
	if n, ok := tokenErrorNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Custom(%d)", uint32(e))
}

func (e TokenError) Error() string {
	return "token program error: " + e.Name()
}

// SystemError is a custom error of the system program.
type SystemError uint32

// System program error codes.
const (
	SystemAccountAlreadyInUse SystemError = 0
	SystemResultWithNegative  SystemError = 1
	SystemInvalidOwner        SystemError = 2
	SystemInvalidSpace        SystemError = 3
)

var systemErrorNames = map[SystemError]string{
	SystemAccountAlreadyInUse: "AccountAlreadyInUse",
	SystemResultWithNegative:  "ResultWithNegativeLamports",
	SystemInvalidOwner:        "InvalidProgramId",
	SystemInvalidSpace:        "InvalidAccountDataLength",
}

// Name is the system program's name for e.
func (e SystemError) Name() string {
	if n, ok := systemErrorNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Custom(%d)", uint32(e))
}

func (e SystemError) Error() string {
	return "system program error: " + e.Name()
}

// ErrorName returns the stable name scenarios use to match an error:
// the ProgramError or custom error name, or the runtime error text.
func ErrorName(err error) string {
	var ie *InstructionError
	if errors.As(err, &ie) {
		err = ie.Err
	}
	var named interface{ Name() string }
	if errors.As(err, &named) {
		return named.Name()
	}
	var be *BudgetExceededError
	switch {
	case errors.As(err, &be):
		return "ComputationalBudgetExceeded"
	case errors.Is(err, ErrReadonlyDataModified):
		return "ReadonlyDataModified"
	case errors.Is(err, ErrExternalDataModified):
		return "ExternalAccountDataModified"
	case errors.Is(err, ErrPrivilegeEscalation):
		return "PrivilegeEscalation"
	case errors.Is(err, ErrMissingAccount):
		return "MissingAccount"
	case errors.Is(err, ErrUnsupportedProgram):
		return "UnsupportedProgramId"
	case errors.Is(err, ErrSignatureVerification):
		return "SignatureFailure"
	case errors.Is(err, ErrInsufficientFundsForRent):
		return "InsufficientFundsForRent"
	}
	return err.Error()
}
