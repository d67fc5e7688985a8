package compiler

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Validation error codes (E100-E199)
const (
	// Declaration errors (E100)
	ErrMalformedDeclaration = "E100" // empty name, bad address, duplicate account key

	// Reference and typing errors (E101-E114)
	ErrReservedArgName    = "E101" // argument collides with the dispatch field
	ErrUndefinedArg       = "E102" // expression, seed or address names an unknown arg
	ErrUndefinedSlot      = "E103" // op, account ref, bump or seed names an unknown slot
	ErrUndefinedField     = "E104" // field ref to an unknown account or field
	ErrPdaConflict        = "E105" // one name, two different seed lists
	ErrMultipleInit       = "E106" // more than one state.init in an instruction
	ErrUnsupportedType    = "E107" // type or op not supported in this position
	ErrDuplicateName      = "E108" // instruction, view, arg, slot or field declared twice
	ErrInvalidStateTarget = "E109" // init/update target or fields invalid
	ErrSeedCycle          = "E110" // PDA seeds depend on each other
	ErrLimitExceeded      = "E111" // too many instructions or seeds, seed too long
	ErrBumpWithoutPda     = "E112" // bump of a slot that has no PDA
	ErrCompatibilityBreak = "E113" // published discriminator changed or removed
	ErrReadBeforeInit     = "E114" // state read before the state.init that creates it
)

// ReservedArgName is the field the client IDL uses for the discriminator.
const ReservedArgName = "instructionDiscriminator"

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is the collect-all failure returned by Build.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(errs), strings.Join(lines, "\n  "))
}

// Codes returns the error codes in order, for tests and summaries.
func (errs ValidationErrors) Codes() []string {
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

// suggest returns a " (did you mean X?)" hint when a candidate is close to name.
func suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	limit := max(2, len(name)/3)
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
