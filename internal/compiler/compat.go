package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/solforge/internal/ir"
)

// CheckCompatibility enforces the append-only discriminator contract:
// every instruction in published must still exist with the same
// discriminator. New instructions may only be appended.
func CheckCompatibility(published map[string]int, doc *ir.Document) []ValidationError {
	names := make([]string, 0, len(published))
	for name := range published {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return published[names[i]] < published[names[j]] })

	var errs []ValidationError
	for _, name := range names {
		want := published[name]
		ix, ok := doc.Instruction(name)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   ixPath(name),
				Message: fmt.Sprintf("published instruction %q (discriminator %d) was removed", name, want),
				Code:    ErrCompatibilityBreak,
			})
			continue
		}
		if ix.Discriminator != want {
			errs = append(errs, ValidationError{
				Field:   ixPath(name) + ".discriminator",
				Message: fmt.Sprintf("published discriminator %d changed to %d", want, ix.Discriminator),
				Code:    ErrCompatibilityBreak,
			})
		}
	}
	return errs
}
