// Package programs holds the programs that ship with solforge, declared
// with the dsl package and addressable by name.
package programs

import (
	"fmt"
	"sort"

	"github.com/roach88/solforge/internal/dsl"
)

var registry = map[string]func() *dsl.Program{
	"vault": Vault,
	"amm":   Amm,
}

// Lookup returns a fresh declaration of the named built-in program.
func Lookup(name string) (*dsl.Program, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in program %q (available: %v)", name, Names())
	}
	return ctor(), nil
}

// Names lists the built-in programs in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
