// Package clientgen builds client bindings from an IR document: a runtime
// model that constructs wire-compatible instructions, Go source exposing the
// same calls, and an IDL describing the program.
//
// The bindings reuse the program's own lowering, so argument layouts,
// account order and discriminators cannot drift from what the on-chain
// dispatcher parses.
package clientgen

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
)

var log = logrus.StandardLogger().WithField("type", "clientgen")

// PDA is one named address derivation. Every account table entry and
// instruction slot declaring the same name shares a single definition.
type PDA struct {
	Name  string
	Seeds []ir.Seed
	// Nodes are the lowered seeds, typed by the instruction that declares
	// them.
	Nodes []onchain.Node
}

// Bindings is the client-side model of a program.
type Bindings struct {
	Doc     *ir.Document
	Program *onchain.Program
	pdas    []PDA
}

// New lowers doc and collects its PDA definitions.
func New(doc *ir.Document) (*Bindings, error) {
	prog, err := onchain.Lower(doc)
	if err != nil {
		return nil, err
	}
	b := &Bindings{Doc: doc, Program: prog}

	for _, e := range doc.Accounts {
		if e.Def.Pda == nil {
			continue
		}
		if err := b.addPDA(e.Key, e.Def.Pda, b.declaringScope(e.Key, e.Def.Pda)); err != nil {
			return nil, err
		}
	}
	for i := range doc.Instructions {
		ix := &doc.Instructions[i]
		for _, m := range ix.Accounts {
			if m.Pda == nil {
				continue
			}
			if err := b.addPDA(m.Name, m.Pda, b.scope(ix.Args)); err != nil {
				return nil, err
			}
		}
	}

	log.WithFields(logrus.Fields{
		"program": doc.Name,
		"pdas":    len(b.pdas),
	}).Debug("built client bindings")
	return b, nil
}

func (b *Bindings) scope(args ir.Schema) onchain.Scope {
	return onchain.Scope{Args: args, Accounts: b.Doc.Accounts}
}

// declaringScope finds the arguments of the first instruction whose slot
// declares the same PDA as the account table entry.
func (b *Bindings) declaringScope(name string, pda *ir.Pda) onchain.Scope {
	for _, ix := range b.Doc.Instructions {
		if m, _, ok := ix.Slot(name); ok && m.Pda.Equal(pda) {
			return b.scope(ix.Args)
		}
	}
	return b.scope(nil)
}

func (b *Bindings) addPDA(name string, pda *ir.Pda, scope onchain.Scope) error {
	for _, p := range b.pdas {
		if p.Name != name {
			continue
		}
		if !(&ir.Pda{Seeds: p.Seeds}).Equal(pda) {
			return fmt.Errorf("conflicting PDA definition for %s", name)
		}
		return nil
	}
	nodes, err := scope.LowerSeeds(pda.Seeds)
	if err != nil {
		return fmt.Errorf("pda %s: %w", name, err)
	}
	b.pdas = append(b.pdas, PDA{Name: name, Seeds: pda.Seeds, Nodes: nodes})
	return nil
}

// Address returns the program address.
func (b *Bindings) Address() solana.PublicKey {
	return b.Program.Address
}

// PDAs returns the derivations in declaration order: account table first,
// then instruction slots.
func (b *Bindings) PDAs() []PDA {
	out := make([]PDA, len(b.pdas))
	copy(out, b.pdas)
	return out
}

// PDA finds a derivation by name.
func (b *Bindings) PDA(name string) (PDA, bool) {
	for _, p := range b.pdas {
		if p.Name == name {
			return p, true
		}
	}
	return PDA{}, false
}

// SeedInputs supplies the variable parts of a seed list: arguments by
// name, account keys by slot name and state records by account key.
type SeedInputs struct {
	Args     onchain.Record
	Accounts map[string]solana.PublicKey
	States   map[string]onchain.Record
}

func (in SeedInputs) Arg(name string) (any, error) {
	v, ok := in.Args[name]
	if !ok {
		return nil, fmt.Errorf("missing seed argument %q", name)
	}
	return v, nil
}

func (in SeedInputs) Field(slot, name string) (any, error) {
	v, ok := in.States[slot][name]
	if !ok {
		return nil, fmt.Errorf("missing seed field %s.%s", slot, name)
	}
	return v, nil
}

func (in SeedInputs) Key(slot string) (solana.PublicKey, error) {
	k, ok := in.Accounts[slot]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("missing seed account %q", slot)
	}
	return k, nil
}

func (in SeedInputs) Bump(slot string) (uint8, error) {
	return 0, fmt.Errorf("seeds cannot read the bump of %q", slot)
}

// DerivePDA derives the named address and its bump exactly as the program
// re-derives it.
func (b *Bindings) DerivePDA(name string, in SeedInputs) (solana.PublicKey, uint8, error) {
	p, ok := b.PDA(name)
	if !ok {
		return solana.PublicKey{}, 0, fmt.Errorf("unknown pda %q", name)
	}
	return onchain.DeriveAddress(b.Program.Address, p.Nodes, in)
}

// DecodeAccount decodes account data persisted under an account table key.
func (b *Bindings) DecodeAccount(key string, data []byte) (onchain.Record, error) {
	layout, ok := b.Program.State(key)
	if !ok {
		return nil, fmt.Errorf("unknown account %q", key)
	}
	return layout.Decode(data)
}
