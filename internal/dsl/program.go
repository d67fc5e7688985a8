// Package dsl is the authoring surface for solforge programs.
//
// A Program is an explicit, ordered registry of declarations. Instructions
// are numbered in the order they are declared, so declaration order is part
// of the program's wire contract.
package dsl

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
)

// DeclKind distinguishes instruction and view declarations.
type DeclKind int

const (
	DeclInstruction DeclKind = iota
	DeclView
)

func (k DeclKind) String() string {
	switch k {
	case DeclInstruction:
		return "instruction"
	case DeclView:
		return "view"
	default:
		return fmt.Sprintf("DeclKind(%d)", int(k))
	}
}

// Declaration is one tagged entry of the registry.
type Declaration struct {
	Kind        DeclKind
	Instruction ir.IxDef
	View        ir.ViewDef
}

// Name returns the declared name.
func (d Declaration) Name() string {
	if d.Kind == DeclView {
		return d.View.Name
	}
	return d.Instruction.Name
}

// Program is a closed registry of account types, instructions and views.
type Program struct {
	name     string
	address  string
	accounts ir.AccountTable
	decls    []Declaration
}

// NewProgram starts a program declaration.
func NewProgram(name, address string) *Program {
	return &Program{name: name, address: address}
}

// Account declares a persisted state type under key. Instruction slots with
// the same name hold this state.
func (p *Program) Account(key string, def ir.AccountDef) *Program {
	p.accounts = append(p.accounts, ir.AccountEntry{Key: key, Def: cloneAccountDef(def)})
	return p
}

// Instruction declares an instruction. Its discriminator is its position
// among declared instructions.
func (p *Program) Instruction(ix ir.IxDef) *Program {
	p.decls = append(p.decls, Declaration{Kind: DeclInstruction, Instruction: cloneIx(ix)})
	return p
}

// View declares a read-only query.
func (p *Program) View(v ir.ViewDef) *Program {
	p.decls = append(p.decls, Declaration{Kind: DeclView, View: cloneView(v)})
	return p
}

func (p *Program) Name() string    { return p.name }
func (p *Program) Address() string { return p.address }

// Accounts returns a copy of the account table.
func (p *Program) Accounts() ir.AccountTable {
	out := make(ir.AccountTable, len(p.accounts))
	for i, e := range p.accounts {
		out[i] = ir.AccountEntry{Key: e.Key, Def: cloneAccountDef(e.Def)}
	}
	return out
}

// Declarations returns a copy of every declaration in order.
func (p *Program) Declarations() []Declaration {
	out := make([]Declaration, len(p.decls))
	for i, d := range p.decls {
		out[i] = Declaration{Kind: d.Kind, Instruction: cloneIx(d.Instruction), View: cloneView(d.View)}
	}
	return out
}

// Instructions returns copies of the declared instructions in order.
func (p *Program) Instructions() []ir.IxDef {
	var out []ir.IxDef
	for _, d := range p.decls {
		if d.Kind == DeclInstruction {
			out = append(out, cloneIx(d.Instruction))
		}
	}
	return out
}

// Views returns copies of the declared views in order.
func (p *Program) Views() []ir.ViewDef {
	var out []ir.ViewDef
	for _, d := range p.decls {
		if d.Kind == DeclView {
			out = append(out, cloneView(d.View))
		}
	}
	return out
}

// Validate checks declaration-local sanity: names are present, the program
// address is a public key and no key is declared twice. Semantic checks
// belong to the IR builder.
func (p *Program) Validate() error {
	var errs []error
	if p.name == "" {
		errs = append(errs, errors.New("program name is empty"))
	}
	if _, err := solana.ParsePublicKey(p.address); err != nil {
		errs = append(errs, fmt.Errorf("program address %q: %w", p.address, err))
	}

	keys := make(map[string]bool)
	for i, e := range p.accounts {
		if e.Key == "" {
			errs = append(errs, fmt.Errorf("accounts[%d]: empty key", i))
			continue
		}
		if keys[e.Key] {
			errs = append(errs, fmt.Errorf("accounts[%s]: declared twice", e.Key))
		}
		keys[e.Key] = true
	}

	names := make(map[string]DeclKind)
	for i, d := range p.decls {
		name := d.Name()
		if name == "" {
			errs = append(errs, fmt.Errorf("declarations[%d]: %s has no name", i, d.Kind))
			continue
		}
		if prev, ok := names[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q already declared as %s", d.Kind, name, prev))
			continue
		}
		names[name] = d.Kind
	}
	return errors.Join(errs...)
}

func clonePda(p *ir.Pda) *ir.Pda {
	if p == nil {
		return nil
	}
	return &ir.Pda{Seeds: slices.Clone(p.Seeds)}
}

func cloneAccountDef(d ir.AccountDef) ir.AccountDef {
	return ir.AccountDef{Name: d.Name, Schema: slices.Clone(d.Schema), Pda: clonePda(d.Pda)}
}

func cloneIx(ix ir.IxDef) ir.IxDef {
	accounts := make([]ir.AccountMeta, len(ix.Accounts))
	for i, m := range ix.Accounts {
		m.Pda = clonePda(m.Pda)
		accounts[i] = m
	}
	ops := make([]ir.Op, len(ix.Ops))
	for i, op := range ix.Ops {
		switch o := op.(type) {
		case ir.StateInit:
			o.Fields = slices.Clone(o.Fields)
			ops[i] = o
		case ir.StateUpdate:
			o.Fields = slices.Clone(o.Fields)
			ops[i] = o
		case ir.Event:
			o.Data = slices.Clone(o.Data)
			ops[i] = o
		default:
			ops[i] = op
		}
	}
	return ir.IxDef{Name: ix.Name, Args: slices.Clone(ix.Args), Accounts: accounts, Ops: ops}
}

func cloneView(v ir.ViewDef) ir.ViewDef {
	return ir.ViewDef{Name: v.Name, Args: slices.Clone(v.Args), Returns: slices.Clone(v.Returns)}
}
