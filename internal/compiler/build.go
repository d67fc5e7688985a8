// Package compiler turns a dsl.Program into a validated IR document.
package compiler

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
)

// SystemProgramSlot is appended to every instruction that creates state.
const SystemProgramSlot = "systemProgram"

// MaxInstructions is the number of handlers a one-byte discriminator can address.
const MaxInstructions = 256

var log = logrus.StandardLogger().WithField("type", "compiler")

// Build produces the IR document for p.
//
// The steps are:
//  1. collect instruction and view declarations in declaration order
//  2. append a systemProgram slot to every instruction with a state.init
//  3. assign discriminators 0..N-1 in declaration order
//  4. fill implicit view returns from the viewed account
//  5. validate the whole document, collecting every error
//
// On failure the error is a ValidationErrors and no document is returned.
func Build(p *dsl.Program) (*ir.Document, error) {
	if err := p.Validate(); err != nil {
		var errs ValidationErrors
		for _, line := range strings.Split(err.Error(), "\n") {
			errs = append(errs, ValidationError{
				Field:   "program",
				Message: line,
				Code:    ErrMalformedDeclaration,
			})
		}
		return nil, errs
	}

	doc := &ir.Document{
		IRVersion:      ir.IRVersion,
		Name:           p.Name(),
		ProgramAddress: p.Address(),
		Accounts:       p.Accounts(),
		Instructions:   []ir.Instruction{},
		Views:          []ir.ViewDef{},
	}
	if doc.Accounts == nil {
		doc.Accounts = ir.AccountTable{}
	}

	for _, decl := range p.Declarations() {
		switch decl.Kind {
		case dsl.DeclInstruction:
			ix := withSystemProgram(normalizeIx(decl.Instruction))
			doc.Instructions = append(doc.Instructions, ir.Instruction{
				Discriminator: len(doc.Instructions),
				IxDef:         ix,
			})
		case dsl.DeclView:
			doc.Views = append(doc.Views, normalizeView(doc.Accounts, decl.View))
		}
	}

	if errs := Validate(doc); len(errs) > 0 {
		log.WithField("program", doc.Name).Debugf("build failed with %d errors", len(errs))
		return nil, ValidationErrors(errs)
	}

	log.WithFields(logrus.Fields{
		"program":      doc.Name,
		"instructions": len(doc.Instructions),
		"views":        len(doc.Views),
	}).Debug("built IR document")
	return doc, nil
}

func normalizeIx(ix ir.IxDef) ir.IxDef {
	if ix.Args == nil {
		ix.Args = ir.Schema{}
	}
	if ix.Accounts == nil {
		ix.Accounts = []ir.AccountMeta{}
	}
	if ix.Ops == nil {
		ix.Ops = []ir.Op{}
	}
	for i := range ix.Accounts {
		if ix.Accounts[i].Role == "" {
			ix.Accounts[i].Role = ir.RoleAccount
		}
	}
	return ix
}

// withSystemProgram appends the system program slot that account creation
// needs, unless the instruction already declares one.
func withSystemProgram(ix ir.IxDef) ir.IxDef {
	needs := false
	for _, op := range ix.Ops {
		if op.Kind() == ir.OpStateInit {
			needs = true
			break
		}
	}
	if !needs {
		return ix
	}
	if _, _, ok := ix.Slot(SystemProgramSlot); ok {
		return ix
	}
	ix.Accounts = append(ix.Accounts, ir.AccountMeta{Name: SystemProgramSlot, Role: ir.RoleProgram})
	return ix
}

// ViewAccount returns the argument naming the account a view reads: the
// first pubkey argument whose name is an account table key.
func ViewAccount(accounts ir.AccountTable, v ir.ViewDef) (string, bool) {
	for _, a := range v.Args {
		if a.Type != ir.Pubkey {
			continue
		}
		if _, ok := accounts.Lookup(a.Name); ok {
			return a.Name, true
		}
	}
	return "", false
}

// normalizeView makes implicit scalar returns explicit field reads.
func normalizeView(accounts ir.AccountTable, v ir.ViewDef) ir.ViewDef {
	if v.Args == nil {
		v.Args = ir.Schema{}
	}
	if v.Returns == nil {
		v.Returns = ir.Returns{}
	}
	key, ok := ViewAccount(accounts, v)
	if !ok {
		return v
	}
	for i, r := range v.Returns {
		if r.Expr == nil && r.Type != ir.Ratio {
			v.Returns[i].Expr = ir.FieldRef{Account: key, Name: r.Name}
		}
	}
	return v
}

func ixPath(name string) string {
	return fmt.Sprintf("instructions[%s]", name)
}
