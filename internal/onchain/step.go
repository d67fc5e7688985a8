package onchain

import (
	"fmt"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
)

// Step is one action of a lowered handler. Steps run in order and the
// first failing step aborts the call.
type Step interface {
	step()
}

// CheckSigner fails with MissingRequiredSignature unless the slot signed.
type CheckSigner struct{ Slot string }

// CheckWritable fails with InvalidAccountData unless the slot is writable.
type CheckWritable struct{ Slot string }

// DerivePDA re-derives the slot address from its seeds under the program
// address and fails with InvalidSeeds on mismatch. The bump found is kept
// for LoadBump and BuildSigner.
type DerivePDA struct {
	Slot  string
	Seeds []Node
}

// CheckAddress fails with InvalidAccountData unless the slot key equals
// Address.
type CheckAddress struct {
	Slot    string
	Address Node
}

// CheckAssociated fails with InvalidSeeds unless the slot is the
// associated token account of Owner and Mint.
type CheckAssociated struct {
	Slot  string
	Owner Node
	Mint  Node
}

// CheckProgram fails with IncorrectProgramId unless the slot is Program.
type CheckProgram struct {
	Slot    string
	Program solana.PublicKey
}

// BuildSigner assembles the seeds and bump of a PDA slot into a signer
// proof for invoke_signed.
type BuildSigner struct {
	Slot  string
	Seeds []Node
}

// CheckOwner fails with IncorrectProgramId unless the program owns the slot.
type CheckOwner struct{ Slot string }

// LoadState decodes the slot data with the state layout.
type LoadState struct {
	Slot   string
	Layout *Layout
}

// EnsureAccount creates the slot as a program-owned, rent-exempt account
// of Layout.Size bytes when the program does not own it yet, then checks
// ownership. Seeds is set when the new account is a PDA and must sign its
// own creation.
type EnsureAccount struct {
	Slot   string
	Payer  string
	Layout *Layout
	Seeds  []Node
}

// FieldStore writes the value of a node into a layout field.
type FieldStore struct {
	Field LayoutField
	Value Node
}

// InitState loads the freshly ensured slot, writes every field and stores
// the record.
type InitState struct {
	Slot   string
	Layout *Layout
	Fields []FieldStore
}

// UpdateState evaluates every new value against the current record before
// writing any of them, then stores the record.
type UpdateState struct {
	Slot   string
	Layout *Layout
	Fields []FieldStore
}

// InvokeToken calls the token program. Accounts are slot names in CPI
// order: transfer (from, to, authority), mintTo (mint, to, authority),
// burn (from, mint, authority). Signer names the PDA slot whose proof
// signs the call; empty means the authority signed the transaction.
type InvokeToken struct {
	Kind     ir.OpKind
	Accounts []string
	Amount   Node
	Program  string
	Signer   string
}

// EventField is one named value of an event.
type EventField struct {
	Name  string
	Value Node
}

// EmitEvent logs a named record.
type EmitEvent struct {
	Name   string
	Fields []EventField
}

func (CheckSigner) step()     {}
func (CheckWritable) step()   {}
func (DerivePDA) step()       {}
func (CheckAddress) step()    {}
func (CheckAssociated) step() {}
func (CheckProgram) step()    {}
func (BuildSigner) step()     {}
func (CheckOwner) step()      {}
func (LoadState) step()       {}
func (EnsureAccount) step()   {}
func (InitState) step()       {}
func (UpdateState) step()     {}
func (InvokeToken) step()     {}
func (EmitEvent) step()       {}

// StepVisitor has one method per Step variant.
type StepVisitor interface {
	VisitCheckSigner(CheckSigner) error
	VisitCheckWritable(CheckWritable) error
	VisitDerivePDA(DerivePDA) error
	VisitCheckAddress(CheckAddress) error
	VisitCheckAssociated(CheckAssociated) error
	VisitCheckProgram(CheckProgram) error
	VisitBuildSigner(BuildSigner) error
	VisitCheckOwner(CheckOwner) error
	VisitLoadState(LoadState) error
	VisitEnsureAccount(EnsureAccount) error
	VisitInitState(InitState) error
	VisitUpdateState(UpdateState) error
	VisitInvokeToken(InvokeToken) error
	VisitEmitEvent(EmitEvent) error
}

// WalkStep dispatches s to the matching visitor method.
func WalkStep(s Step, v StepVisitor) error {
	switch x := s.(type) {
	case CheckSigner:
		return v.VisitCheckSigner(x)
	case CheckWritable:
		return v.VisitCheckWritable(x)
	case DerivePDA:
		return v.VisitDerivePDA(x)
	case CheckAddress:
		return v.VisitCheckAddress(x)
	case CheckAssociated:
		return v.VisitCheckAssociated(x)
	case CheckProgram:
		return v.VisitCheckProgram(x)
	case BuildSigner:
		return v.VisitBuildSigner(x)
	case CheckOwner:
		return v.VisitCheckOwner(x)
	case LoadState:
		return v.VisitLoadState(x)
	case EnsureAccount:
		return v.VisitEnsureAccount(x)
	case InitState:
		return v.VisitInitState(x)
	case UpdateState:
		return v.VisitUpdateState(x)
	case InvokeToken:
		return v.VisitInvokeToken(x)
	case EmitEvent:
		return v.VisitEmitEvent(x)
	default:
		return fmt.Errorf("unknown step %T", s)
	}
}
