package svm

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/system"
	"github.com/roach88/solforge/pkg/solana/token"
)

var log = logrus.StandardLogger().WithField("type", "svm")

// Runtime executes transactions against a ledger.
//
// Thread-safety: a Runtime is not safe for concurrent use. Scenarios drive
// it from a single goroutine, which is also what keeps traces ordered.
type Runtime struct {
	ledger   *Ledger
	clock    SlotSource
	limit    uint64
	programs map[solana.PublicKey]*onchain.Program
	trace    []Record
}

// Option configures a Runtime.
type Option func(*Runtime)

// SlotSource hands out monotonically increasing slots.
type SlotSource interface {
	Next() uint64
	Current() uint64
}

// WithClock takes slots from c instead of a fresh Clock.
func WithClock(c SlotSource) Option {
	return func(r *Runtime) {
		r.clock = c
	}
}

// WithComputeLimit sets the per-instruction compute budget.
//
// Default: DefaultComputeLimit.
func WithComputeLimit(units uint64) Option {
	return func(r *Runtime) {
		r.limit = units
	}
}

// New creates a runtime over l.
func New(l *Ledger, opts ...Option) *Runtime {
	r := &Runtime{
		ledger:   l,
		clock:    NewClock(),
		limit:    DefaultComputeLimit,
		programs: make(map[solana.PublicKey]*onchain.Program),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ledger returns the live ledger.
func (r *Runtime) Ledger() *Ledger {
	return r.ledger
}

// Clock returns the slot source.
func (r *Runtime) Clock() SlotSource {
	return r.clock
}

// Trace returns the committed and failed instruction records in slot order.
func (r *Runtime) Trace() []Record {
	out := make([]Record, len(r.trace))
	copy(out, r.trace)
	return out
}

// Deploy installs p as an executable account at its program address.
func (r *Runtime) Deploy(p *onchain.Program) {
	r.programs[p.Address] = p
	r.ledger.put(p.Address, &Account{Lamports: 1, Owner: BPFLoaderKey, Executable: true})
	log.WithFields(logrus.Fields{
		"program": p.Name,
		"address": p.Address.String(),
	}).Debug("deployed program")
}

// Program returns the program deployed at address.
func (r *Runtime) Program(address solana.PublicKey) (*onchain.Program, bool) {
	p, ok := r.programs[address]
	return p, ok
}

// Process runs ixs as one transaction signed by signers.
//
// On failure the ledger is restored to its state before the transaction and
// the error is an *InstructionError naming the failing instruction. A meta
// that claims a signature missing from signers rejects the transaction
// before anything runs.
func (r *Runtime) Process(signers []solana.PublicKey, ixs ...solana.Instruction) (*Receipt, error) {
	signed := make(map[solana.PublicKey]bool, len(signers))
	for _, s := range signers {
		signed[s] = true
	}
	for _, ix := range ixs {
		for _, m := range ix.Accounts {
			if m.IsSigner && !signed[m.PublicKey] {
				return nil, fmt.Errorf("%w: no signature for %s", ErrSignatureVerification, m.PublicKey)
			}
		}
	}

	slot := r.clock.Next()
	snap := r.ledger.Snapshot()
	receipt := &Receipt{Slot: slot}

	for i, ix := range ixs {
		inv := &invocation{rt: r, meter: NewComputeMeter(r.limit)}
		infos := make([]accountInfo, len(ix.Accounts))
		for j, m := range ix.Accounts {
			infos[j] = accountInfo{key: m.PublicKey, signer: m.IsSigner, writable: m.IsWritable}
		}

		program, name := r.describe(ix)
		err := inv.execute(ix.Program, infos, ix.Data)
		rec := Record{
			Slot:        slot,
			Index:       i,
			Program:     program,
			Instruction: name,
			Units:       inv.meter.Used(),
			Events:      inv.events,
		}

		entry := log.WithFields(logrus.Fields{
			"slot":        slot,
			"program":     program,
			"instruction": name,
			"units":       rec.Units,
		})
		if err != nil {
			r.ledger.Restore(snap)
			rec.Events = nil
			rec.Err = ErrorName(err)
			r.trace = append(r.trace, rec)
			entry.WithError(err).Debug("instruction failed")
			return receipt, &InstructionError{Index: i, Err: err}
		}
		entry.Debug("instruction processed")
		receipt.Instructions = append(receipt.Instructions, rec)
	}

	r.trace = append(r.trace, receipt.Instructions...)
	return receipt, nil
}

// describe names the program and instruction of ix for the trace.
func (r *Runtime) describe(ix solana.Instruction) (string, string) {
	switch ix.Program {
	case system.ProgramKey:
		cmd, err := system.DecodeCommand(ix.Data)
		if err != nil {
			return "system", "unknown"
		}
		switch cmd {
		case system.CommandCreateAccount:
			return "system", "createAccount"
		case system.CommandTransfer:
			return "system", "transfer"
		}
		return "system", "unknown"
	case token.ProgramKey:
		if len(ix.Data) == 0 {
			return "token", "unknown"
		}
		return "token", token.Command(ix.Data[0]).String()
	}
	p, ok := r.programs[ix.Program]
	if !ok {
		return ix.Program.String(), "unknown"
	}
	if len(ix.Data) > 0 && int(ix.Data[0]) < len(p.Handlers) {
		return p.Name, p.Handlers[ix.Data[0]].Name
	}
	return p.Name, "unknown"
}

// accountInfo is an account as one program invocation sees it.
type accountInfo struct {
	key      solana.PublicKey
	signer   bool
	writable bool
}

// invocation carries the state shared by a top-level instruction and the
// programs it invokes.
type invocation struct {
	rt     *Runtime
	meter  *ComputeMeter
	events []Event
}

func (inv *invocation) execute(program solana.PublicKey, infos []accountInfo, data []byte) error {
	switch program {
	case system.ProgramKey:
		if err := inv.meter.Consume(systemProgramCost); err != nil {
			return err
		}
		return inv.system(infos, data)
	case token.ProgramKey:
		if err := inv.meter.Consume(tokenProgramCost); err != nil {
			return err
		}
		return inv.token(infos, data)
	}
	p, ok := inv.rt.programs[program]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProgram, program)
	}
	return inv.run(p, infos, data)
}

// invokeSigned runs a cross-program invocation from caller. Callee metas
// may only keep or drop the privileges the caller holds, except that keys
// derived from signerSeeds under caller become signers.
func (inv *invocation) invokeSigned(caller solana.PublicKey, parent []accountInfo, ix solana.Instruction, signerSeeds ...[][]byte) error {
	if err := inv.meter.Consume(invokeCost); err != nil {
		return err
	}

	pdas := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		k, err := solana.CreateProgramAddress(caller, seeds...)
		if err != nil {
			return fmt.Errorf("%w: %v", onchain.ErrInvalidSeeds, err)
		}
		pdas[k] = true
	}

	infos := make([]accountInfo, len(ix.Accounts))
	for i, m := range ix.Accounts {
		p, ok := findInfo(parent, m.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, m.PublicKey)
		}
		signer := p.signer || pdas[m.PublicKey]
		if m.IsSigner && !signer {
			return fmt.Errorf("%w: %s is not a signer", ErrPrivilegeEscalation, m.PublicKey)
		}
		if m.IsWritable && !p.writable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, m.PublicKey)
		}
		infos[i] = accountInfo{key: m.PublicKey, signer: m.IsSigner, writable: m.IsWritable}
	}
	return inv.execute(ix.Program, infos, ix.Data)
}

func findInfo(infos []accountInfo, key solana.PublicKey) (accountInfo, bool) {
	var found accountInfo
	ok := false
	for _, info := range infos {
		if info.key != key {
			continue
		}
		// Duplicate metas merge their privileges.
		found.key = key
		found.signer = found.signer || info.signer
		found.writable = found.writable || info.writable
		ok = true
	}
	return found, ok
}

// write replaces the data and lamports of an account on behalf of program,
// enforcing the runtime's ownership and writability rules.
func (inv *invocation) write(program solana.PublicKey, info accountInfo, a *Account) error {
	if !info.writable {
		return ErrReadonlyDataModified
	}
	cur := inv.rt.ledger.account(info.key)
	if cur.Owner != program && !bytes.Equal(cur.Data, a.Data) {
		return ErrExternalDataModified
	}
	inv.rt.ledger.put(info.key, a)
	return nil
}
