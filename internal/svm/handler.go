package svm

import (
	"fmt"
	"strconv"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/system"
	"github.com/roach88/solforge/pkg/solana/token"
)

// run dispatches data to a handler of p and executes its steps in order.
func (inv *invocation) run(p *onchain.Program, infos []accountInfo, data []byte) error {
	h, rest, err := p.Dispatch(data, len(infos))
	if err != nil {
		return err
	}
	args, err := h.Args.Decode(rest)
	if err != nil {
		return err
	}

	f := &frame{
		inv:     inv,
		prog:    p,
		h:       h,
		infos:   infos,
		args:    args,
		states:  make(map[string]onchain.Record),
		bumps:   make(map[string]uint8),
		signers: make(map[string][][]byte),
	}
	for _, s := range h.Steps {
		if err := inv.meter.Consume(stepCost); err != nil {
			return err
		}
		if err := onchain.WalkStep(s, f); err != nil {
			return err
		}
	}
	return nil
}

// frame is one handler execution. It is both the evaluation environment of
// the handler's nodes and the visitor that executes its steps.
type frame struct {
	inv     *invocation
	prog    *onchain.Program
	h       *onchain.Handler
	infos   []accountInfo
	args    onchain.Record
	states  map[string]onchain.Record
	bumps   map[string]uint8
	signers map[string][][]byte
}

func (f *frame) info(slot string) (accountInfo, error) {
	s, ok := f.h.Slot(slot)
	if !ok || s.Index >= len(f.infos) {
		return accountInfo{}, fmt.Errorf("%s: unknown slot %q", f.h.Name, slot)
	}
	return f.infos[s.Index], nil
}

func (f *frame) Arg(name string) (any, error) {
	v, ok := f.args[name]
	if !ok {
		return nil, fmt.Errorf("%s: unknown argument %q", f.h.Name, name)
	}
	return v, nil
}

func (f *frame) Field(slot, name string) (any, error) {
	rec, ok := f.states[slot]
	if !ok {
		return nil, fmt.Errorf("%s: state of %q read before it was loaded", f.h.Name, slot)
	}
	v, ok := rec[name]
	if !ok {
		return nil, fmt.Errorf("%s: %q has no field %q", f.h.Name, slot, name)
	}
	return v, nil
}

func (f *frame) Key(slot string) (solana.PublicKey, error) {
	info, err := f.info(slot)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return info.key, nil
}

func (f *frame) Bump(slot string) (uint8, error) {
	b, ok := f.bumps[slot]
	if !ok {
		return 0, fmt.Errorf("%s: bump of %q read before its address was derived", f.h.Name, slot)
	}
	return b, nil
}

func (f *frame) VisitCheckSigner(s onchain.CheckSigner) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	if !info.signer {
		return onchain.ErrMissingRequiredSignature
	}
	return nil
}

func (f *frame) VisitCheckWritable(s onchain.CheckWritable) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	if !info.writable {
		return onchain.ErrInvalidAccountData
	}
	return nil
}

func (f *frame) VisitDerivePDA(s onchain.DerivePDA) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	key, bump, err := onchain.DeriveAddress(f.prog.Address, s.Seeds, f)
	if err != nil {
		return err
	}
	if err := f.inv.meter.Consume(pdaAttemptCost * uint64(256-int(bump))); err != nil {
		return err
	}
	if info.key != key {
		return onchain.ErrInvalidSeeds
	}
	f.bumps[s.Slot] = bump
	return nil
}

func (f *frame) VisitCheckAddress(s onchain.CheckAddress) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	want, err := f.address(s.Address, s.Slot, "address")
	if err != nil {
		return err
	}
	if info.key != want {
		return onchain.ErrInvalidAccountData
	}
	return nil
}

func (f *frame) address(n onchain.Node, slot, what string) (solana.PublicKey, error) {
	v, err := onchain.Eval(n, f)
	if err != nil {
		return solana.PublicKey{}, err
	}
	k, ok := v.(solana.PublicKey)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("%s: %s of %q evaluated to %T", f.h.Name, what, slot, v)
	}
	return k, nil
}

func (f *frame) VisitCheckAssociated(s onchain.CheckAssociated) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	owner, err := f.address(s.Owner, s.Slot, "owner")
	if err != nil {
		return err
	}
	mint, err := f.address(s.Mint, s.Slot, "mint")
	if err != nil {
		return err
	}
	if err := f.inv.meter.Consume(pdaAttemptCost); err != nil {
		return err
	}
	want, err := token.GetAssociatedAccount(owner, mint)
	if err != nil {
		return err
	}
	if info.key != want {
		return onchain.ErrInvalidSeeds
	}
	return nil
}

func (f *frame) VisitCheckProgram(s onchain.CheckProgram) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	if info.key != s.Program {
		return onchain.ErrIncorrectProgramID
	}
	return nil
}

// signerSeeds returns the seeds of a PDA slot with its bump appended.
func (f *frame) signerSeeds(slot string, seeds []onchain.Node) ([][]byte, error) {
	bump, err := f.Bump(slot)
	if err != nil {
		return nil, err
	}
	list, err := onchain.SeedList(seeds, f)
	if err != nil {
		return nil, err
	}
	return append(list, []byte{bump}), nil
}

func (f *frame) VisitBuildSigner(s onchain.BuildSigner) error {
	seeds, err := f.signerSeeds(s.Slot, s.Seeds)
	if err != nil {
		return err
	}
	f.signers[s.Slot] = seeds
	return nil
}

func (f *frame) owner(slot string) (solana.PublicKey, accountInfo, error) {
	info, err := f.info(slot)
	if err != nil {
		return solana.PublicKey{}, info, err
	}
	return f.inv.rt.ledger.account(info.key).Owner, info, nil
}

func (f *frame) VisitCheckOwner(s onchain.CheckOwner) error {
	owner, _, err := f.owner(s.Slot)
	if err != nil {
		return err
	}
	if owner != f.prog.Address {
		return onchain.ErrIncorrectProgramID
	}
	return nil
}

func (f *frame) VisitLoadState(s onchain.LoadState) error {
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	rec, err := s.Layout.Decode(f.inv.rt.ledger.account(info.key).Data)
	if err != nil {
		return err
	}
	f.states[s.Slot] = rec
	return nil
}

func (f *frame) VisitEnsureAccount(s onchain.EnsureAccount) error {
	owner, info, err := f.owner(s.Slot)
	if err != nil {
		return err
	}
	if owner != f.prog.Address {
		payer, err := f.info(s.Payer)
		if err != nil {
			return err
		}
		var signers [][][]byte
		if len(s.Seeds) > 0 {
			seeds, err := f.signerSeeds(s.Slot, s.Seeds)
			if err != nil {
				return err
			}
			signers = append(signers, seeds)
		}
		size := uint64(s.Layout.Size)
		ix := system.CreateAccount(payer.key, info.key, f.prog.Address, system.MinimumBalance(size), size)
		if err := f.inv.invokeSigned(f.prog.Address, f.infos, ix, signers...); err != nil {
			return err
		}
	}
	if owner, _, _ := f.owner(s.Slot); owner != f.prog.Address {
		return onchain.ErrIncorrectProgramID
	}
	return nil
}

// evalStores evaluates every field value before any is written.
func (f *frame) evalStores(fields []onchain.FieldStore) ([]any, error) {
	values := make([]any, len(fields))
	for i, fs := range fields {
		v, err := onchain.Eval(fs.Value, f)
		if err != nil {
			return nil, err
		}
		c, err := onchain.Coerce(fs.Field.Type, v)
		if err != nil {
			return nil, err
		}
		values[i] = c
	}
	return values, nil
}

func (f *frame) store(slot string, layout *onchain.Layout, rec onchain.Record) error {
	info, err := f.info(slot)
	if err != nil {
		return err
	}
	a := f.inv.rt.ledger.account(info.key).Clone()
	if err := layout.EncodeInto(a.Data, rec); err != nil {
		return err
	}
	if err := f.inv.write(f.prog.Address, info, a); err != nil {
		return err
	}
	f.states[slot] = rec
	return nil
}

func (f *frame) VisitInitState(s onchain.InitState) error {
	values, err := f.evalStores(s.Fields)
	if err != nil {
		return err
	}
	info, err := f.info(s.Slot)
	if err != nil {
		return err
	}
	rec, err := s.Layout.Decode(f.inv.rt.ledger.account(info.key).Data)
	if err != nil {
		return err
	}
	for i, fs := range s.Fields {
		rec[fs.Field.Name] = values[i]
	}
	return f.store(s.Slot, s.Layout, rec)
}

func (f *frame) VisitUpdateState(s onchain.UpdateState) error {
	cur, ok := f.states[s.Slot]
	if !ok {
		return fmt.Errorf("%s: update of %q before its state was loaded", f.h.Name, s.Slot)
	}
	values, err := f.evalStores(s.Fields)
	if err != nil {
		return err
	}
	rec := make(onchain.Record, len(cur))
	for k, v := range cur {
		rec[k] = v
	}
	for i, fs := range s.Fields {
		rec[fs.Field.Name] = values[i]
	}
	return f.store(s.Slot, s.Layout, rec)
}

func (f *frame) VisitInvokeToken(s onchain.InvokeToken) error {
	if len(s.Accounts) != 3 {
		return fmt.Errorf("%s: token call takes 3 accounts, got %d", f.h.Name, len(s.Accounts))
	}
	var keys [3]solana.PublicKey
	for i, slot := range s.Accounts {
		k, err := f.Key(slot)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	amount, err := onchain.EvalU64(s.Amount, f)
	if err != nil {
		return err
	}
	program, err := f.Key(s.Program)
	if err != nil {
		return err
	}

	var ix solana.Instruction
	switch s.Kind {
	case ir.OpTokenTransfer:
		ix = token.Transfer(keys[0], keys[1], keys[2], amount)
	case ir.OpTokenMintTo:
		ix = token.MintTo(keys[0], keys[1], keys[2], amount)
	case ir.OpTokenBurn:
		ix = token.Burn(keys[0], keys[1], keys[2], amount)
	default:
		return fmt.Errorf("%s: unsupported token op %q", f.h.Name, s.Kind)
	}
	ix.Program = program

	var signers [][][]byte
	if s.Signer != "" {
		seeds, ok := f.signers[s.Signer]
		if !ok {
			return fmt.Errorf("%s: no signer proof built for %q", f.h.Name, s.Signer)
		}
		signers = append(signers, seeds)
	}
	return f.inv.invokeSigned(f.prog.Address, f.infos, ix, signers...)
}

func (f *frame) VisitEmitEvent(s onchain.EmitEvent) error {
	ev := Event{Program: f.prog.Name, Name: s.Name}
	for _, field := range s.Fields {
		v, err := onchain.Eval(field.Value, f)
		if err != nil {
			return err
		}
		ev.Fields = append(ev.Fields, EventField{Name: field.Name, Value: formatValue(v)})
	}
	f.inv.events = append(f.inv.events, ev)
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case solana.PublicKey:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}
