package onchain

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/token"
)

var log = logrus.StandardLogger().WithField("type", "onchain")

// PayerSlot is the preferred name of the account that funds state.init.
const PayerSlot = "payer"

// Lower validates doc and lowers every instruction to a handler.
//
// Failures are compiler.ValidationErrors: the document's own validation
// errors, or lowering errors (E120-E123) for authorities the generated
// program could not enforce.
func Lower(doc *ir.Document) (*Program, error) {
	if errs := compiler.Validate(doc); len(errs) > 0 {
		return nil, compiler.ValidationErrors(errs)
	}
	address, err := solana.ParsePublicKey(doc.ProgramAddress)
	if err != nil {
		return nil, fmt.Errorf("program address: %w", err)
	}
	hash, err := ir.DocumentHash(doc)
	if err != nil {
		return nil, err
	}

	p := &Program{Name: doc.Name, Address: address, IRHash: hash}
	for _, e := range doc.Accounts {
		p.States = append(p.States, State{Key: e.Key, Layout: NewLayout(e.Def.Name, StateLayout, e.Def.Schema)})
	}

	var errs compiler.ValidationErrors
	for i := range doc.Instructions {
		l := &handlerLowering{prog: p, doc: doc, ix: &doc.Instructions[i]}
		if err := l.lower(); err != nil {
			return nil, fmt.Errorf("lower %s: %w", l.ix.Name, err)
		}
		errs = append(errs, l.errs...)
		p.Handlers = append(p.Handlers, l.h)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	log.WithFields(logrus.Fields{
		"program":  p.Name,
		"handlers": len(p.Handlers),
		"hash":     p.IRHash,
	}).Debug("lowered program")
	return p, nil
}

// Scope resolves the names an expression reads: arguments by the given
// schema and fields through the account table.
type Scope struct {
	Args     ir.Schema
	Accounts ir.AccountTable
}

// LowerExpr lowers an expression. A div whose dividend is a product of any
// shape becomes one WideMulDiv over all factors.
func (s Scope) LowerExpr(e ir.Expr) (Node, error) {
	if e == nil {
		return nil, fmt.Errorf("missing expression")
	}
	return ir.WalkExpr[Node](e, s)
}

// LowerValue lowers an init or event value.
func (s Scope) LowerValue(v ir.Value) (Node, error) {
	if v == nil {
		return nil, fmt.Errorf("missing value")
	}
	return ir.WalkValue[Node](v, s)
}

// LowerSeeds lowers a seed list in order.
func (s Scope) LowerSeeds(seeds []ir.Seed) ([]Node, error) {
	out := make([]Node, len(seeds))
	for i, seed := range seeds {
		n, err := ir.WalkSeed[Node](seed, s)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// LowerAddress lowers a slot address reference.
func (s Scope) LowerAddress(a ir.AddressRef) (Node, error) {
	return ir.WalkAddress[Node](a, s)
}

func (s Scope) VisitConst(c ir.Const) (Node, error) {
	return Imm{Value: c.Value}, nil
}

func (s Scope) VisitLiteral(l ir.SeedLiteral) (Node, error) {
	return Bytes{Value: []byte(l.Value)}, nil
}

func (s Scope) VisitArg(a ir.Arg) (Node, error) {
	f, ok := s.Args.Lookup(a.Name)
	if !ok {
		return nil, fmt.Errorf("undefined argument %q", a.Name)
	}
	return LoadArg{Name: a.Name, Type: f.Type}, nil
}

func (s Scope) VisitField(f ir.FieldRef) (Node, error) {
	def, ok := s.Accounts.Lookup(f.Account)
	if !ok {
		return nil, fmt.Errorf("field %s: %q holds no state", f, f.Account)
	}
	field, ok := def.Schema.Lookup(f.Name)
	if !ok {
		return nil, fmt.Errorf("undefined field %s", f)
	}
	return LoadField{Slot: f.Account, Name: f.Name, Type: field.Type}, nil
}

func (s Scope) VisitAccount(a ir.AccountRef) (Node, error) {
	return LoadKey{Slot: a.Name}, nil
}

func (s Scope) VisitBump(b ir.BumpRef) (Node, error) {
	return LoadBump{Slot: b.Account}, nil
}

func (s Scope) VisitBinary(b ir.Binary) (Node, error) {
	if b.Op == ir.OpDiv {
		if factors, ok := mulFactors(b.Left); ok {
			w := WideMulDiv{Factors: make([]Node, len(factors))}
			for i, f := range factors {
				n, err := s.LowerExpr(f)
				if err != nil {
					return nil, err
				}
				w.Factors[i] = n
			}
			d, err := s.LowerExpr(b.Right)
			if err != nil {
				return nil, err
			}
			w.Divisor = d
			return w, nil
		}
	}

	l, err := s.LowerExpr(b.Left)
	if err != nil {
		return nil, err
	}
	r, err := s.LowerExpr(b.Right)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case ir.OpAdd:
		return CheckedAdd{Left: l, Right: r}, nil
	case ir.OpSub:
		return CheckedSub{Left: l, Right: r}, nil
	case ir.OpMul:
		return CheckedMul{Left: l, Right: r}, nil
	case ir.OpDiv:
		return CheckedDiv{Left: l, Right: r}, nil
	case ir.OpEq:
		return Compare{Left: l, Right: r}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q", b.Op)
}

func (s Scope) VisitIf(i ir.If) (Node, error) {
	c, err := s.LowerExpr(i.Cond)
	if err != nil {
		return nil, err
	}
	t, err := s.LowerExpr(i.Then)
	if err != nil {
		return nil, err
	}
	e, err := s.LowerExpr(i.Else)
	if err != nil {
		return nil, err
	}
	return Select{Cond: c, Then: t, Else: e}, nil
}

// mulFactors flattens a multiplication tree of any shape into its factors.
func mulFactors(e ir.Expr) ([]ir.Expr, bool) {
	b, ok := e.(ir.Binary)
	if !ok || b.Op != ir.OpMul {
		return nil, false
	}
	var out []ir.Expr
	for _, side := range []ir.Expr{b.Left, b.Right} {
		if f, ok := mulFactors(side); ok {
			out = append(out, f...)
		} else {
			out = append(out, side)
		}
	}
	return out, true
}

// handlerLowering builds the steps of one instruction.
type handlerLowering struct {
	prog  *Program
	doc   *ir.Document
	ix    *ir.Instruction
	scope Scope
	h     *Handler
	errs  []compiler.ValidationError

	signers map[string]bool
	payer   string
}

func (l *handlerLowering) fail(code, field, format string, args ...any) {
	l.errs = append(l.errs, compiler.ValidationError{
		Field:   fmt.Sprintf("instructions[%s]%s", l.ix.Name, field),
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (l *handlerLowering) add(s Step) {
	l.h.Steps = append(l.h.Steps, s)
}

func (l *handlerLowering) lower() error {
	ix := l.ix
	l.scope = Scope{Args: ix.Args, Accounts: l.doc.Accounts}
	l.signers = make(map[string]bool)
	l.h = &Handler{
		Name:          ix.Name,
		Discriminator: uint8(ix.Discriminator),
		Args:          NewLayout(ix.Name, ArgsLayout, ix.Args),
	}
	for i, m := range ix.Accounts {
		l.h.Slots = append(l.h.Slots, Slot{
			Name:     m.Name,
			Index:    i,
			Signer:   m.Signer,
			Writable: m.Writable,
			Role:     m.Role,
			Pda:      m.Pda != nil,
		})
	}

	initTarget := ""
	for _, op := range ix.Ops {
		if init, ok := op.(ir.StateInit); ok {
			initTarget = init.Account
		}
	}

	for _, m := range ix.Accounts {
		if m.Signer {
			l.add(CheckSigner{Slot: m.Name})
		}
		if m.Writable {
			l.add(CheckWritable{Slot: m.Name})
		}
	}

	checked := make(map[string]bool)
	for _, op := range ix.Ops {
		t, ok := ir.AsTokenOp(op)
		if !ok || checked[t.Program] {
			continue
		}
		checked[t.Program] = true
		l.add(CheckProgram{Slot: t.Program, Program: token.ProgramKey})
	}

	// Seeds and addresses that read persisted fields are checked after the
	// state they read is loaded.
	var late []Step
	for _, m := range ix.Accounts {
		if m.Pda == nil {
			continue
		}
		seeds, err := l.scope.LowerSeeds(m.Pda.Seeds)
		if err != nil {
			return err
		}
		step := DerivePDA{Slot: m.Name, Seeds: seeds}
		if len(ir.SeedRefs(m.Pda.Seeds).Fields) > 0 {
			late = append(late, step)
		} else {
			l.add(step)
		}
	}
	for _, m := range ix.Accounts {
		if m.Role != ir.RoleMint || m.Address == nil {
			continue
		}
		addr, err := l.scope.LowerAddress(m.Address)
		if err != nil {
			return err
		}
		step := CheckAddress{Slot: m.Name, Address: addr}
		if readsState(m.Address) {
			late = append(late, step)
		} else {
			l.add(step)
		}
	}

	for _, m := range ix.Accounts {
		if m.Role != ir.RoleATA || m.Owner == nil || m.Mint == nil {
			continue
		}
		owner, err := l.scope.LowerAddress(m.Owner)
		if err != nil {
			return err
		}
		mint, err := l.scope.LowerAddress(m.Mint)
		if err != nil {
			return err
		}
		step := CheckAssociated{Slot: m.Name, Owner: owner, Mint: mint}
		if readsState(m.Owner) || readsState(m.Mint) {
			late = append(late, step)
		} else {
			l.add(step)
		}
	}

	for _, m := range ix.Accounts {
		if m.Name == initTarget {
			continue
		}
		if layout, ok := l.prog.State(m.Name); ok {
			l.add(CheckOwner{Slot: m.Name})
			l.add(LoadState{Slot: m.Name, Layout: layout})
		}
	}
	for _, s := range late {
		l.add(s)
	}

	if err := l.signerProofs(); err != nil {
		return err
	}
	if initTarget != "" {
		l.checkInit(initTarget)
	}

	for j, op := range ix.Ops {
		c := &opLowering{l: l, index: j}
		if _, err := ir.WalkOp[struct{}](op, c); err != nil {
			return fmt.Errorf("ops[%d]: %w", j, err)
		}
	}
	return nil
}

func readsState(a ir.AddressRef) bool {
	_, ok := a.(ir.FieldRef)
	return ok
}

// signerProofs adds a BuildSigner for every PDA slot that signs a token CPI
// and rejects signers the program has no way to authorize.
func (l *handlerLowering) signerProofs() error {
	for j, op := range l.ix.Ops {
		t, ok := ir.AsTokenOp(op)
		if !ok || t.Signer == "" {
			continue
		}
		m, _, ok := l.ix.Slot(t.Signer)
		if !ok {
			continue
		}
		switch {
		case m.Pda != nil:
			if l.signers[m.Name] {
				continue
			}
			seeds, err := l.scope.LowerSeeds(m.Pda.Seeds)
			if err != nil {
				return err
			}
			l.signers[m.Name] = true
			l.add(BuildSigner{Slot: m.Name, Seeds: seeds})
		case !m.Signer:
			l.fail(ErrSignerAuthority, fmt.Sprintf(".ops[%d].signer", j),
				"signer %q must be a PDA slot or a transaction signer", t.Signer)
		}
	}
	return nil
}

func (l *handlerLowering) checkInit(target string) {
	m, _, ok := l.ix.Slot(target)
	if !ok {
		return
	}
	path := fmt.Sprintf(".accounts[%s]", target)
	if m.Pda == nil && !m.Signer {
		l.fail(ErrInitTarget, path, "state.init target %q must be a PDA or a signer", target)
	}
	if m.Pda != nil && len(ir.SeedRefs(m.Pda.Seeds).Fields) > 0 {
		l.fail(ErrInitSeeds, path+".pda", "seeds of state.init target %q cannot read persisted fields", target)
	}

	if p, _, ok := l.ix.Slot(PayerSlot); ok && p.Signer && p.Writable {
		l.payer = p.Name
		return
	}
	for _, s := range l.ix.Accounts {
		if s.Signer && s.Writable && s.Name != target {
			l.payer = s.Name
			return
		}
	}
	l.fail(ErrInitPayer, ".accounts", "state.init of %q requires a writable signer to pay for the account", target)
}

// opLowering lowers one op into steps.
type opLowering struct {
	l     *handlerLowering
	index int
}

func (o *opLowering) token(t ir.TokenOp) (struct{}, error) {
	amount, err := o.l.scope.LowerExpr(t.Amount)
	if err != nil {
		return struct{}{}, err
	}
	step := InvokeToken{Kind: t.Kind, Accounts: t.Slots(), Amount: amount, Program: t.Program}
	if o.l.signers[t.Signer] {
		step.Signer = t.Signer
	}
	o.l.add(step)
	return struct{}{}, nil
}

func (o *opLowering) VisitTransfer(op ir.TokenTransfer) (struct{}, error) {
	t, _ := ir.AsTokenOp(op)
	return o.token(t)
}

func (o *opLowering) VisitMintTo(op ir.TokenMintTo) (struct{}, error) {
	t, _ := ir.AsTokenOp(op)
	return o.token(t)
}

func (o *opLowering) VisitBurn(op ir.TokenBurn) (struct{}, error) {
	t, _ := ir.AsTokenOp(op)
	return o.token(t)
}

func (o *opLowering) stores(layout *Layout, name string, value Node) (FieldStore, error) {
	f, ok := layout.Field(name)
	if !ok {
		return FieldStore{}, fmt.Errorf("%s has no field %q", layout.Name, name)
	}
	return FieldStore{Field: f, Value: value}, nil
}

func (o *opLowering) VisitInit(op ir.StateInit) (struct{}, error) {
	layout, ok := o.l.prog.State(op.Account)
	if !ok {
		return struct{}{}, fmt.Errorf("slot %q holds no state", op.Account)
	}
	ensure := EnsureAccount{Slot: op.Account, Payer: o.l.payer, Layout: layout}
	if m, _, ok := o.l.ix.Slot(op.Account); ok && m.Pda != nil {
		seeds, err := o.l.scope.LowerSeeds(m.Pda.Seeds)
		if err != nil {
			return struct{}{}, err
		}
		ensure.Seeds = seeds
	}
	o.l.add(ensure)

	init := InitState{Slot: op.Account, Layout: layout}
	for _, a := range op.Fields {
		n, err := o.l.scope.LowerValue(a.Value)
		if err != nil {
			return struct{}{}, err
		}
		fs, err := o.stores(layout, a.Name, n)
		if err != nil {
			return struct{}{}, err
		}
		init.Fields = append(init.Fields, fs)
	}
	o.l.add(init)
	return struct{}{}, nil
}

func (o *opLowering) VisitUpdate(op ir.StateUpdate) (struct{}, error) {
	layout, ok := o.l.prog.State(op.Account)
	if !ok {
		return struct{}{}, fmt.Errorf("slot %q holds no state", op.Account)
	}
	update := UpdateState{Slot: op.Account, Layout: layout}
	for _, u := range op.Fields {
		n, err := o.l.scope.LowerExpr(u.Expr)
		if err != nil {
			return struct{}{}, err
		}
		fs, err := o.stores(layout, u.Name, n)
		if err != nil {
			return struct{}{}, err
		}
		update.Fields = append(update.Fields, fs)
	}
	o.l.add(update)
	return struct{}{}, nil
}

func (o *opLowering) VisitEvent(op ir.Event) (struct{}, error) {
	ev := EmitEvent{Name: op.Name}
	for _, a := range op.Data {
		n, err := o.l.scope.LowerValue(a.Value)
		if err != nil {
			return struct{}{}, err
		}
		ev.Fields = append(ev.Fields, EventField{Name: a.Name, Value: n})
	}
	o.l.add(ev)
	return struct{}{}, nil
}
