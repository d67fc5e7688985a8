package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
)

// Validate checks a complete IR document.
// Returns all errors found (does not fail-fast).
func Validate(doc *ir.Document) []ValidationError {
	v := &validator{doc: doc, pdas: make(map[string]pdaSite)}
	v.document()
	return v.errs
}

type validator struct {
	doc  *ir.Document
	errs []ValidationError
	pdas map[string]pdaSite
}

// pdaSite records where a seed list was first declared for a name.
type pdaSite struct {
	pda  *ir.Pda
	path string
}

func (v *validator) add(code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) document() {
	doc := v.doc

	if doc.Name == "" {
		v.add(ErrMalformedDeclaration, "name", "program name is required")
	}
	if _, err := solana.ParsePublicKey(doc.ProgramAddress); err != nil {
		v.add(ErrMalformedDeclaration, "programAddress", "invalid program address %q: %v", doc.ProgramAddress, err)
	}

	keys := make(map[string]bool)
	for _, e := range doc.Accounts {
		path := fmt.Sprintf("accounts[%s]", e.Key)
		if keys[e.Key] {
			v.add(ErrDuplicateName, path, "duplicate account key %q", e.Key)
			continue
		}
		keys[e.Key] = true
		v.schema(path+".schema", e.Def.Schema)
		if e.Def.Pda != nil {
			v.seedLimits(path+".pda", e.Def.Pda)
			v.registerPda(e.Key, e.Def.Pda, path+".pda")
		}
	}

	if len(doc.Instructions) > MaxInstructions {
		v.add(ErrLimitExceeded, "instructions",
			"%d instructions exceed the %d a one-byte discriminator can address", len(doc.Instructions), MaxInstructions)
	}

	names := make(map[string]string)
	for i, ix := range doc.Instructions {
		path := ixPath(ix.Name)
		if ix.Name == "" {
			v.add(ErrMalformedDeclaration, fmt.Sprintf("instructions[%d]", i), "instruction name is required")
		} else if prev, ok := names[ix.Name]; ok {
			v.add(ErrDuplicateName, path, "duplicate name %q (already declared as %s)", ix.Name, prev)
		}
		names[ix.Name] = "instruction"
		if ix.Discriminator != i {
			v.add(ErrMalformedDeclaration, path+".discriminator",
				"discriminator %d does not match declaration position %d", ix.Discriminator, i)
		}
		v.instruction(&ix)
	}

	for i, view := range doc.Views {
		path := fmt.Sprintf("views[%s]", view.Name)
		if view.Name == "" {
			v.add(ErrMalformedDeclaration, fmt.Sprintf("views[%d]", i), "view name is required")
		} else if prev, ok := names[view.Name]; ok {
			v.add(ErrDuplicateName, path, "duplicate name %q (already declared as %s)", view.Name, prev)
		}
		names[view.Name] = "view"
		v.view(path, &view)
	}
}

func (v *validator) schema(path string, s ir.Schema) {
	seen := make(map[string]bool)
	for _, f := range s {
		fpath := fmt.Sprintf("%s.%s", path, f.Name)
		if f.Name == "" {
			v.add(ErrMalformedDeclaration, path, "field name is required")
			continue
		}
		if seen[f.Name] {
			v.add(ErrDuplicateName, fpath, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			v.add(ErrUnsupportedType, fpath, "unsupported type %q (expected u8, u64 or pubkey)", f.Type)
		}
	}
}

func (v *validator) seedLimits(path string, p *ir.Pda) {
	// The bump takes one of the runtime's seed slots.
	if len(p.Seeds)+1 > solana.MaxSeeds {
		v.add(ErrLimitExceeded, path, "%d seeds plus bump exceed the limit of %d", len(p.Seeds), solana.MaxSeeds)
	}
	for i, s := range p.Seeds {
		if lit, ok := s.(ir.SeedLiteral); ok && len(lit.Value) > solana.MaxSeedLength {
			v.add(ErrLimitExceeded, fmt.Sprintf("%s.seeds[%d]", path, i),
				"literal seed is %d bytes, limit is %d", len(lit.Value), solana.MaxSeedLength)
		}
	}
}

func (v *validator) registerPda(name string, p *ir.Pda, path string) {
	site, ok := v.pdas[name]
	if !ok {
		v.pdas[name] = pdaSite{pda: p, path: path}
		return
	}
	if !site.pda.Equal(p) {
		v.add(ErrPdaConflict, path, "conflicting PDA definition for %q (first declared at %s)", name, site.path)
	}
}

// scope is the naming context of an instruction or view. uninit names the
// state.init target while its state does not exist yet.
type scope struct {
	args   ir.Schema
	slots  map[string]ir.AccountMeta
	order  []string
	view   bool
	uninit string
}

func (v *validator) instruction(ix *ir.Instruction) {
	path := ixPath(ix.Name)
	sc := &scope{args: ix.Args, slots: make(map[string]ir.AccountMeta)}

	v.args(path+".args", ix.Args)

	for i, m := range ix.Accounts {
		if m.Name == "" {
			v.add(ErrMalformedDeclaration, fmt.Sprintf("%s.accounts[%d]", path, i), "account slot name is required")
			continue
		}
		if _, dup := sc.slots[m.Name]; dup {
			v.add(ErrDuplicateName, fmt.Sprintf("%s.accounts[%s]", path, m.Name), "duplicate account slot %q", m.Name)
			continue
		}
		sc.slots[m.Name] = m
		sc.order = append(sc.order, m.Name)
	}

	for _, op := range ix.Ops {
		if init, ok := op.(ir.StateInit); ok {
			sc.uninit = init.Account
			break
		}
	}

	for _, m := range ix.Accounts {
		v.slot(sc, fmt.Sprintf("%s.accounts[%s]", path, m.Name), m)
	}
	v.seedCycles(path, ix.Accounts)

	inits := 0
	for j, op := range ix.Ops {
		opPath := fmt.Sprintf("%s.ops[%d]", path, j)
		if op == nil {
			v.add(ErrUnsupportedType, opPath, "missing op")
			continue
		}
		if op.Kind() == ir.OpStateInit {
			inits++
			if inits == 2 {
				v.add(ErrMultipleInit, opPath, "instruction %q has more than one state.init", ix.Name)
			}
		}
		_, _ = ir.WalkOp[struct{}](op, &opChecker{v: v, sc: sc, path: opPath})
		if init, ok := op.(ir.StateInit); ok && init.Account == sc.uninit {
			sc.uninit = ""
		}
	}
}

func (v *validator) args(path string, args ir.Schema) {
	v.schema(path, args)
	for _, a := range args {
		if a.Name == ReservedArgName {
			v.add(ErrReservedArgName, fmt.Sprintf("%s.%s", path, a.Name),
				"argument name %q is reserved for instruction dispatch", a.Name)
		}
	}
}

func (v *validator) slot(sc *scope, path string, m ir.AccountMeta) {
	if !m.Role.Valid() {
		v.add(ErrUnsupportedType, path+".role", "unsupported role %q", m.Role)
	}

	switch m.Role {
	case ir.RoleMint:
		if m.Address == nil {
			v.add(ErrUnsupportedType, path+".address", "mint slot %q requires an address", m.Name)
		}
	case ir.RoleATA:
		if m.Owner == nil || m.Mint == nil {
			v.add(ErrUnsupportedType, path, "associated token slot %q requires an owner and a mint", m.Name)
		}
	case ir.RoleProgram:
		if m.Signer || m.Writable {
			v.add(ErrUnsupportedType, path, "program slot %q cannot be a signer or writable", m.Name)
		}
	}

	for _, ref := range []struct {
		name string
		addr ir.AddressRef
	}{{"address", m.Address}, {"owner", m.Owner}, {"mint", m.Mint}} {
		if ref.addr == nil {
			continue
		}
		c := &refChecker{v: v, sc: sc, path: fmt.Sprintf("%s.%s", path, ref.name)}
		t, _ := ir.WalkAddress[ir.ScalarType](ref.addr, c)
		if t != "" && t != ir.Pubkey {
			v.add(ErrUnsupportedType, c.path, "address must be a pubkey, got %s", t)
		}
	}

	if m.Pda != nil {
		ppath := path + ".pda"
		v.seedLimits(ppath, m.Pda)
		for i, s := range m.Pda.Seeds {
			c := &refChecker{v: v, sc: sc, path: fmt.Sprintf("%s.seeds[%d]", ppath, i)}
			_, _ = ir.WalkSeed[ir.ScalarType](s, c)
		}
		v.registerPda(m.Name, m.Pda, ppath)
	}
}

func (v *validator) view(path string, view *ir.ViewDef) {
	v.args(path+".args", view.Args)
	sc := &scope{args: view.Args, view: true}

	seen := make(map[string]bool)
	for _, r := range view.Returns {
		rpath := fmt.Sprintf("%s.returns.%s", path, r.Name)
		if seen[r.Name] {
			v.add(ErrDuplicateName, rpath, "duplicate return %q", r.Name)
		}
		seen[r.Name] = true

		c := &refChecker{v: v, sc: sc, path: rpath}
		if r.Type == ir.Ratio {
			if r.Expr == nil || r.Den == nil {
				v.add(ErrUnsupportedType, rpath, "ratio return requires a numerator and a denominator")
				continue
			}
			for _, e := range []ir.Expr{r.Expr, r.Den} {
				if t := c.expr(e); t != "" && !t.Numeric() {
					v.add(ErrUnsupportedType, rpath, "ratio operands must be numeric, got %s", t)
				}
			}
			continue
		}
		st, ok := r.Type.Scalar()
		if !ok {
			v.add(ErrUnsupportedType, rpath, "unsupported return type %q", r.Type)
			continue
		}
		if r.Expr == nil {
			v.add(ErrUndefinedField, rpath, "return %q has no expression and the view reads no account", r.Name)
			continue
		}
		if t := c.expr(r.Expr); t != "" && !assignable(st, t) {
			v.add(ErrUnsupportedType, rpath, "cannot return %s as %s", t, st)
		}
	}
}

// seedCycles reports slots whose PDA seeds depend on each other.
func (v *validator) seedCycles(path string, accounts []ir.AccountMeta) {
	graph := make(seedGraph)
	for _, m := range accounts {
		if m.Pda == nil {
			continue
		}
		refs := ir.SeedRefs(m.Pda.Seeds)
		deps := append([]string{}, refs.Accounts...)
		for _, f := range refs.Fields {
			deps = append(deps, f.Account)
		}
		graph[m.Name] = deps
	}
	for _, cycle := range AnalyzeSeedCycles(graph) {
		v.add(ErrSeedCycle, path+".accounts", "%s", cycle.Message)
	}
}

// assignable reports whether a value of type from may be stored as to.
func assignable(to, from ir.ScalarType) bool {
	if to == from {
		return true
	}
	return to.Numeric() && from.Numeric()
}

// refChecker resolves and type-checks references in one scope. A zero
// ScalarType result means the reference was invalid and already reported.
type refChecker struct {
	v    *validator
	sc   *scope
	path string
}

func (c *refChecker) expr(e ir.Expr) ir.ScalarType {
	if e == nil {
		c.v.add(ErrUnsupportedType, c.path, "missing expression")
		return ""
	}
	t, _ := ir.WalkExpr[ir.ScalarType](e, c)
	return t
}

func (c *refChecker) value(val ir.Value) ir.ScalarType {
	if val == nil {
		c.v.add(ErrUnsupportedType, c.path, "missing value")
		return ""
	}
	t, _ := ir.WalkValue[ir.ScalarType](val, c)
	return t
}

func (c *refChecker) VisitConst(ir.Const) (ir.ScalarType, error) {
	return ir.U64, nil
}

func (c *refChecker) VisitLiteral(ir.SeedLiteral) (ir.ScalarType, error) {
	return "", nil
}

func (c *refChecker) VisitArg(a ir.Arg) (ir.ScalarType, error) {
	f, ok := c.sc.args.Lookup(a.Name)
	if !ok {
		c.v.add(ErrUndefinedArg, c.path, "undefined argument %q%s", a.Name, suggest(a.Name, c.sc.args.Names()))
		return "", nil
	}
	return f.Type, nil
}

func (c *refChecker) VisitAccount(a ir.AccountRef) (ir.ScalarType, error) {
	if _, ok := c.sc.slots[a.Name]; !ok {
		c.v.add(ErrUndefinedSlot, c.path, "undefined account slot %q%s", a.Name, suggest(a.Name, c.sc.order))
		return "", nil
	}
	return ir.Pubkey, nil
}

func (c *refChecker) VisitBump(b ir.BumpRef) (ir.ScalarType, error) {
	m, ok := c.sc.slots[b.Account]
	if !ok {
		c.v.add(ErrUndefinedSlot, c.path, "undefined account slot %q%s", b.Account, suggest(b.Account, c.sc.order))
		return "", nil
	}
	if m.Pda == nil {
		c.v.add(ErrBumpWithoutPda, c.path, "bump of %q requires the slot to declare a PDA", b.Account)
		return "", nil
	}
	return ir.U8, nil
}

func (c *refChecker) VisitField(f ir.FieldRef) (ir.ScalarType, error) {
	if c.sc.view {
		arg, ok := c.sc.args.Lookup(f.Account)
		if !ok || arg.Type != ir.Pubkey {
			c.v.add(ErrUndefinedField, c.path, "field %s reads %q, which is not a pubkey argument of the view", f, f.Account)
			return "", nil
		}
	} else if _, ok := c.sc.slots[f.Account]; !ok {
		c.v.add(ErrUndefinedField, c.path, "field %s reads %q, which is not an account of the instruction%s",
			f, f.Account, suggest(f.Account, c.sc.order))
		return "", nil
	}

	def, ok := c.v.doc.Accounts.Lookup(f.Account)
	if !ok {
		c.v.add(ErrUndefinedField, c.path, "field %s reads %q, which holds no declared state%s",
			f, f.Account, suggest(f.Account, c.v.doc.Accounts.Keys()))
		return "", nil
	}
	field, ok := def.Schema.Lookup(f.Name)
	if !ok {
		c.v.add(ErrUndefinedField, c.path, "undefined field %s%s", f, suggest(f.Name, def.Schema.Names()))
		return "", nil
	}
	if !c.sc.view && f.Account == c.sc.uninit {
		c.v.add(ErrReadBeforeInit, c.path, "field %s is read before state.init creates %q", f, f.Account)
	}
	return field.Type, nil
}

func (c *refChecker) VisitBinary(b ir.Binary) (ir.ScalarType, error) {
	if !b.Op.Valid() {
		c.v.add(ErrUnsupportedType, c.path, "unsupported operator %q", b.Op)
		return "", nil
	}
	lt, rt := c.expr(b.Left), c.expr(b.Right)
	if lt == "" || rt == "" {
		if b.Op == ir.OpEq {
			return ir.Bool, nil
		}
		return ir.U64, nil
	}
	if b.Op == ir.OpEq {
		if !(lt.Numeric() && rt.Numeric()) && lt != rt {
			c.v.add(ErrUnsupportedType, c.path, "cannot compare %s with %s", lt, rt)
		}
		return ir.Bool, nil
	}
	if !lt.Numeric() || !rt.Numeric() {
		c.v.add(ErrUnsupportedType, c.path, "%s requires numeric operands, got %s and %s", b.Op, lt, rt)
	}
	return ir.U64, nil
}

func (c *refChecker) VisitIf(i ir.If) (ir.ScalarType, error) {
	if ct := c.expr(i.Cond); ct != "" && ct != ir.Bool {
		c.v.add(ErrUnsupportedType, c.path, "if condition must be a comparison, got %s", ct)
	}
	tt, et := c.expr(i.Then), c.expr(i.Else)
	switch {
	case tt == "" || et == "":
		return "", nil
	case tt.Numeric() && et.Numeric():
		return ir.U64, nil
	case tt != et || tt == ir.Bool:
		c.v.add(ErrUnsupportedType, c.path, "if branches must have matching value types, got %s and %s", tt, et)
		return "", nil
	}
	return tt, nil
}

// opChecker validates one op against its instruction scope.
type opChecker struct {
	v    *validator
	sc   *scope
	path string
}

func (o *opChecker) requireSlot(field, name string) (ir.AccountMeta, bool) {
	m, ok := o.sc.slots[name]
	if !ok {
		o.v.add(ErrUndefinedSlot, o.path+"."+field, "undefined account slot %q%s", name, suggest(name, o.sc.order))
	}
	return m, ok
}

func (o *opChecker) token(t ir.TokenOp) (struct{}, error) {
	fields := map[ir.OpKind][]string{
		ir.OpTokenTransfer: {"from", "to", "authority"},
		ir.OpTokenMintTo:   {"mint", "to", "authority"},
		ir.OpTokenBurn:     {"from", "mint", "authority"},
	}[t.Kind]
	for i, name := range t.Slots() {
		if m, ok := o.requireSlot(fields[i], name); ok && i < 2 && !m.Writable {
			o.v.add(ErrUnsupportedType, o.path+"."+fields[i], "%s slot %q must be writable", fields[i], name)
		}
	}
	if m, ok := o.requireSlot("program", t.Program); ok && m.Role != ir.RoleProgram {
		o.v.add(ErrUnsupportedType, o.path+".program", "slot %q is not a program slot", t.Program)
	}
	if t.Signer != "" {
		if _, ok := o.requireSlot("signer", t.Signer); ok && t.Signer != t.Authority {
			o.v.add(ErrUnsupportedType, o.path+".signer", "signer %q must be the authority %q", t.Signer, t.Authority)
		}
	}
	c := &refChecker{v: o.v, sc: o.sc, path: o.path + ".amount"}
	if at := c.expr(t.Amount); at != "" && !at.Numeric() {
		o.v.add(ErrUnsupportedType, c.path, "amount must be numeric, got %s", at)
	}
	return struct{}{}, nil
}

func (o *opChecker) VisitTransfer(op ir.TokenTransfer) (struct{}, error) {
	t, _ := ir.AsTokenOp(op)
	return o.token(t)
}

func (o *opChecker) VisitMintTo(op ir.TokenMintTo) (struct{}, error) {
	t, _ := ir.AsTokenOp(op)
	return o.token(t)
}

func (o *opChecker) VisitBurn(op ir.TokenBurn) (struct{}, error) {
	t, _ := ir.AsTokenOp(op)
	return o.token(t)
}

// target resolves the state written by an init or update.
func (o *opChecker) target(account string) (ir.AccountDef, bool) {
	m, ok := o.requireSlot("account", account)
	if !ok {
		return ir.AccountDef{}, false
	}
	def, ok := o.v.doc.Accounts.Lookup(account)
	if !ok {
		o.v.add(ErrInvalidStateTarget, o.path+".account",
			"slot %q holds no declared state%s", account, suggest(account, o.v.doc.Accounts.Keys()))
		return ir.AccountDef{}, false
	}
	if !m.Writable {
		o.v.add(ErrInvalidStateTarget, o.path+".account", "state slot %q must be writable", account)
	}
	return def, true
}

func (o *opChecker) assign(def ir.AccountDef, name string, valueType func(c *refChecker) ir.ScalarType, seen map[string]bool) {
	fpath := fmt.Sprintf("%s.fields.%s", o.path, name)
	if seen[name] {
		o.v.add(ErrDuplicateName, fpath, "field %q assigned twice", name)
	}
	seen[name] = true
	c := &refChecker{v: o.v, sc: o.sc, path: fpath}
	t := valueType(c)
	field, ok := def.Schema.Lookup(name)
	if !ok {
		o.v.add(ErrInvalidStateTarget, fpath, "%s has no field %q%s", def.Name, name, suggest(name, def.Schema.Names()))
		return
	}
	if t != "" && !assignable(field.Type, t) {
		o.v.add(ErrUnsupportedType, fpath, "cannot assign %s to %s field %q", t, field.Type, name)
	}
}

func (o *opChecker) VisitInit(op ir.StateInit) (struct{}, error) {
	def, ok := o.target(op.Account)
	if !ok {
		return struct{}{}, nil
	}
	seen := make(map[string]bool)
	for _, f := range op.Fields {
		o.assign(def, f.Name, func(c *refChecker) ir.ScalarType { return c.value(f.Value) }, seen)
	}
	var missing []string
	for _, f := range def.Schema {
		if !seen[f.Name] {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		o.v.add(ErrInvalidStateTarget, o.path+".fields", "state.init of %q leaves fields unset: %v", op.Account, missing)
	}
	return struct{}{}, nil
}

func (o *opChecker) VisitUpdate(op ir.StateUpdate) (struct{}, error) {
	def, ok := o.target(op.Account)
	if !ok {
		return struct{}{}, nil
	}
	if op.Account == o.sc.uninit {
		o.v.add(ErrReadBeforeInit, o.path+".account", "state.update of %q runs before state.init creates it", op.Account)
	}
	seen := make(map[string]bool)
	for _, f := range op.Fields {
		o.assign(def, f.Name, func(c *refChecker) ir.ScalarType { return c.expr(f.Expr) }, seen)
	}
	return struct{}{}, nil
}

func (o *opChecker) VisitEvent(op ir.Event) (struct{}, error) {
	if op.Name == "" {
		o.v.add(ErrMalformedDeclaration, o.path+".name", "event name is required")
	}
	seen := make(map[string]bool)
	for _, f := range op.Data {
		fpath := fmt.Sprintf("%s.data.%s", o.path, f.Name)
		if seen[f.Name] {
			o.v.add(ErrDuplicateName, fpath, "event field %q assigned twice", f.Name)
		}
		seen[f.Name] = true
		c := &refChecker{v: o.v, sc: o.sc, path: fpath}
		if t := c.value(f.Value); t == ir.Bool {
			o.v.add(ErrUnsupportedType, fpath, "event fields cannot hold comparisons")
		}
	}
	return struct{}{}, nil
}
