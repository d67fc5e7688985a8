package loader

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/agnivade/levenshtein"

	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
)

// CUELoader reads a program declared under the top-level "program" field
// of a CUE file or package directory.
//
//	program: {
//		name:    "Counter"
//		address: "..."
//		accounts: counter: {name: "CounterState", schema: {count: "u64"}, pda: ["counter", {account: "owner"}]}
//		instructions: increment: {
//			args: {by: "u64"}
//			accounts: [{name: "owner", signer: true}, {name: "counter", writable: true}]
//			ops: [{update: {account: "counter", set: {count: {add: [{field: "counter.count"}, {arg: "by"}]}}}}]
//		}
//		views: counterValue: {args: {counter: "pubkey"}, returns: {count: "u64"}}
//	}
//
// Struct field order is declaration order, so it fixes instruction
// discriminators and schema layouts.
type CUELoader struct{}

func (CUELoader) Load(ctx context.Context, source string) (*dsl.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := buildValue(source)
	if err != nil {
		return nil, err
	}
	log.WithField("source", source).Debug("decoding CUE program")
	return DecodeProgram(v)
}

func buildValue(source string) (cue.Value, error) {
	info, err := os.Stat(source)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("source not found: %s", source)}
	}
	cctx := cuecontext.New()

	if !info.IsDir() {
		data, err := os.ReadFile(source)
		if err != nil {
			return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		v := cctx.CompileBytes(data, cue.Filename(source))
		if err := v.Err(); err != nil {
			return cue.Value{}, cueError(ErrCodeBuildFailed, err)
		}
		return v, nil
	}

	files, err := FindCUEFiles(source)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("failed to scan directory: %v", err)}
	}
	if len(files) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no .cue files found in %s", source)}
	}

	insts := load.Instances([]string{"."}, &load.Config{Dir: source})
	if len(insts) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	if insts[0].Err != nil {
		return cue.Value{}, cueError(ErrCodeLoadFailed, insts[0].Err)
	}
	v := cctx.BuildInstance(insts[0])
	if err := v.Err(); err != nil {
		return cue.Value{}, cueError(ErrCodeBuildFailed, err)
	}
	return v, nil
}

// cueError keeps the first CUE error and its position.
func cueError(code string, err error) *LoadError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if pos := errors.Positions(first); len(pos) > 0 {
		le.Pos = pos[0]
	}
	return le
}

// DecodeProgram converts the "program" field of v into a Program Model.
func DecodeProgram(root cue.Value) (*dsl.Program, error) {
	v := root.LookupPath(cue.ParsePath("program"))
	if !v.Exists() {
		return nil, &LoadError{Code: ErrCodeDecode, Message: "program is required", Pos: root.Pos()}
	}
	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	address, err := requiredString(v, "address")
	if err != nil {
		return nil, err
	}
	p := dsl.NewProgram(name, address)

	err = eachField(v, "accounts", func(key string, av cue.Value) error {
		def, err := decodeAccountDef(av)
		if err != nil {
			return err
		}
		p.Account(key, def)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "instructions", func(name string, iv cue.Value) error {
		ix, err := decodeInstruction(name, iv)
		if err != nil {
			return err
		}
		p.Instruction(ix)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachField(v, "views", func(name string, vv cue.Value) error {
		view, err := decodeView(name, vv)
		if err != nil {
			return err
		}
		p.View(view)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeError(v cue.Value, format string, args ...any) *LoadError {
	return &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf(format, args...), Pos: v.Pos()}
}

func requiredString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", decodeError(v, "%s is required", field)
	}
	s, err := f.String()
	if err != nil {
		return "", decodeError(f, "%s must be a string", field)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", decodeError(f, "%s must be a string", field)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, decodeError(f, "%s must be a bool", field)
	}
	return b, nil
}

// eachField visits the fields of an optional struct in declaration order.
func eachField(v cue.Value, field string, fn func(label string, fv cue.Value) error) error {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil
	}
	iter, err := f.Fields()
	if err != nil {
		return decodeError(f, "%s must be a struct", field)
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// eachElem visits the elements of an optional list.
func eachElem(v cue.Value, field string, fn func(ev cue.Value) error) error {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil
	}
	iter, err := f.List()
	if err != nil {
		return decodeError(f, "%s must be a list", field)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// tagged returns the single label of a one-field struct such as
// {arg: "amount"}, checked against the accepted tags.
func tagged(v cue.Value, what string, accepted []string) (string, cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return "", cue.Value{}, decodeError(v, "%s must be a struct with one of: %s", what, strings.Join(accepted, ", "))
	}
	var tag string
	var body cue.Value
	n := 0
	for iter.Next() {
		tag, body = iter.Label(), iter.Value()
		n++
	}
	if n != 1 {
		return "", cue.Value{}, decodeError(v, "%s must have exactly one of: %s", what, strings.Join(accepted, ", "))
	}
	for _, a := range accepted {
		if a == tag {
			return tag, body, nil
		}
	}
	msg := fmt.Sprintf("unknown %s %q", what, tag)
	if s := suggest(tag, accepted); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}
	return "", cue.Value{}, decodeError(v, "%s", msg)
}

// suggest returns the closest accepted word within edit distance 2.
func suggest(word string, accepted []string) string {
	sorted := append([]string(nil), accepted...)
	sort.Strings(sorted)
	best, bestDist := "", 3
	for _, a := range sorted {
		if d := levenshtein.ComputeDistance(word, a); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

func decodeSchema(v cue.Value, field string) (ir.Schema, error) {
	var schema ir.Schema
	err := eachField(v, field, func(name string, fv cue.Value) error {
		s, err := fv.String()
		if err != nil {
			return decodeError(fv, "%s.%s must be a type name", field, name)
		}
		t, err := ir.ParseScalarType(s)
		if err != nil {
			return decodeError(fv, "%s.%s: %v", field, name, err)
		}
		schema = append(schema, dsl.Field(name, t))
		return nil
	})
	return schema, err
}

func decodeAccountDef(v cue.Value) (ir.AccountDef, error) {
	name, err := requiredString(v, "name")
	if err != nil {
		return ir.AccountDef{}, err
	}
	schema, err := decodeSchema(v, "schema")
	if err != nil {
		return ir.AccountDef{}, err
	}
	pda, err := decodePda(v)
	if err != nil {
		return ir.AccountDef{}, err
	}
	return ir.AccountDef{Name: name, Schema: schema, Pda: pda}, nil
}

func decodePda(v cue.Value) (*ir.Pda, error) {
	if !v.LookupPath(cue.ParsePath("pda")).Exists() {
		return nil, nil
	}
	var seeds []ir.Seed
	err := eachElem(v, "pda", func(sv cue.Value) error {
		s, err := decodeSeed(sv)
		if err != nil {
			return err
		}
		seeds = append(seeds, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dsl.PDA(seeds...), nil
}

var refTags = []string{"arg", "account", "field"}

func decodeSeed(v cue.Value) (ir.Seed, error) {
	if s, err := v.String(); err == nil {
		return dsl.Lit(s), nil
	}
	ref, err := decodeRef(v, "seed")
	if err != nil {
		return nil, err
	}
	return ref.(ir.Seed), nil
}

// decodeRef decodes {arg: n}, {account: n} or {field: "account.name"}.
// The result is both an ir.Seed and an ir.AddressRef.
func decodeRef(v cue.Value, what string) (ir.AddressRef, error) {
	tag, body, err := tagged(v, what, refTags)
	if err != nil {
		return nil, err
	}
	s, err := body.String()
	if err != nil {
		return nil, decodeError(body, "%s %s must be a string", what, tag)
	}
	switch tag {
	case "arg":
		return dsl.Arg(s), nil
	case "account":
		return dsl.AccountRef(s), nil
	default:
		return fieldRef(body, s)
	}
}

func fieldRef(v cue.Value, path string) (ir.FieldRef, error) {
	account, name, ok := strings.Cut(path, ".")
	if !ok || account == "" || name == "" {
		return ir.FieldRef{}, decodeError(v, "field reference %q must be account.field", path)
	}
	return dsl.FieldOf(account, name), nil
}

func optionalRef(v cue.Value, field string) (ir.AddressRef, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil, nil
	}
	return decodeRef(f, field)
}

func decodeMeta(v cue.Value) (ir.AccountMeta, error) {
	var m ir.AccountMeta
	var err error
	if m.Name, err = requiredString(v, "name"); err != nil {
		return m, err
	}
	if m.Signer, err = optionalBool(v, "signer"); err != nil {
		return m, err
	}
	if m.Writable, err = optionalBool(v, "writable"); err != nil {
		return m, err
	}
	role, err := optionalString(v, "role")
	if err != nil {
		return m, err
	}
	m.Role = ir.RoleAccount
	if role != "" {
		m.Role = ir.Role(role)
		if !m.Role.Valid() {
			roles := []string{string(ir.RoleAccount), string(ir.RoleMint), string(ir.RoleATA), string(ir.RoleProgram)}
			msg := fmt.Sprintf("account %s: unknown role %q", m.Name, role)
			if s := suggest(role, roles); s != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", s)
			}
			return m, decodeError(v, "%s", msg)
		}
	}
	if m.Address, err = optionalRef(v, "address"); err != nil {
		return m, err
	}
	if m.Owner, err = optionalRef(v, "owner"); err != nil {
		return m, err
	}
	if m.Mint, err = optionalRef(v, "mint"); err != nil {
		return m, err
	}
	if m.Pda, err = decodePda(v); err != nil {
		return m, err
	}
	return m, nil
}

func decodeInstruction(name string, v cue.Value) (ir.IxDef, error) {
	ix := ir.IxDef{Name: name}
	var err error
	if ix.Args, err = decodeSchema(v, "args"); err != nil {
		return ix, err
	}
	err = eachElem(v, "accounts", func(mv cue.Value) error {
		m, err := decodeMeta(mv)
		if err != nil {
			return err
		}
		ix.Accounts = append(ix.Accounts, m)
		return nil
	})
	if err != nil {
		return ix, err
	}
	err = eachElem(v, "ops", func(ov cue.Value) error {
		op, err := decodeOp(ov)
		if err != nil {
			return err
		}
		ix.Ops = append(ix.Ops, op)
		return nil
	})
	return ix, err
}

var opTags = []string{"transfer", "mintTo", "burn", "init", "update", "emit"}

func decodeOp(v cue.Value) (ir.Op, error) {
	tag, body, err := tagged(v, "op", opTags)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "transfer", "mintTo", "burn":
		return decodeTokenOp(tag, body)
	case "init":
		account, err := requiredString(body, "account")
		if err != nil {
			return nil, err
		}
		var fields []ir.Assignment
		err = eachField(body, "set", func(name string, fv cue.Value) error {
			val, err := decodeValue(fv)
			if err != nil {
				return err
			}
			fields = append(fields, dsl.Set(name, val))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return dsl.Init(account, fields...), nil
	case "update":
		account, err := requiredString(body, "account")
		if err != nil {
			return nil, err
		}
		var fields []ir.Update
		err = eachField(body, "set", func(name string, fv cue.Value) error {
			e, err := decodeExpr(fv)
			if err != nil {
				return err
			}
			fields = append(fields, dsl.To(name, e))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return dsl.Update(account, fields...), nil
	default:
		name, err := requiredString(body, "name")
		if err != nil {
			return nil, err
		}
		var data []ir.Assignment
		err = eachField(body, "data", func(field string, fv cue.Value) error {
			val, err := decodeValue(fv)
			if err != nil {
				return err
			}
			data = append(data, dsl.Set(field, val))
			return nil
		})
		if err != nil {
			return nil, err
		}
		return dsl.Emit(name, data...), nil
	}
}

// decodeTokenOp reads a token CPI. transfer names from/to, mintTo names
// mint/to and burn names mint/from; all take authority and amount, and
// optionally signer and program.
func decodeTokenOp(tag string, v cue.Value) (ir.Op, error) {
	first, second := "from", "to"
	switch tag {
	case "mintTo":
		first, second = "mint", "to"
	case "burn":
		first, second = "mint", "from"
	}
	a, err := requiredString(v, first)
	if err != nil {
		return nil, err
	}
	b, err := requiredString(v, second)
	if err != nil {
		return nil, err
	}
	authority, err := requiredString(v, "authority")
	if err != nil {
		return nil, err
	}
	av := v.LookupPath(cue.ParsePath("amount"))
	if !av.Exists() {
		return nil, decodeError(v, "amount is required")
	}
	amount, err := decodeExpr(av)
	if err != nil {
		return nil, err
	}

	var opts []dsl.TokenOption
	signer, err := optionalString(v, "signer")
	if err != nil {
		return nil, err
	}
	if signer != "" {
		opts = append(opts, dsl.SignedBy(signer))
	}
	program, err := optionalString(v, "program")
	if err != nil {
		return nil, err
	}
	if program != "" {
		opts = append(opts, dsl.Via(program))
	}

	switch tag {
	case "transfer":
		return dsl.Transfer(a, b, authority, amount, opts...), nil
	case "mintTo":
		return dsl.MintTo(a, b, authority, amount, opts...), nil
	default:
		return dsl.Burn(a, b, authority, amount, opts...), nil
	}
}

var exprTags = []string{"arg", "field", "add", "sub", "mul", "div", "eq", "if"}

var valueTags = append(append([]string(nil), exprTags...), "account", "bump")

// decodeExpr reads an expression. Bare integers are constants.
func decodeExpr(v cue.Value) (ir.Expr, error) {
	if v.IncompleteKind() == cue.IntKind {
		n, err := v.Uint64()
		if err != nil {
			return nil, decodeError(v, "constant must be an unsigned 64-bit integer")
		}
		return dsl.Const(n), nil
	}
	tag, body, err := tagged(v, "expression", exprTags)
	if err != nil {
		return nil, err
	}
	return decodeTaggedExpr(tag, body)
}

func decodeTaggedExpr(tag string, body cue.Value) (ir.Expr, error) {
	switch tag {
	case "arg":
		s, err := body.String()
		if err != nil {
			return nil, decodeError(body, "arg must be a string")
		}
		return dsl.Arg(s), nil
	case "field":
		s, err := body.String()
		if err != nil {
			return nil, decodeError(body, "field must be a string")
		}
		return fieldRef(body, s)
	case "if":
		var parts [3]ir.Expr
		for i, f := range []string{"cond", "then", "else"} {
			fv := body.LookupPath(cue.ParsePath(f))
			if !fv.Exists() {
				return nil, decodeError(body, "if.%s is required", f)
			}
			e, err := decodeExpr(fv)
			if err != nil {
				return nil, err
			}
			parts[i] = e
		}
		return dsl.If(parts[0], parts[1], parts[2]), nil
	}

	var operands []ir.Expr
	iter, err := body.List()
	if err != nil {
		return nil, decodeError(body, "%s takes a list of two operands", tag)
	}
	for iter.Next() {
		e, err := decodeExpr(iter.Value())
		if err != nil {
			return nil, err
		}
		operands = append(operands, e)
	}
	if len(operands) != 2 {
		return nil, decodeError(body, "%s takes exactly two operands, got %d", tag, len(operands))
	}
	l, r := operands[0], operands[1]
	switch tag {
	case "add":
		return dsl.Add(l, r), nil
	case "sub":
		return dsl.Sub(l, r), nil
	case "mul":
		return dsl.Mul(l, r), nil
	case "div":
		return dsl.Div(l, r), nil
	default:
		return dsl.Eq(l, r), nil
	}
}

// decodeValue reads an assigned value: an expression, {account: slot} or
// {bump: slot}.
func decodeValue(v cue.Value) (ir.Value, error) {
	if v.IncompleteKind() == cue.IntKind {
		return decodeExpr(v)
	}
	tag, body, err := tagged(v, "value", valueTags)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "account", "bump":
		s, err := body.String()
		if err != nil {
			return nil, decodeError(body, "%s must be a string", tag)
		}
		if tag == "account" {
			return dsl.AccountRef(s), nil
		}
		return dsl.Bump(s), nil
	}
	return decodeTaggedExpr(tag, body)
}

func decodeView(name string, v cue.Value) (ir.ViewDef, error) {
	view := ir.ViewDef{Name: name}
	var err error
	if view.Args, err = decodeSchema(v, "args"); err != nil {
		return view, err
	}
	err = eachField(v, "returns", func(field string, rv cue.Value) error {
		r, err := decodeReturn(field, rv)
		if err != nil {
			return err
		}
		view.Returns = append(view.Returns, r)
		return nil
	})
	return view, err
}

// decodeReturn reads "u64" (the same-named field of the viewed account),
// {type: "u64", expr: E} or {ratio: [num, den]}.
func decodeReturn(name string, v cue.Value) (ir.ReturnField, error) {
	if s, err := v.String(); err == nil {
		t, err := ir.ParseScalarType(s)
		if err != nil {
			return ir.ReturnField{}, decodeError(v, "returns.%s: %v", name, err)
		}
		return dsl.Return(name, t), nil
	}

	if rv := v.LookupPath(cue.ParsePath("ratio")); rv.Exists() {
		iter, err := rv.List()
		if err != nil {
			return ir.ReturnField{}, decodeError(rv, "returns.%s: ratio takes [num, den]", name)
		}
		var parts []ir.Expr
		for iter.Next() {
			e, err := decodeExpr(iter.Value())
			if err != nil {
				return ir.ReturnField{}, err
			}
			parts = append(parts, e)
		}
		if len(parts) != 2 {
			return ir.ReturnField{}, decodeError(rv, "returns.%s: ratio takes [num, den]", name)
		}
		return dsl.Ratio(name, parts[0], parts[1]), nil
	}

	ts, err := requiredString(v, "type")
	if err != nil {
		return ir.ReturnField{}, err
	}
	t, err := ir.ParseScalarType(ts)
	if err != nil {
		return ir.ReturnField{}, decodeError(v, "returns.%s: %v", name, err)
	}
	ev := v.LookupPath(cue.ParsePath("expr"))
	if !ev.Exists() {
		return dsl.Return(name, t), nil
	}
	e, err := decodeExpr(ev)
	if err != nil {
		return ir.ReturnField{}, err
	}
	return dsl.Return(name, t, e), nil
}
