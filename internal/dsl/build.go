package dsl

import "github.com/roach88/solforge/internal/ir"

// Scalar types.
func U8() ir.ScalarType     { return ir.U8 }
func U64() ir.ScalarType    { return ir.U64 }
func Pubkey() ir.ScalarType { return ir.Pubkey }

// Field declares one schema entry.
func Field(name string, t ir.ScalarType) ir.Field {
	return ir.Field{Name: name, Type: t}
}

// Schema lists fields in layout order.
func Schema(fields ...ir.Field) ir.Schema {
	return ir.Schema(fields)
}

// Expressions and references.

func Arg(name string) ir.Arg                   { return ir.Arg{Name: name} }
func FieldOf(account, name string) ir.FieldRef { return ir.FieldRef{Account: account, Name: name} }
func AccountRef(name string) ir.AccountRef     { return ir.AccountRef{Name: name} }
func Bump(account string) ir.BumpRef           { return ir.BumpRef{Account: account} }
func Const(v uint64) ir.Const                  { return ir.Const{Value: v} }
func Lit(s string) ir.SeedLiteral              { return ir.SeedLiteral{Value: s} }
func Add(l, r ir.Expr) ir.Expr                 { return ir.Binary{Op: ir.OpAdd, Left: l, Right: r} }
func Sub(l, r ir.Expr) ir.Expr                 { return ir.Binary{Op: ir.OpSub, Left: l, Right: r} }
func Mul(l, r ir.Expr) ir.Expr                 { return ir.Binary{Op: ir.OpMul, Left: l, Right: r} }
func Div(l, r ir.Expr) ir.Expr                 { return ir.Binary{Op: ir.OpDiv, Left: l, Right: r} }
func Eq(l, r ir.Expr) ir.Expr                  { return ir.Binary{Op: ir.OpEq, Left: l, Right: r} }
func If(cond, then, els ir.Expr) ir.Expr       { return ir.If{Cond: cond, Then: then, Else: els} }
func PDA(seeds ...ir.Seed) *ir.Pda             { return &ir.Pda{Seeds: seeds} }

// MetaOption adjusts an account slot.
type MetaOption func(*ir.AccountMeta)

// Signer requires the slot to sign the transaction.
func Signer() MetaOption {
	return func(m *ir.AccountMeta) { m.Signer = true }
}

// Writable marks the slot writable.
func Writable() MetaOption {
	return func(m *ir.AccountMeta) { m.Writable = true }
}

// WithPDA requires the slot key to equal the address derived from seeds.
func WithPDA(p *ir.Pda) MetaOption {
	return func(m *ir.AccountMeta) { m.Pda = p }
}

func apply(m ir.AccountMeta, opts []MetaOption) ir.AccountMeta {
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Meta declares a plain account slot.
func Meta(name string, opts ...MetaOption) ir.AccountMeta {
	return apply(ir.AccountMeta{Name: name, Role: ir.RoleAccount}, opts)
}

// Mint declares a token mint slot whose key must equal address.
func Mint(name string, address ir.AddressRef, opts ...MetaOption) ir.AccountMeta {
	return apply(ir.AccountMeta{Name: name, Role: ir.RoleMint, Address: address}, opts)
}

// ATA declares the associated token account of owner for mint.
func ATA(name string, owner, mint ir.AddressRef, opts ...MetaOption) ir.AccountMeta {
	return apply(ir.AccountMeta{Name: name, Role: ir.RoleATA, Owner: owner, Mint: mint}, opts)
}

// ProgramSlot declares a program account slot.
func ProgramSlot(name string) ir.AccountMeta {
	return ir.AccountMeta{Name: name, Role: ir.RoleProgram}
}

// DefaultTokenProgram is the slot token ops invoke unless Via says otherwise.
const DefaultTokenProgram = "tokenProgram"

// TokenOption adjusts a token CPI.
type TokenOption func(*tokenConfig)

type tokenConfig struct {
	program string
	signer  string
}

// SignedBy signs the CPI with the seeds of a PDA slot.
func SignedBy(slot string) TokenOption {
	return func(c *tokenConfig) { c.signer = slot }
}

// Via invokes the token program held in slot.
func Via(slot string) TokenOption {
	return func(c *tokenConfig) { c.program = slot }
}

func tokenOptions(opts []TokenOption) tokenConfig {
	c := tokenConfig{program: DefaultTokenProgram}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Transfer moves amount tokens from one token account to another.
func Transfer(from, to, authority string, amount ir.Expr, opts ...TokenOption) ir.TokenTransfer {
	c := tokenOptions(opts)
	return ir.TokenTransfer{From: from, To: to, Authority: authority, Amount: amount, Program: c.program, Signer: c.signer}
}

// MintTo mints amount tokens of mint into to.
func MintTo(mint, to, authority string, amount ir.Expr, opts ...TokenOption) ir.TokenMintTo {
	c := tokenOptions(opts)
	return ir.TokenMintTo{Mint: mint, To: to, Authority: authority, Amount: amount, Program: c.program, Signer: c.signer}
}

// Burn destroys amount tokens of mint held by from.
func Burn(mint, from, authority string, amount ir.Expr, opts ...TokenOption) ir.TokenBurn {
	c := tokenOptions(opts)
	return ir.TokenBurn{Mint: mint, From: from, Authority: authority, Amount: amount, Program: c.program, Signer: c.signer}
}

// Set assigns a value to a field.
func Set(name string, v ir.Value) ir.Assignment {
	return ir.Assignment{Name: name, Value: v}
}

// To assigns an expression to a field in an update.
func To(name string, e ir.Expr) ir.Update {
	return ir.Update{Name: name, Expr: e}
}

// Init creates the state held in account.
func Init(account string, fields ...ir.Assignment) ir.StateInit {
	return ir.StateInit{Account: account, Fields: fields}
}

// Update rewrites fields of the state held in account.
func Update(account string, fields ...ir.Update) ir.StateUpdate {
	return ir.StateUpdate{Account: account, Fields: fields}
}

// Emit logs an event.
func Emit(name string, data ...ir.Assignment) ir.Event {
	return ir.Event{Name: name, Data: data}
}

// Return declares a scalar view result. Without an expression it reads the
// same-named field of the viewed account.
func Return(name string, t ir.ScalarType, expr ...ir.Expr) ir.ReturnField {
	f := ir.ReturnField{Name: name, Type: ir.ReturnType(t)}
	if len(expr) > 0 {
		f.Expr = expr[0]
	}
	return f
}

// Ratio declares a view result computed as num / den, or 1 when den is zero.
func Ratio(name string, num, den ir.Expr) ir.ReturnField {
	return ir.ReturnField{Name: name, Type: ir.Ratio, Expr: num, Den: den}
}
