package onchain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/programs"
	"github.com/roach88/solforge/pkg/solana/token"
)

func buildDoc(t *testing.T, p *dsl.Program) *ir.Document {
	t.Helper()
	doc, err := compiler.Build(p)
	require.NoError(t, err)
	return doc
}

func lowerVault(t *testing.T) *Program {
	t.Helper()
	p, err := Lower(buildDoc(t, programs.Vault()))
	require.NoError(t, err)
	return p
}

// stepKinds renders steps as "Type(slot)" for order assertions.
func stepKinds(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		var slot string
		switch x := s.(type) {
		case CheckSigner:
			slot = x.Slot
		case CheckWritable:
			slot = x.Slot
		case DerivePDA:
			slot = x.Slot
		case CheckAddress:
			slot = x.Slot
		case CheckAssociated:
			slot = x.Slot
		case CheckProgram:
			slot = x.Slot
		case BuildSigner:
			slot = x.Slot
		case CheckOwner:
			slot = x.Slot
		case LoadState:
			slot = x.Slot
		case EnsureAccount:
			slot = x.Slot
		case InitState:
			slot = x.Slot
		case UpdateState:
			slot = x.Slot
		case InvokeToken:
			slot = string(x.Kind)
		case EmitEvent:
			slot = x.Name
		}
		out[i] = fmt.Sprintf("%T(%s)", s, slot)
	}
	return out
}

func TestLowerProgramMetadata(t *testing.T) {
	doc := buildDoc(t, programs.Vault())
	p, err := Lower(doc)
	require.NoError(t, err)

	assert.Equal(t, "Vault", p.Name)
	assert.Equal(t, programs.VaultAddress, p.Address.String())
	assert.Equal(t, ir.MustDocumentHash(doc), p.IRHash)

	require.Len(t, p.States, 1)
	assert.Equal(t, "vault", p.States[0].Key)
	assert.Equal(t, 113, p.States[0].Layout.Size)

	require.Len(t, p.Handlers, 3)
	for i, name := range []string{"createVault", "deposit", "withdraw"} {
		assert.Equal(t, name, p.Handlers[i].Name)
		assert.Equal(t, uint8(i), p.Handlers[i].Discriminator)
	}
}

func TestLowerCreateVault(t *testing.T) {
	h, ok := lowerVault(t).Handler("createVault")
	require.True(t, ok)

	assert.Equal(t, []string{
		"onchain.CheckSigner(payer)",
		"onchain.CheckWritable(payer)",
		"onchain.CheckWritable(vault)",
		"onchain.CheckWritable(shareMint)",
		"onchain.CheckWritable(vaultUnderlying)",
		"onchain.DerivePDA(vault)",
		"onchain.DerivePDA(vaultAuthority)",
		"onchain.CheckAddress(underlyingMint)",
		"onchain.CheckAddress(shareMint)",
		"onchain.CheckAssociated(vaultUnderlying)",
		"onchain.EnsureAccount(vault)",
		"onchain.InitState(vault)",
	}, stepKinds(h.Steps))

	ata := h.Steps[9].(CheckAssociated)
	assert.Equal(t, LoadKey{Slot: "vaultAuthority"}, ata.Owner)
	assert.Equal(t, LoadArg{Name: "underlyingMint", Type: ir.Pubkey}, ata.Mint)

	ensure := h.Steps[10].(EnsureAccount)
	assert.Equal(t, "payer", ensure.Payer)
	assert.Equal(t, []Node{
		Bytes{Value: []byte("vault")},
		LoadArg{Name: "underlyingMint", Type: ir.Pubkey},
	}, ensure.Seeds)

	init := h.Steps[11].(InitState)
	require.Len(t, init.Fields, 6)
	assert.Equal(t, LoadKey{Slot: "payer"}, init.Fields[0].Value)
	assert.Equal(t, LoadBump{Slot: "vault"}, init.Fields[5].Value)
	assert.Equal(t, 112, init.Fields[5].Field.Offset)

	assert.Equal(t, 8, h.MinAccounts())
	sys, ok := h.Slot(compiler.SystemProgramSlot)
	require.True(t, ok)
	assert.Equal(t, 7, sys.Index)
}

func TestLowerDepositOrdersLateChecksAfterLoad(t *testing.T) {
	h, ok := lowerVault(t).Handler("deposit")
	require.True(t, ok)

	assert.Equal(t, []string{
		"onchain.CheckSigner(user)",
		"onchain.CheckWritable(vault)",
		"onchain.CheckWritable(userUnderlying)",
		"onchain.CheckWritable(vaultUnderlying)",
		"onchain.CheckWritable(shareMint)",
		"onchain.CheckWritable(userShares)",
		"onchain.CheckProgram(tokenProgram)",
		"onchain.DerivePDA(vaultAuthority)",
		"onchain.CheckOwner(vault)",
		"onchain.LoadState(vault)",
		"onchain.CheckAddress(shareMint)",
		"onchain.CheckAssociated(userUnderlying)",
		"onchain.CheckAssociated(vaultUnderlying)",
		"onchain.CheckAssociated(userShares)",
		"onchain.BuildSigner(vaultAuthority)",
		"onchain.InvokeToken(token.transfer)",
		"onchain.InvokeToken(token.mintTo)",
		"onchain.UpdateState(vault)",
	}, stepKinds(h.Steps))

	assert.Equal(t, LoadField{Slot: "vault", Name: "shareMint", Type: ir.Pubkey}, h.Steps[10].(CheckAddress).Address)

	assert.Equal(t, token.ProgramKey, h.Steps[6].(CheckProgram).Program)
	vaultUnderlying := h.Steps[12].(CheckAssociated)
	assert.Equal(t, LoadKey{Slot: "vaultAuthority"}, vaultUnderlying.Owner)
	assert.Equal(t, LoadField{Slot: "vault", Name: "underlyingMint", Type: ir.Pubkey}, vaultUnderlying.Mint)

	transfer := h.Steps[15].(InvokeToken)
	assert.Equal(t, []string{"userUnderlying", "vaultUnderlying", "user"}, transfer.Accounts)
	assert.Empty(t, transfer.Signer)
	assert.Equal(t, "tokenProgram", transfer.Program)

	mint := h.Steps[16].(InvokeToken)
	assert.Equal(t, []string{"shareMint", "userShares", "vaultAuthority"}, mint.Accounts)
	assert.Equal(t, "vaultAuthority", mint.Signer)

	shares := LoadField{Slot: "vault", Name: "totalShares", Type: ir.U64}
	deposits := LoadField{Slot: "vault", Name: "totalDeposits", Type: ir.U64}
	amount := LoadArg{Name: "amount", Type: ir.U64}
	assert.Equal(t, Select{
		Cond: Compare{Left: shares, Right: Imm{Value: 0}},
		Then: amount,
		Else: WideMulDiv{Factors: []Node{amount, shares}, Divisor: deposits},
	}, mint.Amount)
}

func TestLowerDepositAmounts(t *testing.T) {
	h, ok := lowerVault(t).Handler("deposit")
	require.True(t, ok)
	mint := h.Steps[16].(InvokeToken)

	tests := []struct {
		name     string
		amount   uint64
		shares   uint64
		deposits uint64
		want     uint64
	}{
		{"first deposit", 1000, 0, 0, 1000},
		{"pro rata", 500, 1000, 1000, 500},
		{"appreciated vault", 500, 1000, 2000, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := mapEnv{
				args:   Record{"amount": tt.amount},
				fields: map[string]Record{"vault": {"totalShares": tt.shares, "totalDeposits": tt.deposits}},
			}
			got, err := EvalU64(mint.Amount, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLowerWideMulDivShapes(t *testing.T) {
	scope := Scope{Args: dsl.Schema(
		dsl.Field("a", dsl.U64()),
		dsl.Field("b", dsl.U64()),
		dsl.Field("c", dsl.U64()),
		dsl.Field("d", dsl.U64()),
	)}
	a, b, c, d := dsl.Arg("a"), dsl.Arg("b"), dsl.Arg("c"), dsl.Arg("d")
	la := LoadArg{Name: "a", Type: ir.U64}
	lb := LoadArg{Name: "b", Type: ir.U64}
	lc := LoadArg{Name: "c", Type: ir.U64}
	ld := LoadArg{Name: "d", Type: ir.U64}

	tests := []struct {
		name string
		expr ir.Expr
		want Node
	}{
		{"left chain", dsl.Div(dsl.Mul(dsl.Mul(a, b), c), d),
			WideMulDiv{Factors: []Node{la, lb, lc}, Divisor: ld}},
		{"right chain", dsl.Div(dsl.Mul(a, dsl.Mul(b, c)), d),
			WideMulDiv{Factors: []Node{la, lb, lc}, Divisor: ld}},
		{"balanced", dsl.Div(dsl.Mul(dsl.Mul(a, b), dsl.Mul(c, d)), dsl.Const(2)),
			WideMulDiv{Factors: []Node{la, lb, lc, ld}, Divisor: Imm{Value: 2}}},
		{"sum divisor", dsl.Div(dsl.Mul(a, b), dsl.Add(c, d)),
			WideMulDiv{Factors: []Node{la, lb}, Divisor: CheckedAdd{Left: lc, Right: ld}}},
		{"plain division", dsl.Div(dsl.Add(a, b), c),
			CheckedDiv{Left: CheckedAdd{Left: la, Right: lb}, Right: lc}},
		{"product divisor", dsl.Div(a, dsl.Mul(b, c)),
			CheckedDiv{Left: la, Right: CheckedMul{Left: lb, Right: lc}}},
		{"nested division", dsl.Div(dsl.Mul(dsl.Div(a, b), c), d),
			WideMulDiv{Factors: []Node{CheckedDiv{Left: la, Right: lb}, lc}, Divisor: ld}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scope.LowerExpr(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLowerAmmSwap(t *testing.T) {
	p, err := Lower(buildDoc(t, programs.Amm()))
	require.NoError(t, err)

	h, ok := p.Handler("swapAForB")
	require.True(t, ok)

	var out InvokeToken
	for _, s := range h.Steps {
		if it, ok := s.(InvokeToken); ok && it.Signer == "poolAuthority" {
			out = it
		}
	}
	require.NotNil(t, out.Amount)

	env := mapEnv{
		args:   Record{"amountIn": uint64(10)},
		fields: map[string]Record{"pool": {"reserveA": uint64(150), "reserveB": uint64(300)}},
	}
	got, err := EvalU64(out.Amount, env)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), got)
}

func TestDispatch(t *testing.T) {
	p := lowerVault(t)

	_, _, err := p.Dispatch(nil, 8)
	assert.Equal(t, ErrInvalidInstructionData, err)

	_, _, err = p.Dispatch([]byte{3}, 8)
	assert.Equal(t, ErrInvalidInstructionData, err)

	deposit, _ := p.Handler("deposit")
	data, err := deposit.EncodeInstruction(Record{"amount": uint64(1000)})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0xe8, 0x03, 0, 0, 0, 0, 0, 0}, data)

	_, _, err = p.Dispatch(data, 7)
	assert.Equal(t, ErrNotEnoughAccountKeys, err)

	h, args, err := p.Dispatch(data, 8)
	require.NoError(t, err)
	assert.Same(t, deposit, h)

	rec, err := h.Args.Decode(args)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), rec["amount"])
}

func TestLowerRejectsInvalidDocuments(t *testing.T) {
	doc := buildDoc(t, programs.Vault())
	doc.Instructions[1].Ops[0] = dsl.Transfer("userUnderlying", "vaultUnderlying", "usr", dsl.Arg("amount"))

	_, err := Lower(doc)
	var errs compiler.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Contains(t, errs.Codes(), compiler.ErrUndefinedSlot)
}

// notes is a small program whose init target is configurable.
func notes(target ir.AccountMeta, others ...ir.AccountMeta) *dsl.Program {
	p := dsl.NewProgram("Notes", programs.VaultAddress)
	p.Account("config", ir.AccountDef{Name: "Config", Schema: dsl.Schema(dsl.Field("admin", dsl.Pubkey()))})
	p.Account("note", ir.AccountDef{Name: "Note", Schema: dsl.Schema(
		dsl.Field("author", dsl.Pubkey()),
		dsl.Field("value", dsl.U64()),
	)})
	p.Instruction(ir.IxDef{
		Name:     "open",
		Args:     dsl.Schema(dsl.Field("value", dsl.U64())),
		Accounts: append(others, target),
		Ops: []ir.Op{
			dsl.Init("note",
				dsl.Set("author", dsl.AccountRef(target.Name)),
				dsl.Set("value", dsl.Arg("value")),
			),
		},
	})
	return p
}

func TestLowerInitChecks(t *testing.T) {
	payer := dsl.Meta("payer", dsl.Signer(), dsl.Writable())
	config := dsl.Meta("config")

	tests := []struct {
		name  string
		prog  *dsl.Program
		code  string
		field string
	}{
		{
			name:  "target neither PDA nor signer",
			prog:  notes(dsl.Meta("note", dsl.Writable()), payer),
			code:  ErrInitTarget,
			field: "instructions[open].accounts[note]",
		},
		{
			name:  "seeds read persisted state",
			prog:  notes(dsl.Meta("note", dsl.Writable(), dsl.WithPDA(dsl.PDA(dsl.Lit("note"), dsl.FieldOf("config", "admin")))), payer, config),
			code:  ErrInitSeeds,
			field: "instructions[open].accounts[note].pda",
		},
		{
			name:  "no payer",
			prog:  notes(dsl.Meta("note", dsl.Signer(), dsl.Writable())),
			code:  ErrInitPayer,
			field: "instructions[open].accounts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lower(buildDoc(t, tt.prog))
			var errs compiler.ValidationErrors
			require.ErrorAs(t, err, &errs)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestLowerInitPayerSelection(t *testing.T) {
	note := dsl.Meta("note", dsl.Writable(), dsl.WithPDA(dsl.PDA(dsl.Lit("note"), dsl.AccountRef("author"))))

	p, err := Lower(buildDoc(t, notes(note, dsl.Meta("author", dsl.Signer(), dsl.Writable()))))
	require.NoError(t, err)
	ensure := p.Handlers[0].Steps[len(p.Handlers[0].Steps)-2].(EnsureAccount)
	assert.Equal(t, "author", ensure.Payer)

	p, err = Lower(buildDoc(t, notes(note,
		dsl.Meta("author", dsl.Signer(), dsl.Writable()),
		dsl.Meta("payer", dsl.Signer(), dsl.Writable()),
	)))
	require.NoError(t, err)
	ensure = p.Handlers[0].Steps[len(p.Handlers[0].Steps)-2].(EnsureAccount)
	assert.Equal(t, PayerSlot, ensure.Payer)
}

func TestLowerSignerAuthority(t *testing.T) {
	doc := buildDoc(t, programs.Vault())
	ix, ok := doc.Instruction("withdraw")
	require.True(t, ok)
	ix.Accounts[2].Pda = nil

	_, err := Lower(doc)
	var errs compiler.ValidationErrors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSignerAuthority, errs[0].Code)
	assert.Equal(t, "instructions[withdraw].ops[1].signer", errs[0].Field)
}
