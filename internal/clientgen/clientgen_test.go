package clientgen

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/internal/programs"
	"github.com/roach88/solforge/internal/svm"
	"github.com/roach88/solforge/internal/testutil"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/system"
	solanatoken "github.com/roach88/solforge/pkg/solana/token"
)

func vaultDoc(t *testing.T) *ir.Document {
	t.Helper()
	doc, err := compiler.Build(programs.Vault())
	require.NoError(t, err)
	return doc
}

func vaultBindings(t *testing.T) *Bindings {
	t.Helper()
	b, err := New(vaultDoc(t))
	require.NoError(t, err)
	return b
}

func ammBindings(t *testing.T) *Bindings {
	t.Helper()
	doc, err := compiler.Build(programs.Amm())
	require.NoError(t, err)
	b, err := New(doc)
	require.NoError(t, err)
	return b
}

func TestPDAsFollowDeclarationOrder(t *testing.T) {
	b := vaultBindings(t)
	var names []string
	for _, p := range b.PDAs() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"vault", "vaultAuthority"}, names)

	p, ok := b.PDA("vault")
	require.True(t, ok)
	assert.Equal(t, []onchain.Node{
		onchain.Bytes{Value: []byte("vault")},
		onchain.LoadArg{Name: "underlyingMint", Type: ir.Pubkey},
	}, p.Nodes)
}

func TestDerivePDAMatchesProgramDerivation(t *testing.T) {
	b := vaultBindings(t)
	mint := testutil.WalletKey("underlying")

	vault, bump, err := b.DerivePDA("vault", SeedInputs{Args: onchain.Record{"underlyingMint": mint}})
	require.NoError(t, err)
	want, wantBump, err := solana.FindProgramAddressAndBump(b.Address(), []byte("vault"), mint[:])
	require.NoError(t, err)
	assert.Equal(t, want, vault)
	assert.Equal(t, wantBump, bump)

	authority, _, err := b.DerivePDA("vaultAuthority", SeedInputs{Accounts: map[string]solana.PublicKey{"vault": vault}})
	require.NoError(t, err)
	want, err = solana.FindProgramAddress(b.Address(), []byte("authority"), vault[:])
	require.NoError(t, err)
	assert.Equal(t, want, authority)

	_, _, err = b.DerivePDA("vault", SeedInputs{})
	assert.ErrorContains(t, err, `missing seed argument "underlyingMint"`)
	_, _, err = b.DerivePDA("nope", SeedInputs{})
	assert.ErrorContains(t, err, `unknown pda "nope"`)
}

func TestAmmPoolPDA(t *testing.T) {
	b := ammBindings(t)
	a, bm := testutil.WalletKey("mintA"), testutil.WalletKey("mintB")

	pool, _, err := b.DerivePDA("pool", SeedInputs{Args: onchain.Record{"tokenMintA": a, "tokenMintB": bm}})
	require.NoError(t, err)
	want, err := solana.FindProgramAddress(b.Address(), []byte("pool"), a[:], bm[:])
	require.NoError(t, err)
	assert.Equal(t, want, pool)
}

func TestInstructionEncodesLikeTheProgram(t *testing.T) {
	b := vaultBindings(t)
	accounts := Accounts{}
	for _, name := range []string{"user", "vault", "vaultAuthority", "userUnderlying", "vaultUnderlying", "shareMint", "userShares", "tokenProgram"} {
		accounts[name] = testutil.WalletKey(name)
	}

	ix, err := b.Instruction("deposit", onchain.Record{"amount": uint64(1000)}, accounts)
	require.NoError(t, err)

	h, ok := b.Program.Handler("deposit")
	require.True(t, ok)
	data, err := h.EncodeInstruction(onchain.Record{"amount": uint64(1000)})
	require.NoError(t, err)
	assert.Equal(t, data, ix.Data)
	assert.Equal(t, b.Address(), ix.Program)

	require.Len(t, ix.Accounts, len(h.Slots))
	for i, s := range h.Slots {
		assert.Equal(t, accounts[s.Name], ix.Accounts[i].PublicKey, s.Name)
		assert.Equal(t, s.Signer, ix.Accounts[i].IsSigner, s.Name)
		assert.Equal(t, s.Writable, ix.Accounts[i].IsWritable, s.Name)
	}
}

func TestInstructionErrors(t *testing.T) {
	b := vaultBindings(t)

	_, err := b.Instruction("nope", nil, nil)
	assert.ErrorContains(t, err, `unknown instruction "nope"`)

	_, err = b.Instruction("deposit", onchain.Record{}, nil)
	assert.ErrorContains(t, err, "encode args")

	_, err = b.Instruction("deposit", onchain.Record{"amount": uint64(1)}, Accounts{"user": testutil.WalletKey("user")})
	assert.ErrorContains(t, err, "account vault: no default address")

	_, err = b.Instruction("deposit", onchain.Record{"amount": uint64(1)}, Accounts{
		"user":  testutil.WalletKey("user"),
		"vault": testutil.WalletKey("vault"),
	})
	assert.ErrorContains(t, err, "use WithFetcher")
}

// chain is a deployed vault whose accounts are resolved by the bindings.
type chain struct {
	b          *Bindings
	rt         *svm.Runtime
	payer      solana.PublicKey
	user       solana.PublicKey
	underlying solana.PublicKey
	shares     solana.PublicKey
}

func newChain(t *testing.T) *chain {
	t.Helper()
	b := vaultBindings(t)
	l := svm.NewLedger()
	rt := svm.New(l)
	rt.Deploy(b.Program)

	c := &chain{
		b:          b,
		rt:         rt,
		payer:      testutil.WalletKey("payer"),
		user:       testutil.WalletKey("user"),
		underlying: testutil.WalletKey("underlying"),
		shares:     testutil.WalletKey("shares"),
	}
	vault, _, err := b.DerivePDA("vault", SeedInputs{Args: onchain.Record{"underlyingMint": c.underlying}})
	require.NoError(t, err)
	authority, _, err := b.DerivePDA("vaultAuthority", SeedInputs{Accounts: map[string]solana.PublicKey{"vault": vault}})
	require.NoError(t, err)
	ata := func(owner, mint solana.PublicKey) solana.PublicKey {
		k, err := solanatoken.GetAssociatedAccount(owner, mint)
		require.NoError(t, err)
		return k
	}

	l.Airdrop(c.payer, 10_000_000_000)
	l.SetMint(c.underlying, solanatoken.Mint{MintAuthority: c.payer, Decimals: 6, Supply: 5000})
	l.SetMint(c.shares, solanatoken.Mint{MintAuthority: authority, Decimals: 6})
	l.SetTokenAccount(ata(c.user, c.underlying), solanatoken.Account{Mint: c.underlying, Owner: c.user, Amount: 5000})
	l.SetTokenAccount(ata(authority, c.underlying), solanatoken.Account{Mint: c.underlying, Owner: authority})
	l.SetTokenAccount(ata(c.user, c.shares), solanatoken.Account{Mint: c.shares, Owner: c.user})
	return c
}

func (c *chain) fetch(key solana.PublicKey) ([]byte, bool) {
	a, ok := c.rt.Ledger().Get(key)
	if !ok {
		return nil, false
	}
	return a.Data, true
}

func TestResolvedInstructionsRunOnTheEmulator(t *testing.T) {
	c := newChain(t)

	create, err := c.b.Instruction("createVault", onchain.Record{
		"underlyingMint": c.underlying,
		"shareMint":      c.shares,
	}, Accounts{"payer": c.payer})
	require.NoError(t, err)
	last := create.Accounts[len(create.Accounts)-1]
	assert.Equal(t, system.ProgramKey, last.PublicKey)
	_, err = c.rt.Process([]solana.PublicKey{c.payer}, create)
	require.NoError(t, err)

	keys, err := c.b.ResolveAccounts("createVault", onchain.Record{"underlyingMint": c.underlying, "shareMint": c.shares}, Accounts{"payer": c.payer})
	require.NoError(t, err)
	vault := keys["vault"]
	assert.Equal(t, solanatoken.ProgramKey, keys["tokenProgram"])
	assert.Equal(t, c.shares, keys["shareMint"])

	deposit, err := c.b.Instruction("deposit", onchain.Record{"amount": uint64(1000)},
		Accounts{"user": c.user, "vault": vault}, WithFetcher(c.fetch))
	require.NoError(t, err)
	_, err = c.rt.Process([]solana.PublicKey{c.user}, deposit)
	require.NoError(t, err)

	a, ok := c.rt.Ledger().Get(vault)
	require.True(t, ok)
	state, err := c.b.DecodeAccount("vault", a.Data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), state["totalDeposits"])
	assert.Equal(t, uint64(1000), state["totalShares"])

	shares, err := solanatoken.GetAssociatedAccount(c.user, c.shares)
	require.NoError(t, err)
	acct, err := c.rt.Ledger().TokenAccount(shares)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), acct.Amount)
}

func TestEvaluateView(t *testing.T) {
	b := vaultBindings(t)
	mint := testutil.WalletKey("underlying")

	key, ok := b.ViewAccount("vaultSummary")
	require.True(t, ok)
	assert.Equal(t, "vault", key)

	state := onchain.Record{
		"admin":          testutil.WalletKey("payer"),
		"underlyingMint": mint,
		"shareMint":      testutil.WalletKey("shares"),
		"totalDeposits":  uint64(0),
		"totalShares":    uint64(0),
		"bump":           uint8(254),
	}
	got, err := b.EvaluateView("vaultSummary", state)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, ViewValue{Name: "underlyingMint", Value: mint}, got[0])
	assert.Equal(t, ViewValue{Name: "totalDeposits", Value: uint64(0)}, got[2])
	assert.Equal(t, ViewValue{Name: "exchangeRate", Value: float64(1)}, got[4])

	state["totalDeposits"] = uint64(1500)
	state["totalShares"] = uint64(1200)
	got, err = b.EvaluateView("vaultSummary", state)
	require.NoError(t, err)
	assert.Equal(t, 1.25, got[4].Value)

	_, err = b.EvaluateView("nope", state)
	assert.ErrorContains(t, err, `unknown view "nope"`)

	delete(state, "totalShares")
	_, err = b.EvaluateView("vaultSummary", state)
	assert.ErrorContains(t, err, "totalShares")
}

func TestEvaluateAmmPrices(t *testing.T) {
	b := ammBindings(t)
	state := onchain.Record{
		"tokenMintA": testutil.WalletKey("mintA"),
		"tokenMintB": testutil.WalletKey("mintB"),
		"lpMint":     testutil.WalletKey("lp"),
		"reserveA":   uint64(150),
		"reserveB":   uint64(300),
		"totalLp":    uint64(150),
	}
	got, err := b.EvaluateView("poolSummary", state)
	require.NoError(t, err)
	values := map[string]any{}
	for _, v := range got {
		values[v.Name] = v.Value
	}
	assert.Equal(t, 2.0, values["priceAInB"])
	assert.Equal(t, 0.5, values["priceBInA"])
}

func declNames(t *testing.T, src []byte) map[string]bool {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), "bindings.go", src, 0)
	require.NoError(t, err, string(src))
	names := map[string]bool{}
	for _, d := range f.Decls {
		switch x := d.(type) {
		case *ast.FuncDecl:
			names[x.Name.Name] = true
		case *ast.GenDecl:
			for _, s := range x.Specs {
				switch spec := s.(type) {
				case *ast.TypeSpec:
					names[spec.Name.Name] = true
				case *ast.ValueSpec:
					for _, n := range spec.Names {
						names[n.Name] = true
					}
				}
			}
		}
	}
	return names
}

func TestRenderGo(t *testing.T) {
	b := vaultBindings(t)
	src, err := RenderGo(b, "vaultclient")
	require.NoError(t, err)

	names := declNames(t, src)
	for _, want := range []string{
		"ProgramAddress",
		"ErrAccountDataTooSmall",
		"VaultState",
		"VaultStateSize",
		"Decode",
		"CreateVaultArgs",
		"CreateVaultAccounts",
		"NewCreateVaultInstruction",
		"DepositDiscriminator",
		"NewDepositInstruction",
		"NewWithdrawInstruction",
		"DeriveVaultPDA",
		"DeriveVaultAuthorityPDA",
		"VaultSummary",
	} {
		assert.True(t, names[want], "missing %s", want)
	}

	text := string(src)
	assert.Contains(t, text, "package vaultclient")
	assert.Contains(t, text, "// Code generated by solforge from program Vault. DO NOT EDIT.")
	assert.Contains(t, text, "const VaultStateSize = 113")
	assert.Contains(t, text, "binary.LittleEndian.PutUint64(data[1:9], args.Amount)")
	assert.Contains(t, text, "copy(data[33:65], args.ShareMint[:])")
	assert.Contains(t, text, "s.TotalShares = binary.LittleEndian.Uint64(data[104:112])")
	assert.Contains(t, text, "s.Bump = data[112]")
	assert.Contains(t, text, "func DeriveVaultPDA(underlyingMint solana.PublicKey) (solana.PublicKey, uint8, error)")
	assert.Contains(t, text, "func DeriveVaultAuthorityPDA(vault solana.PublicKey) (solana.PublicKey, uint8, error)")
	assert.Contains(t, text, "float64(s.TotalDeposits) / float64(s.TotalShares)")

	again, err := RenderGo(vaultBindings(t), "vaultclient")
	require.NoError(t, err)
	assert.Equal(t, src, again)

	_, err = RenderGo(b, "not a package")
	assert.ErrorContains(t, err, "invalid package name")
}

func TestRenderGoAmm(t *testing.T) {
	src, err := RenderGo(ammBindings(t), "ammclient")
	require.NoError(t, err)
	names := declNames(t, src)
	assert.True(t, names["NewSwapAForBInstruction"])
	assert.True(t, names["DerivePoolPDA"])
	assert.True(t, names["PoolSummary"])
	assert.Contains(t, string(src), "func DerivePoolPDA(tokenMintA solana.PublicKey, tokenMintB solana.PublicKey)")
}

func TestRenderIDL(t *testing.T) {
	b := vaultBindings(t)
	out, err := RenderIDL(b, WithIDLVersion("1.2.3"))
	require.NoError(t, err)

	var idl IDL
	require.NoError(t, json.Unmarshal(out, &idl))
	assert.Equal(t, programs.VaultAddress, idl.Address)
	assert.Equal(t, IDLMetadata{Name: "Vault", Version: "1.2.3", Spec: IDLSpec, IRHash: b.Program.IRHash}, idl.Metadata)

	require.Len(t, idl.Instructions, 3)
	create := idl.Instructions[0]
	assert.Equal(t, "createVault", create.Name)
	assert.Equal(t, []int{0}, create.Discriminator)
	assert.Equal(t, IDLAccountMeta{Name: "payer", Writable: true, Signer: true}, create.Accounts[0])
	require.NotNil(t, create.Accounts[1].Pda)
	assert.Equal(t, []IDLSeed{
		{Kind: "const", Value: []int{'v', 'a', 'u', 'l', 't'}},
		{Kind: "arg", Path: "underlyingMint"},
	}, create.Accounts[1].Pda.Seeds)
	assert.Equal(t, "systemProgram", create.Accounts[len(create.Accounts)-1].Name)
	assert.Equal(t, []IDLField{
		{Name: "underlyingMint", Type: "pubkey", Offset: 0},
		{Name: "shareMint", Type: "pubkey", Offset: 32},
	}, create.Args)
	assert.Equal(t, []int{1}, idl.Instructions[1].Discriminator)

	require.Len(t, idl.Accounts, 1)
	assert.Equal(t, "VaultState", idl.Accounts[0].Name)
	assert.Equal(t, 113, idl.Accounts[0].Size)

	require.Len(t, idl.PDAs, 2)
	assert.Equal(t, "vaultAuthority", idl.PDAs[1].Name)
	assert.Equal(t, []IDLSeed{
		{Kind: "const", Value: []int{'a', 'u', 't', 'h', 'o', 'r', 'i', 't', 'y'}},
		{Kind: "account", Path: "vault"},
	}, idl.PDAs[1].Seeds)

	require.Len(t, idl.Views, 1)
	assert.Equal(t, "vault", idl.Views[0].Account)
	assert.Equal(t, IDLReturn{Name: "exchangeRate", Type: "ratio"}, idl.Views[0].Returns[4])

	assert.Equal(t, []IDLError{{Code: 1, Name: "DivisionByZero", Msg: "Division by zero"}}, idl.Errors)
}

func TestGenerate(t *testing.T) {
	out, err := Generate(vaultDoc(t), "vaultclient")
	require.NoError(t, err)
	assert.NotEmpty(t, out.Go)
	assert.Contains(t, string(out.IDL), `"version": "0.1.0"`)
	assert.Equal(t, "Vault", out.Bindings.Program.Name)
}

func TestIdentifiers(t *testing.T) {
	assert.Equal(t, "CreateVault", exported("createVault"))
	assert.Equal(t, "TokenMintA", exported("token_mint-a"))
	assert.Equal(t, "underlyingMint", unexported("underlyingMint"))
	assert.Equal(t, "typeValue", unexported("type"))
}
