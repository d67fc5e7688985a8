package rustgen

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/internal/programs"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/token"
)

// counterProgram is a hand-lowered program covering state loads, PDA
// checks, two-phase updates and events.
func counterProgram() *onchain.Program {
	state := onchain.NewLayout("Counter", onchain.StateLayout, ir.Schema{
		{Name: "authority", Type: ir.Pubkey},
		{Name: "count", Type: ir.U64},
		{Name: "bump", Type: ir.U8},
	})
	count := onchain.LoadField{Slot: "counter", Name: "count", Type: ir.U64}
	return &onchain.Program{
		Name:    "Counter",
		Address: solana.MustParsePublicKey(programs.VaultAddress),
		IRHash:  "00000000",
		States:  []onchain.State{{Key: "counter", Layout: state}},
		Handlers: []*onchain.Handler{{
			Name:          "increment",
			Discriminator: 0,
			Args:          onchain.NewLayout("increment", onchain.ArgsLayout, ir.Schema{{Name: "by", Type: ir.U64}}),
			Slots: []onchain.Slot{
				{Name: "authority", Index: 0, Signer: true},
				{Name: "counter", Index: 1, Writable: true, Pda: true},
			},
			Steps: []onchain.Step{
				onchain.CheckSigner{Slot: "authority"},
				onchain.CheckWritable{Slot: "counter"},
				onchain.DerivePDA{Slot: "counter", Seeds: []onchain.Node{
					onchain.Bytes{Value: []byte("counter")},
					onchain.LoadKey{Slot: "authority"},
				}},
				onchain.CheckOwner{Slot: "counter"},
				onchain.LoadState{Slot: "counter", Layout: state},
				onchain.UpdateState{Slot: "counter", Layout: state, Fields: []onchain.FieldStore{{
					Field: state.Fields[1],
					Value: onchain.CheckedAdd{Left: count, Right: onchain.LoadArg{Name: "by", Type: ir.U64}},
				}}},
				onchain.EmitEvent{Name: "Incremented", Fields: []onchain.EventField{{Name: "count", Value: count}}},
			},
		}},
	}
}

func TestRenderCounterGolden(t *testing.T) {
	files, err := Render(counterProgram(), Options{})
	require.NoError(t, err)

	lib, ok := files.Get(LibPath)
	require.True(t, ok)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "counter_lib_rs", lib)
}

func TestRenderCargoToml(t *testing.T) {
	files, err := Render(counterProgram(), Options{PinocchioVersion: "0.10"})
	require.NoError(t, err)

	cargo, ok := files.Get(CargoPath)
	require.True(t, ok)
	assert.Contains(t, string(cargo), `name = "counter_pinocchio"`)
	assert.Contains(t, string(cargo), `pinocchio = { version = "0.10", default-features = false }`)
	assert.Contains(t, string(cargo), `pinocchio-tkn = { version = "0.2.2" }`)
	assert.Contains(t, string(cargo), `edition = "2021"`)

	files, err = Render(counterProgram(), Options{CrateName: "my_counter"})
	require.NoError(t, err)
	cargo, _ = files.Get(CargoPath)
	assert.Contains(t, string(cargo), `name = "my_counter"`)
}

func renderVault(t *testing.T) string {
	t.Helper()
	doc, err := compiler.Build(programs.Vault())
	require.NoError(t, err)
	p, err := onchain.Lower(doc)
	require.NoError(t, err)
	files, err := Render(p, DefaultOptions())
	require.NoError(t, err)
	lib, ok := files.Get(LibPath)
	require.True(t, ok)
	return string(lib)
}

func TestRenderVault(t *testing.T) {
	lib := renderVault(t)

	assert.True(t, strings.HasPrefix(lib, "// AUTO-GENERATED - DO NOT EDIT\n// program: Vault\n"))
	assert.Regexp(t, `\n// ir-hash: [0-9a-f]{64}\n`, lib)
	assert.Contains(t, lib, "struct VaultState {")
	assert.Contains(t, lib, "const LEN: usize = 113;")
	assert.Contains(t, lib, "fn create_program_account(")

	for _, want := range []string{
		"0 => handle_create_vault(program_id, accounts, &data[1..]),",
		"1 => handle_deposit(program_id, accounts, &data[1..]),",
		"2 => handle_withdraw(program_id, accounts, &data[1..]),",
	} {
		assert.Contains(t, lib, want)
	}

	assert.Contains(t, lib,
		"let (vault_key, vault_bump) = pubkey::find_program_address(&[b\"vault\", args.underlying_mint.as_ref()], program_id);")
	assert.Contains(t, lib,
		"create_program_account(payer, vault, program_id, VaultState::LEN, Some(&vault_signer))?;")
	assert.Contains(t, lib, "let next_admin = *payer.key();")
	assert.Contains(t, lib, "let next_total_deposits = 0u64;")
	assert.Contains(t, lib, "let next_bump = vault_bump;")
	assert.Contains(t, lib,
		"amount: if vault_state.total_shares == 0u64 { args.amount } else { checked_mul_div_n(&[args.amount, vault_state.total_shares], vault_state.total_deposits)? },")
	assert.Contains(t, lib, "}.invoke_signed(&[vault_authority_signer])?;")
	assert.Contains(t, lib, "if share_mint.key() != &vault_state.share_mint { return Err(ProgramError::InvalidAccountData); }")
}

func TestRenderVaultAccountChecks(t *testing.T) {
	lib := renderVault(t)

	assert.Contains(t, lib, "const TOKEN_PROGRAM_ID: Pubkey = [6, 221, 246, 225, 215, 101, 161, 147,")
	assert.Contains(t, lib, "const ASSOCIATED_TOKEN_PROGRAM_ID: Pubkey = "+pubkeyLiteral(token.AssociatedTokenAccountProgramKey)+";")
	assert.Contains(t, lib,
		"if token_program.key() != &TOKEN_PROGRAM_ID { return Err(ProgramError::IncorrectProgramId); }")

	// createVault knows the mint from its arguments, deposit from state.
	assert.Contains(t, lib,
		"let (vault_underlying_ata, _) = pubkey::find_program_address(&[vault_authority.key().as_ref(), TOKEN_PROGRAM_ID.as_ref(), args.underlying_mint.as_ref()], &ASSOCIATED_TOKEN_PROGRAM_ID);")
	assert.Contains(t, lib,
		"let (vault_underlying_ata, _) = pubkey::find_program_address(&[vault_authority.key().as_ref(), TOKEN_PROGRAM_ID.as_ref(), vault_state.underlying_mint.as_ref()], &ASSOCIATED_TOKEN_PROGRAM_ID);")
	assert.Contains(t, lib,
		"let (user_shares_ata, _) = pubkey::find_program_address(&[user.key().as_ref(), TOKEN_PROGRAM_ID.as_ref(), vault_state.share_mint.as_ref()], &ASSOCIATED_TOKEN_PROGRAM_ID);")
	assert.Contains(t, lib, "if vault_underlying.key() != &vault_underlying_ata { return Err(ProgramError::InvalidSeeds); }")
}

func TestRenderCounterOmitsTokenPrograms(t *testing.T) {
	files, err := Render(counterProgram(), Options{})
	require.NoError(t, err)
	lib, _ := files.Get(LibPath)
	assert.NotContains(t, string(lib), "TOKEN_PROGRAM_ID")
}

func TestRenderDepositStatementOrder(t *testing.T) {
	lib := renderVault(t)
	start := strings.Index(lib, "fn handle_deposit(")
	require.NotEqual(t, -1, start)
	body := lib[start:]
	body = body[:strings.Index(body, "\n}\n")]

	order := []string{
		"if !user.is_signer()",
		"if token_program.key() != &TOKEN_PROGRAM_ID",
		"pubkey::find_program_address(&[b\"authority\", vault.key().as_ref()], program_id);",
		"if !vault.is_owned_by(program_id)",
		"let mut vault_state = VaultState::load(vault)?;",
		"if share_mint.key() != &vault_state.share_mint",
		"if user_underlying.key() != &user_underlying_ata",
		"if vault_underlying.key() != &vault_underlying_ata",
		"if user_shares.key() != &user_shares_ata",
		"let vault_authority_signer = Signer::from(&vault_authority_seeds);",
		"Transfer {",
		"MintTo {",
		"let next_total_deposits = checked_add(vault_state.total_deposits, args.amount)?;",
		"VaultState::store(vault, &vault_state)?;",
	}
	last := -1
	for _, s := range order {
		i := strings.Index(body, s)
		require.NotEqual(t, -1, i, "missing %q", s)
		assert.Greater(t, i, last, "%q out of order", s)
		last = i
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	assert.Equal(t, renderVault(t), renderVault(t))
}

func TestNames(t *testing.T) {
	tests := []struct{ in, snake, pascal string }{
		{"shareMint", "share_mint", "ShareMint"},
		{"vaultAuthority", "vault_authority", "VaultAuthority"},
		{"tokenAAccount", "token_a_account", "TokenAAccount"},
		{"createVault", "create_vault", "CreateVault"},
		{"VaultState", "vault_state", "VaultState"},
		{"lp-mint", "lp_mint", "LpMint"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.snake, snake(tt.in), tt.in)
		assert.Equal(t, tt.pascal, pascal(tt.in), tt.in)
	}
	assert.Equal(t, "r#type", ident("type"))
}

func TestByteString(t *testing.T) {
	assert.Equal(t, `b"vault"`, byteString([]byte("vault")))
	assert.Equal(t, `b"a\"b\\c\x00\xff"`, byteString([]byte{'a', '"', 'b', '\\', 'c', 0, 0xff}))
}

func TestValueAs(t *testing.T) {
	s, err := valueAs(onchain.Imm{Value: 7}, ir.U8)
	require.NoError(t, err)
	assert.Equal(t, "7u8", s)

	s, err = valueAs(onchain.LoadBump{Slot: "vault"}, ir.U64)
	require.NoError(t, err)
	assert.Equal(t, "(vault_bump as u64)", s)

	s, err = valueAs(onchain.LoadArg{Name: "n", Type: ir.U64}, ir.U8)
	require.NoError(t, err)
	assert.Equal(t, "u8::try_from(args.n).map_err(|_| ProgramError::ArithmeticOverflow)?", s)
}

func TestRenderSelectWidensNarrowBranches(t *testing.T) {
	cond := onchain.Compare{Left: onchain.LoadArg{Name: "n", Type: ir.U64}, Right: onchain.Imm{Value: 0}}

	s, err := render(onchain.Select{Cond: cond, Then: onchain.LoadArg{Name: "x", Type: ir.U8}, Else: onchain.Imm{Value: 5}})
	require.NoError(t, err)
	assert.Equal(t, "if args.n == 0u64 { (args.x as u64) } else { 5u64 }", s)

	s, err = render(onchain.Select{Cond: cond, Then: onchain.LoadBump{Slot: "a"}, Else: onchain.LoadBump{Slot: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "if args.n == 0u64 { a_bump } else { b_bump }", s)
}

func TestSeedListNumericSeeds(t *testing.T) {
	lets, refs, err := seedList("pool", []onchain.Node{
		onchain.Bytes{Value: []byte("pool")},
		onchain.LoadArg{Name: "index", Type: ir.U64},
		onchain.LoadBump{Slot: "vault"},
		onchain.LoadField{Slot: "config", Name: "admin", Type: ir.Pubkey},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"let pool_seed_1 = args.index.to_le_bytes();",
		"let pool_seed_2 = [vault_bump];",
	}, lets)
	assert.Equal(t, []string{`b"pool"`, "&pool_seed_1", "&pool_seed_2", "config_state.admin.as_ref()"}, refs)
}
