package svm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/internal/programs"
	"github.com/roach88/solforge/internal/testutil"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/system"
	"github.com/roach88/solforge/pkg/solana/token"
)

// vaultFixture is a deployed vault with funded wallets and token accounts.
type vaultFixture struct {
	rt   *Runtime
	prog *onchain.Program
	keys map[string]solana.PublicKey
}

func ata(t *testing.T, owner, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	k, err := token.GetAssociatedAccount(owner, mint)
	require.NoError(t, err)
	return k
}

func newVaultFixture(t *testing.T, opts ...Option) *vaultFixture {
	t.Helper()
	doc, err := compiler.Build(programs.Vault())
	require.NoError(t, err)
	prog, err := onchain.Lower(doc)
	require.NoError(t, err)

	l := NewLedger()
	rt := New(l, opts...)
	rt.Deploy(prog)

	payer := testutil.WalletKey("payer")
	user := testutil.WalletKey("user")
	underlying := testutil.WalletKey("underlying")
	shares := testutil.WalletKey("shares")
	vault, err := solana.FindProgramAddress(prog.Address, []byte("vault"), underlying[:])
	require.NoError(t, err)
	authority, err := solana.FindProgramAddress(prog.Address, []byte("authority"), vault[:])
	require.NoError(t, err)

	keys := map[string]solana.PublicKey{
		"payer":           payer,
		"user":            user,
		"underlyingMint":  underlying,
		"shareMint":       shares,
		"vault":           vault,
		"vaultAuthority":  authority,
		"userUnderlying":  ata(t, user, underlying),
		"vaultUnderlying": ata(t, authority, underlying),
		"userShares":      ata(t, user, shares),
		"tokenProgram":    token.ProgramKey,
		"systemProgram":   system.ProgramKey,
	}

	l.Airdrop(payer, 10_000_000_000)
	l.SetMint(underlying, token.Mint{MintAuthority: payer, Decimals: 6, Supply: 5000})
	l.SetMint(shares, token.Mint{MintAuthority: authority, Decimals: 6})
	l.SetTokenAccount(keys["userUnderlying"], token.Account{Mint: underlying, Owner: user, Amount: 5000})
	l.SetTokenAccount(keys["vaultUnderlying"], token.Account{Mint: underlying, Owner: authority})
	l.SetTokenAccount(keys["userShares"], token.Account{Mint: shares, Owner: user})

	return &vaultFixture{rt: rt, prog: prog, keys: keys}
}

// ix builds a call to handler name with metas in slot order. Overrides
// replace the key presented for a slot.
func (f *vaultFixture) ix(t *testing.T, name string, args onchain.Record, overrides map[string]solana.PublicKey) solana.Instruction {
	t.Helper()
	h, ok := f.prog.Handler(name)
	require.True(t, ok, name)
	data, err := h.EncodeInstruction(args)
	require.NoError(t, err)

	metas := make([]solana.AccountMeta, len(h.Slots))
	for i, s := range h.Slots {
		k, ok := overrides[s.Name]
		if !ok {
			k, ok = f.keys[s.Name]
			require.True(t, ok, "no key for slot %s", s.Name)
		}
		metas[i] = solana.AccountMeta{PublicKey: k, IsSigner: s.Signer, IsWritable: s.Writable}
	}
	return solana.NewInstruction(f.prog.Address, data, metas...)
}

func (f *vaultFixture) createVault(t *testing.T) {
	t.Helper()
	_, err := f.rt.Process([]solana.PublicKey{f.keys["payer"]}, f.ix(t, "createVault", onchain.Record{
		"underlyingMint": f.keys["underlyingMint"],
		"shareMint":      f.keys["shareMint"],
	}, nil))
	require.NoError(t, err)
}

func (f *vaultFixture) deposit(amount uint64) solana.Instruction {
	return f.mustIx("deposit", onchain.Record{"amount": amount})
}

func (f *vaultFixture) withdraw(shares uint64) solana.Instruction {
	return f.mustIx("withdraw", onchain.Record{"shares": shares})
}

func (f *vaultFixture) mustIx(name string, args onchain.Record) solana.Instruction {
	h, _ := f.prog.Handler(name)
	data, err := h.EncodeInstruction(args)
	if err != nil {
		panic(err)
	}
	metas := make([]solana.AccountMeta, len(h.Slots))
	for i, s := range h.Slots {
		metas[i] = solana.AccountMeta{PublicKey: f.keys[s.Name], IsSigner: s.Signer, IsWritable: s.Writable}
	}
	return solana.NewInstruction(f.prog.Address, data, metas...)
}

func (f *vaultFixture) user() []solana.PublicKey {
	return []solana.PublicKey{f.keys["user"]}
}

func (f *vaultFixture) tokenAmount(t *testing.T, slot string) uint64 {
	t.Helper()
	a, err := f.rt.Ledger().TokenAccount(f.keys[slot])
	require.NoError(t, err)
	return a.Amount
}

func (f *vaultFixture) state(t *testing.T) onchain.Record {
	t.Helper()
	layout, ok := f.prog.State("vault")
	require.True(t, ok)
	a, ok := f.rt.Ledger().Get(f.keys["vault"])
	require.True(t, ok)
	rec, err := layout.Decode(a.Data)
	require.NoError(t, err)
	return rec
}
