package svm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/testutil"
	"github.com/roach88/solforge/pkg/solana/token"
)

func TestLedgerSnapshotRestore(t *testing.T) {
	l := NewLedger()
	alice := testutil.WalletKey("alice")
	l.Airdrop(alice, 100)

	snap := l.Snapshot()
	l.Airdrop(alice, 50)
	l.Set(testutil.WalletKey("bob"), &Account{Lamports: 7, Data: []byte{1, 2}})
	assert.Equal(t, uint64(150), l.Balance(alice))

	l.Restore(snap)
	assert.Equal(t, uint64(100), l.Balance(alice))
	_, ok := l.Get(testutil.WalletKey("bob"))
	assert.False(t, ok)
}

func TestLedgerGetReturnsCopies(t *testing.T) {
	l := NewLedger()
	k := testutil.WalletKey("alice")
	l.Set(k, &Account{Lamports: 1, Data: []byte{1}})

	a, ok := l.Get(k)
	require.True(t, ok)
	a.Data[0] = 9
	a.Lamports = 5

	b, _ := l.Get(k)
	assert.Equal(t, []byte{1}, b.Data)
	assert.Equal(t, uint64(1), b.Lamports)
}

func TestLedgerTokenAccounts(t *testing.T) {
	l := NewLedger()
	mint := testutil.WalletKey("mint")
	owner := testutil.WalletKey("owner")
	acct := testutil.WalletKey("acct")

	l.SetMint(mint, token.Mint{MintAuthority: owner, Decimals: 9, Supply: 10})
	l.SetTokenAccount(acct, token.Account{Mint: mint, Owner: owner, Amount: 10})

	m, err := l.Mint(mint)
	require.NoError(t, err)
	assert.True(t, m.IsInitialized)
	assert.Equal(t, uint64(10), m.Supply)

	a, err := l.TokenAccount(acct)
	require.NoError(t, err)
	assert.Equal(t, owner, a.Owner)
	assert.Equal(t, token.AccountStateInitialized, a.State)

	_, err = l.TokenAccount(mint)
	assert.Error(t, err)
	_, err = l.Mint(owner)
	assert.Error(t, err)
}

func TestLedgerKeysAreSorted(t *testing.T) {
	l := NewLedger()
	l.Airdrop(testutil.WalletKey("a"), 1)
	l.Airdrop(testutil.WalletKey("b"), 1)

	keys := l.Keys()
	require.Len(t, keys, 4)
	for i := 1; i < len(keys); i++ {
		assert.Negative(t, bytes.Compare(keys[i-1][:], keys[i][:]))
	}
}
