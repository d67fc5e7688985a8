package svm

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/system"
	"github.com/roach88/solforge/pkg/solana/token"
)

// Loader owners of executable accounts.
var (
	NativeLoaderKey = solana.MustParsePublicKey("NativeLoader1111111111111111111111111111111")
	BPFLoaderKey    = solana.MustParsePublicKey("BPFLoaderUpgradeab1e11111111111111111111111")
)

// Account is the runtime view of one address.
type Account struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Data       []byte
	Executable bool
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.Data = bytes.Clone(a.Data)
	return &c
}

// Ledger holds every account the emulator knows. Addresses that were never
// written read as empty system-owned accounts.
type Ledger struct {
	accounts map[solana.PublicKey]*Account
}

// Snapshot is a point-in-time copy of a ledger.
type Snapshot struct {
	accounts map[solana.PublicKey]*Account
}

// NewLedger creates a ledger holding the built-in program accounts.
func NewLedger() *Ledger {
	l := &Ledger{accounts: make(map[solana.PublicKey]*Account)}
	for _, p := range []solana.PublicKey{system.ProgramKey, token.ProgramKey} {
		l.accounts[p] = &Account{Lamports: 1, Owner: NativeLoaderKey, Executable: true}
	}
	return l
}

// Get returns a copy of the account at key.
func (l *Ledger) Get(key solana.PublicKey) (*Account, bool) {
	a, ok := l.accounts[key]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Set replaces the account at key with a copy of a.
func (l *Ledger) Set(key solana.PublicKey, a *Account) {
	l.accounts[key] = a.Clone()
}

// Keys returns every known address in byte order.
func (l *Ledger) Keys() []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(l.accounts))
	for k := range l.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return keys
}

// account returns the live account at key, or an empty system account
// that is not yet stored.
func (l *Ledger) account(key solana.PublicKey) *Account {
	if a, ok := l.accounts[key]; ok {
		return a
	}
	return &Account{Owner: system.ProgramKey}
}

func (l *Ledger) put(key solana.PublicKey, a *Account) {
	l.accounts[key] = a
}

// Snapshot copies the ledger.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{accounts: make(map[solana.PublicKey]*Account, len(l.accounts))}
	for k, a := range l.accounts {
		s.accounts[k] = a.Clone()
	}
	return s
}

// Restore rolls the ledger back to s.
func (l *Ledger) Restore(s Snapshot) {
	l.accounts = make(map[solana.PublicKey]*Account, len(s.accounts))
	for k, a := range s.accounts {
		l.accounts[k] = a.Clone()
	}
}

// Airdrop credits lamports to key.
func (l *Ledger) Airdrop(key solana.PublicKey, lamports uint64) {
	a := l.account(key)
	a.Lamports += lamports
	l.put(key, a)
}

// Balance returns the lamports held by key.
func (l *Ledger) Balance(key solana.PublicKey) uint64 {
	return l.account(key).Lamports
}

// SetMint stores an initialized, rent-exempt mint at key.
func (l *Ledger) SetMint(key solana.PublicKey, m token.Mint) {
	m.IsInitialized = true
	l.put(key, &Account{
		Lamports: system.MinimumBalance(token.MintSize),
		Owner:    token.ProgramKey,
		Data:     m.Marshal(),
	})
}

// Mint decodes the mint at key.
func (l *Ledger) Mint(key solana.PublicKey) (token.Mint, error) {
	var m token.Mint
	a, ok := l.accounts[key]
	if !ok || a.Owner != token.ProgramKey || !m.Unmarshal(a.Data) {
		return m, errors.Errorf("%s is not a mint", key)
	}
	return m, nil
}

// SetTokenAccount stores an initialized, rent-exempt token account at key.
func (l *Ledger) SetTokenAccount(key solana.PublicKey, t token.Account) {
	t.State = token.AccountStateInitialized
	l.put(key, &Account{
		Lamports: system.MinimumBalance(token.AccountSize),
		Owner:    token.ProgramKey,
		Data:     t.Marshal(),
	})
}

// TokenAccount decodes the token account at key.
func (l *Ledger) TokenAccount(key solana.PublicKey) (token.Account, error) {
	var t token.Account
	a, ok := l.accounts[key]
	if !ok || a.Owner != token.ProgramKey || !t.Unmarshal(a.Data) {
		return t, errors.Errorf("%s is not a token account", key)
	}
	return t, nil
}
