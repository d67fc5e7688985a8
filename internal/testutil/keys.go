package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"sort"
	"sync"

	"github.com/roach88/solforge/pkg/solana"
)

// Keys maps scenario labels to deterministic addresses.
//
// Wallet labels get the public key of an ed25519 keypair seeded from the
// label, so the same label yields the same address in every run. Derived
// addresses (PDAs, associated token accounts) are registered under their
// own labels so traces can name them.
//
// Thread-safety: Keys is safe for concurrent use.
type Keys struct {
	mu     sync.Mutex
	byName map[string]solana.PublicKey
	byKey  map[solana.PublicKey]string
}

// NewKeys creates an empty registry.
func NewKeys() *Keys {
	return &Keys{
		byName: make(map[string]solana.PublicKey),
		byKey:  make(map[solana.PublicKey]string),
	}
}

// WalletKey returns the deterministic wallet address of label without
// registering it.
func WalletKey(label string) solana.PublicKey {
	seed := sha256.Sum256([]byte("solforge/testutil/" + label))
	pub := ed25519.NewKeyFromSeed(seed[:]).Public().(ed25519.PublicKey)
	var k solana.PublicKey
	copy(k[:], pub)
	return k
}

// Key returns the address of label, creating a wallet key on first use.
func (k *Keys) Key(label string) solana.PublicKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	if pub, ok := k.byName[label]; ok {
		return pub
	}
	pub := WalletKey(label)
	k.byName[label] = pub
	k.byKey[pub] = label
	return pub
}

// Register binds label to an address computed elsewhere. It returns false
// when the label is already bound to a different address.
func (k *Keys) Register(label string, pub solana.PublicKey) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if cur, ok := k.byName[label]; ok {
		return cur == pub
	}
	k.byName[label] = pub
	if _, ok := k.byKey[pub]; !ok {
		k.byKey[pub] = label
	}
	return true
}

// Lookup returns the address bound to label, if any.
func (k *Keys) Lookup(label string) (solana.PublicKey, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	pub, ok := k.byName[label]
	return pub, ok
}

// Label returns the first label bound to pub.
func (k *Keys) Label(pub solana.PublicKey) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.byKey[pub]
	return l, ok
}

// Name renders pub as its label, or as base58 when it has none.
func (k *Keys) Name(pub solana.PublicKey) string {
	if l, ok := k.Label(pub); ok {
		return l
	}
	return pub.String()
}

// Labels returns every bound label in sorted order.
func (k *Keys) Labels() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.byName))
	for l := range k.byName {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
