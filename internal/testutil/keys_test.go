package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/pkg/solana"
)

func TestKeys_Deterministic(t *testing.T) {
	a := NewKeys()
	b := NewKeys()

	assert.Equal(t, a.Key("user"), b.Key("user"))
	assert.Equal(t, WalletKey("user"), a.Key("user"))
	assert.NotEqual(t, a.Key("user"), a.Key("admin"))
}

func TestKeys_Labels(t *testing.T) {
	keys := NewKeys()
	user := keys.Key("user")

	label, ok := keys.Label(user)
	require.True(t, ok)
	assert.Equal(t, "user", label)
	assert.Equal(t, "user", keys.Name(user))

	var unknown solana.PublicKey
	unknown[0] = 7
	assert.Equal(t, unknown.String(), keys.Name(unknown))
}

func TestKeys_Register(t *testing.T) {
	keys := NewKeys()
	var pda solana.PublicKey
	pda[31] = 1

	assert.True(t, keys.Register("pda:vault", pda))
	assert.True(t, keys.Register("pda:vault", pda))

	var other solana.PublicKey
	other[31] = 2
	assert.False(t, keys.Register("pda:vault", other))

	got, ok := keys.Lookup("pda:vault")
	require.True(t, ok)
	assert.Equal(t, pda, got)

	keys.Key("user")
	assert.Equal(t, []string{"pda:vault", "user"}, keys.Labels())
}

func TestKeys_ThreadSafe(t *testing.T) {
	keys := NewKeys()
	var wg sync.WaitGroup
	results := make([]solana.PublicKey, 50)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = keys.Key("shared")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, WalletKey("shared"), r)
	}
}
