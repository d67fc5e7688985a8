package programs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"amm", "vault"}, Names())

	for _, name := range Names() {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.NoError(t, p.Validate(), name)
	}

	_, err := Lookup("lending")
	assert.ErrorContains(t, err, "unknown built-in program")
}

func TestVaultDeclarations(t *testing.T) {
	p := Vault()

	ixs := p.Instructions()
	require.Len(t, ixs, 3)
	assert.Equal(t, "createVault", ixs[0].Name)
	assert.Equal(t, "deposit", ixs[1].Name)
	assert.Equal(t, "withdraw", ixs[2].Name)

	def, ok := p.Accounts().Lookup("vault")
	require.True(t, ok)
	assert.Equal(t, 32*3+8*2+1, def.Schema.Width())
}

func TestAmmDeclarations(t *testing.T) {
	p := Amm()

	var names []string
	for _, ix := range p.Instructions() {
		names = append(names, ix.Name)
	}
	assert.Equal(t, []string{"createPool", "addLiquidity", "removeLiquidity", "swapAForB", "swapBForA"}, names)

	def, ok := p.Accounts().Lookup("pool")
	require.True(t, ok)
	assert.Equal(t, 32*4+8*3+1, def.Schema.Width())
}
