package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/ir"
)

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "solforge.db")
	first := filepath.Join(dir, "first.json")

	_, err := execute(t, "compile", "builtin:vault", first, "--lock", lock)
	require.NoError(t, err)

	stdout, err := execute(t, "history", "Vault", "--lock", lock, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   HistoryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Builds, 1)
	b := resp.Data.Builds[0]
	assert.Equal(t, int64(1), b.Seq)
	require.Len(t, b.Instructions, 3)
	assert.Equal(t, "createVault", b.Instructions[0].Name)
	assert.Equal(t, 0, b.Instructions[0].Discriminator)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	doc, err := ir.UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, ir.MustDocumentHash(doc), b.IRHash)

	// Restore the recorded IR.
	restored := filepath.Join(dir, "restored.json")
	stdout, err = execute(t, "history", "Vault", "--lock", lock, "--build", b.ID, "--output", restored)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Restored Vault build #1")
	again, err := os.ReadFile(restored)
	require.NoError(t, err)
	restoredDoc, err := ir.UnmarshalDocument(again)
	require.NoError(t, err)
	assert.Equal(t, b.IRHash, ir.MustDocumentHash(restoredDoc))

	_, err = execute(t, "history", "Amm", "--lock", lock, "--build", b.ID, "--output", restored)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to Vault")
}

func TestHistoryEmpty(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "solforge.db")
	stdout, err := execute(t, "history", "Vault", "--lock", lock)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No builds recorded for Vault")
}

func TestHistoryRequiresLock(t *testing.T) {
	_, err := execute(t, "history", "Vault")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "history", "Vault", "--lock", filepath.Join(t.TempDir(), "x.db"), "--build", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--build requires --output")
}
