package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/programs"
)

const counterSource = "../loader/testdata/counter.cue"

func TestCompileBuiltin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "vault.ir.json")

	stdout, err := execute(t, "compile", "builtin:vault", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Compiled Vault: 3 instruction(s), 1 view(s)")
	assert.Contains(t, stdout, "Wrote IR to "+out)
	assert.NotContains(t, stdout, "build:")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	doc, err := ir.UnmarshalDocument(data)
	require.NoError(t, err)

	want, err := compiler.Build(programs.Vault())
	require.NoError(t, err)
	assert.Equal(t, ir.MustDocumentHash(want), ir.MustDocumentHash(doc))
	assert.Contains(t, stdout, ir.MustDocumentHash(want))
}

func TestCompileJSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "counter.ir.json")

	stdout, err := execute(t, "compile", counterSource, out, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CompileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Counter", resp.Data.Program)
	assert.Equal(t, []string{"initialize", "increment"}, resp.Data.Instructions)
	assert.Equal(t, []string{"counterValue"}, resp.Data.Views)
	assert.Equal(t, out, resp.Data.Output)
	assert.Empty(t, resp.Data.Build)
}

func TestCompileWithLock(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "solforge.db")

	stdout, err := execute(t, "compile", counterSource, filepath.Join(dir, "a.json"), "--lock", lock)
	require.NoError(t, err)
	assert.Contains(t, stdout, "build:   #1 ")

	stdout, err = execute(t, "compile", counterSource, filepath.Join(dir, "b.json"), "--lock", lock)
	require.NoError(t, err)
	assert.Contains(t, stdout, "build:   #2 ")

	// Reordering instructions changes published discriminators.
	reordered := filepath.Join(dir, "c.json")
	stdout, stderr, err := executeStreams(t, "compile", "testdata/counter_reordered.cue", reordered, "--lock", lock)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NotContains(t, stdout, "✗ Validation failed")
	assert.Contains(t, stderr, "✗ Validation failed")
	assert.Contains(t, stderr, compiler.ErrCompatibilityBreak)
	assert.NoFileExists(t, reordered)

	history, err := execute(t, "history", "Counter", "--lock", lock)
	require.NoError(t, err)
	assert.Contains(t, history, "Counter: 2 build(s)")
}

func TestCompileLockFromConfig(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "config.db")
	cfg := filepath.Join(dir, "solforge.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("lock_path: "+lock+"\n"), 0o644))

	stdout, err := execute(t, "compile", "builtin:amm", filepath.Join(dir, "amm.json"), "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "build:   #1 ")
	assert.FileExists(t, lock)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode int
		wantText string
		stderr   bool
	}{
		{"missing source", "does/not/exist.cue", ExitCommandError, "E005", false},
		{"unknown builtin", "builtin:nope", ExitCommandError, "unknown built-in program", false},
		{"invalid program", "testdata/broken_slot.cue", ExitFailure, compiler.ErrUndefinedSlot, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.json")
			stdout, stderr, err := executeStreams(t, "compile", tt.input, out)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			if tt.stderr {
				assert.Contains(t, stderr, tt.wantText)
			} else {
				assert.Contains(t, stdout, tt.wantText)
			}
			assert.NoFileExists(t, out)
		})
	}
}
