package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/rustgen"
)

// compileTo writes the IR of input to a temp file and returns its path.
func compileTo(t *testing.T, input string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "program.ir.json")
	_, err := execute(t, "compile", input, out)
	require.NoError(t, err)
	return out
}

func TestGenProgram(t *testing.T) {
	irPath := compileTo(t, "builtin:vault")
	outDir := t.TempDir()

	stdout, err := execute(t, "gen-program", irPath, outDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Generated Vault crate")

	cargo, err := os.ReadFile(filepath.Join(outDir, rustgen.CargoPath))
	require.NoError(t, err)
	assert.Contains(t, string(cargo), `name = "vault_pinocchio"`)

	lib, err := os.ReadFile(filepath.Join(outDir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(lib), "process_instruction")

	stdout, err = execute(t, "gen-program", irPath, outDir, "--check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "is up to date")
}

func TestGenProgramCheckReportsDrift(t *testing.T) {
	outDir := t.TempDir()
	_, err := execute(t, "gen-program", counterSource, outDir)
	require.NoError(t, err)

	libPath := filepath.Join(outDir, "src", "lib.rs")
	lib, err := os.ReadFile(libPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(libPath, append([]byte("// local edit\n"), lib...), 0o644))

	stdout, err := execute(t, "gen-program", counterSource, outDir, "--check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ 1 generated file(s) differ")
	assert.Contains(t, stdout, "--- "+libPath)
	assert.Contains(t, stdout, "+++ "+libPath+" (generated)")
	assert.Contains(t, stdout, "-// local edit")

	after, err := os.ReadFile(libPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(after), "// local edit\n"), "--check never writes")
}

func TestGenProgramCheckMissingDir(t *testing.T) {
	stdout, err := execute(t, "gen-program", "builtin:amm", filepath.Join(t.TempDir(), "empty"), "--check", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   GenProgramResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.ElementsMatch(t, []string{rustgen.CargoPath, rustgen.LibPath}, resp.Data.Drifted)
}

func TestGenProgramConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "solforge.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("rust:\n  crate_suffix: _program\n  edition: \"2024\"\n"), 0o644))

	outDir := filepath.Join(dir, "crate")
	_, err := execute(t, "gen-program", "builtin:vault", outDir, "--config", cfg)
	require.NoError(t, err)
	cargo, err := os.ReadFile(filepath.Join(outDir, rustgen.CargoPath))
	require.NoError(t, err)
	assert.Contains(t, string(cargo), `name = "vault_program"`)
	assert.Contains(t, string(cargo), `edition = "2024"`)

	_, err = execute(t, "gen-program", "builtin:vault", outDir, "--crate", "custom")
	require.NoError(t, err)
	cargo, err = os.ReadFile(filepath.Join(outDir, rustgen.CargoPath))
	require.NoError(t, err)
	assert.Contains(t, string(cargo), `name = "custom"`)
}

func TestGenClient(t *testing.T) {
	irPath := compileTo(t, "builtin:vault")
	outDir := t.TempDir()

	stdout, err := execute(t, "gen-client", irPath, outDir, "--package", "vault", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   GenClientResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, filepath.Join(outDir, "vault.go"), resp.Data.Go)
	assert.Equal(t, filepath.Join(outDir, "vault.idl.json"), resp.Data.IDL)

	src, err := os.ReadFile(resp.Data.Go)
	require.NoError(t, err)
	assert.Contains(t, string(src), "package vault")

	idlData, err := os.ReadFile(resp.Data.IDL)
	require.NoError(t, err)
	var idl map[string]interface{}
	require.NoError(t, json.Unmarshal(idlData, &idl))
	assert.Contains(t, idl, "instructions")
	metadata, ok := idl["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0.1.0", metadata["version"])
}

func TestGenClientDefaultPackage(t *testing.T) {
	outDir := t.TempDir()
	t.Setenv("SOLFORGE_IDL_VERSION", "3.1.4")

	_, err := execute(t, "gen-client", counterSource, outDir)
	require.NoError(t, err)

	src, err := os.ReadFile(filepath.Join(outDir, "counter.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "package client")

	idlData, err := os.ReadFile(filepath.Join(outDir, "counter.idl.json"))
	require.NoError(t, err)
	assert.Contains(t, string(idlData), `"3.1.4"`)
}
