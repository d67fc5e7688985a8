package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/programs"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// vaultDocument builds the vault program IR.
func vaultDocument(t *testing.T) *ir.Document {
	t.Helper()
	doc, err := compiler.Build(programs.Vault())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return doc
}
