package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/dsl"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/programs"
)

func buildDoc(t *testing.T, p *dsl.Program) *ir.Document {
	t.Helper()
	doc, err := compiler.Build(p)
	require.NoError(t, err)
	return doc
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireLoadError(t *testing.T, err error, code string) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "expected *LoadError, got %T: %v", err, err)
	assert.Equal(t, code, le.Code)
	return le
}

func TestCUEVaultMatchesBuiltin(t *testing.T) {
	p, err := CUELoader{}.Load(context.Background(), "testdata/vault.cue")
	require.NoError(t, err)

	fromCUE := buildDoc(t, p)
	builtin := buildDoc(t, programs.Vault())
	assert.Equal(t, ir.MustDocumentHash(builtin), ir.MustDocumentHash(fromCUE))
}

func TestCUECounter(t *testing.T) {
	p, err := CUELoader{}.Load(context.Background(), "testdata/counter.cue")
	require.NoError(t, err)
	assert.Equal(t, "Counter", p.Name())

	doc := buildDoc(t, p)
	require.Len(t, doc.Instructions, 2)
	assert.Equal(t, "initialize", doc.Instructions[0].Name)
	assert.Equal(t, uint8(0), doc.Instructions[0].Discriminator)
	assert.Equal(t, "increment", doc.Instructions[1].Name)
	assert.Equal(t, uint8(1), doc.Instructions[1].Discriminator)

	inc := doc.Instructions[1]
	assert.Equal(t, []string{"by"}, inc.Args.Names())
	require.Len(t, inc.Ops, 2)
	assert.Equal(t, ir.OpStateUpdate, inc.Ops[0].Kind())
	assert.Equal(t, ir.OpEvent, inc.Ops[1].Kind())

	state := doc.Accounts[0].Def
	assert.Equal(t, []string{"owner", "count", "bump"}, state.Schema.Names())
	require.NotNil(t, state.Pda)
	assert.Equal(t, []ir.Seed{ir.SeedLiteral{Value: "counter"}, ir.AccountRef{Name: "owner"}}, state.Pda.Seeds)

	require.Len(t, doc.Views, 1)
	returns := doc.Views[0].Returns
	require.Len(t, returns, 2)
	assert.Equal(t, "doubled", returns[1].Name)
	assert.Equal(t, ir.Binary{Op: ir.OpMul, Left: ir.FieldRef{Account: "counter", Name: "count"}, Right: ir.Const{Value: 2}}, returns[1].Expr)
}

func TestCUEDirectory(t *testing.T) {
	fromDir, err := CUELoader{}.Load(context.Background(), "testdata/pkg")
	require.NoError(t, err)
	fromFile, err := CUELoader{}.Load(context.Background(), "testdata/counter.cue")
	require.NoError(t, err)

	assert.Equal(t, ir.MustDocumentHash(buildDoc(t, fromFile)), ir.MustDocumentHash(buildDoc(t, fromDir)))
}

func TestCUEEmptyDirectory(t *testing.T) {
	_, err := CUELoader{}.Load(context.Background(), t.TempDir())
	requireLoadError(t, err, ErrCodeNoFiles)
}

func TestCUEMissingSource(t *testing.T) {
	_, err := CUELoader{}.Load(context.Background(), filepath.Join(t.TempDir(), "missing.cue"))
	requireLoadError(t, err, ErrCodeNotFound)
}

func TestCUESyntaxError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.cue", "program: {\n\tname: \n")
	_, err := CUELoader{}.Load(context.Background(), path)
	le := requireLoadError(t, err, ErrCodeBuildFailed)
	assert.True(t, le.Pos.IsValid())
}

func TestCUEDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{
			name:    "missing program",
			src:     `other: 1`,
			message: "program is required",
		},
		{
			name:    "missing address",
			src:     `program: name: "X"`,
			message: "address is required",
		},
		{
			name: "misspelled op",
			src: `program: {
	name: "X", address: "x"
	instructions: go: {ops: [{transfr: {from: "a", to: "b", authority: "c", amount: 1}}]}
}`,
			message: `unknown op "transfr" (did you mean "transfer"?)`,
		},
		{
			name: "misspelled expression",
			src: `program: {
	name: "X", address: "x"
	instructions: go: {ops: [{update: {account: "s", set: {n: {ad: [1, 2]}}}}]}
}`,
			message: `unknown expression "ad" (did you mean "add"?)`,
		},
		{
			name: "bad schema type",
			src: `program: {
	name: "X", address: "x"
	accounts: s: {name: "S", schema: {n: "u32"}}
}`,
			message: `unsupported scalar type "u32"`,
		},
		{
			name: "bad role",
			src: `program: {
	name: "X", address: "x"
	instructions: go: {accounts: [{name: "m", role: "mnt"}]}
}`,
			message: `unknown role "mnt" (did you mean "mint"?)`,
		},
		{
			name: "binary arity",
			src: `program: {
	name: "X", address: "x"
	instructions: go: {ops: [{update: {account: "s", set: {n: {add: [1]}}}}]}
}`,
			message: "add takes exactly two operands, got 1",
		},
		{
			name: "bad field reference",
			src: `program: {
	name: "X", address: "x"
	instructions: go: {ops: [{update: {account: "s", set: {n: {field: "count"}}}}]}
}`,
			message: `field reference "count" must be account.field`,
		},
		{
			name: "ratio arity",
			src: `program: {
	name: "X", address: "x"
	views: v: {returns: {r: {ratio: [1]}}}
}`,
			message: "ratio takes [num, den]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "p.cue", tt.src)
			_, err := CUELoader{}.Load(context.Background(), path)
			le := requireLoadError(t, err, ErrCodeDecode)
			assert.Contains(t, le.Message, tt.message)
		})
	}
}

func TestCUECanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CUELoader{}.Load(ctx, "testdata/counter.cue")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadErrorFormat(t *testing.T) {
	err := &LoadError{Code: ErrCodeNotFound, Message: "source not found: x"}
	assert.Equal(t, "E005: source not found: x", err.Error())
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, "mintTo", suggest("mintto", opTags))
	assert.Equal(t, "burn", suggest("bun", opTags))
	assert.Empty(t, suggest("completelydifferent", opTags))
}

func TestChain(t *testing.T) {
	chain := NewChain()
	ctx := context.Background()

	p, err := chain.Load(ctx, "builtin:amm")
	require.NoError(t, err)
	assert.Equal(t, programs.Amm().Name(), p.Name())

	_, err = chain.Load(ctx, "builtin:nope")
	requireLoadError(t, err, ErrCodeNotFound)

	p, err = chain.Load(ctx, "testdata/counter.cue")
	require.NoError(t, err)
	assert.Equal(t, "Counter", p.Name())

	p, err = chain.Load(ctx, "testdata/pkg")
	require.NoError(t, err)
	assert.Equal(t, "Counter", p.Name())

	other := writeFile(t, t.TempDir(), "program.txt", "program: {}")
	_, err = chain.Load(ctx, other)
	le := requireLoadError(t, err, ErrCodeNotFound)
	assert.Contains(t, le.Message, "unsupported source")
}

type countingLoader struct {
	next  Loader
	calls int
}

func (c *countingLoader) Load(ctx context.Context, source string) (*dsl.Program, error) {
	c.calls++
	return c.next.Load(ctx, source)
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	counting := &countingLoader{next: NewChain()}
	cache, err := NewCache(counting, 4)
	require.NoError(t, err)

	src, err := os.ReadFile("testdata/counter.cue")
	require.NoError(t, err)
	path := writeFile(t, t.TempDir(), "counter.cue", string(src))

	first, err := cache.Load(ctx, path)
	require.NoError(t, err)
	second, err := cache.Load(ctx, path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, counting.calls)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	_, err = cache.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, counting.calls)

	_, err = cache.Load(ctx, "builtin:vault")
	require.NoError(t, err)
	_, err = cache.Load(ctx, "builtin:vault")
	require.NoError(t, err)
	assert.Equal(t, 3, counting.calls)
	assert.Equal(t, 3, cache.Len())

	cache.Purge()
	assert.Equal(t, 0, cache.Len())
	_, err = cache.Load(ctx, "builtin:vault")
	require.NoError(t, err)
	assert.Equal(t, 4, counting.calls)
}

func TestCacheSkipsFailures(t *testing.T) {
	counting := &countingLoader{next: NewChain()}
	cache, err := NewCache(counting, 0)
	require.NoError(t, err)

	_, err = cache.Load(context.Background(), "builtin:nope")
	require.Error(t, err)
	_, err = cache.Load(context.Background(), "builtin:nope")
	require.Error(t, err)
	assert.Equal(t, 2, counting.calls)
	assert.Equal(t, 0, cache.Len())
}
