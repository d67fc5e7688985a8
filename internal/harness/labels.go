package harness

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/token"
)

const (
	pdaPrefix = "pda:"
	ataPrefix = "ata:"
)

// key resolves a label to an address.
func (h *Harness) key(label string) (solana.PublicKey, error) {
	if k, ok := h.keys.Lookup(label); ok {
		return k, nil
	}
	switch {
	case label == "":
		return solana.PublicKey{}, fmt.Errorf("empty label")
	case strings.HasPrefix(label, pdaPrefix):
		return solana.PublicKey{}, fmt.Errorf("%s is not declared in setup.pdas", label)
	case strings.HasPrefix(label, ataPrefix):
		owner, mint, ok := strings.Cut(strings.TrimPrefix(label, ataPrefix), "/")
		if !ok {
			return solana.PublicKey{}, fmt.Errorf("%s: expected ata:<owner>/<mint>", label)
		}
		ownerKey, err := h.key(owner)
		if err != nil {
			return solana.PublicKey{}, err
		}
		mintKey, err := h.key(mint)
		if err != nil {
			return solana.PublicKey{}, err
		}
		k, err := token.GetAssociatedAccount(ownerKey, mintKey)
		if err != nil {
			return solana.PublicKey{}, err
		}
		h.keys.Register(label, k)
		return k, nil
	}
	if len(label) >= 32 {
		if k, err := solana.ParsePublicKey(label); err == nil {
			return k, nil
		}
	}
	return h.keys.Key(label), nil
}

// typed converts a YAML value to a schema type. Pubkeys are labels.
func (h *Harness) typed(t ir.ScalarType, v any) (any, error) {
	if t == ir.Pubkey {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a label, got %T", v)
		}
		return h.key(s)
	}
	n, err := toU64(v)
	if err != nil {
		return nil, err
	}
	return onchain.Coerce(t, n)
}

// untyped converts a YAML value whose type is implied by its use:
// strings are labels, numbers are u64.
func (h *Harness) untyped(v any) (any, error) {
	if s, ok := v.(string); ok {
		return h.key(s)
	}
	return toU64(v)
}

func toU64(v any) (uint64, error) {
	switch x := v.(type) {
	case int:
		if x >= 0 {
			return uint64(x), nil
		}
	case int64:
		if x >= 0 {
			return uint64(x), nil
		}
	case uint64:
		return x, nil
	case float64:
		if x >= 0 && x == math.Trunc(x) && x < math.MaxUint64 {
			return uint64(x), nil
		}
	case string:
		if n, err := strconv.ParseUint(x, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("expected an unsigned integer, got %v", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("expected a number, got %v", v)
}

// equal compares a decoded value with an expected YAML value.
func (h *Harness) equal(got, want any) (bool, error) {
	switch g := got.(type) {
	case solana.PublicKey:
		s, ok := want.(string)
		if !ok {
			return false, fmt.Errorf("expected a label, got %T", want)
		}
		k, err := h.key(s)
		if err != nil {
			return false, err
		}
		return k == g, nil
	case float64:
		w, err := toFloat(want)
		if err != nil {
			return false, err
		}
		return math.Abs(g-w) <= 1e-9*math.Max(1, math.Abs(w)), nil
	}
	g, err := onchain.AsU64(got)
	if err != nil {
		return false, err
	}
	w, err := toU64(want)
	if err != nil {
		return false, err
	}
	return g == w, nil
}

// describe renders a value for messages, naming labeled keys.
func (h *Harness) describe(v any) string {
	if k, ok := v.(solana.PublicKey); ok {
		return h.keys.Name(k)
	}
	return fmt.Sprintf("%v", v)
}
