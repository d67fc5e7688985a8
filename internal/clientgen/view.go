package clientgen

import (
	"fmt"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
)

// ViewValue is one named view result: a uint8, uint64, PublicKey or, for
// ratios, a float64.
type ViewValue struct {
	Name  string
	Value any
}

// ViewAccount returns the account table key a view reads.
func (b *Bindings) ViewAccount(name string) (string, bool) {
	v, ok := b.Doc.View(name)
	if !ok {
		return "", false
	}
	return compiler.ViewAccount(b.Doc.Accounts, *v)
}

// EvaluateView computes the returns of a view over a decoded state record.
// A ratio whose denominator is zero evaluates to 1.
func (b *Bindings) EvaluateView(name string, state onchain.Record) ([]ViewValue, error) {
	v, ok := b.Doc.View(name)
	if !ok {
		return nil, fmt.Errorf("unknown view %q", name)
	}
	scope := b.scope(v.Args)
	env := viewEnv{state: state}

	out := make([]ViewValue, 0, len(v.Returns))
	for _, r := range v.Returns {
		val, err := evalReturn(scope, env, r)
		if err != nil {
			return nil, fmt.Errorf("view %s: %s: %w", name, r.Name, err)
		}
		out = append(out, ViewValue{Name: r.Name, Value: val})
	}
	return out, nil
}

func evalReturn(scope onchain.Scope, env onchain.Env, r ir.ReturnField) (any, error) {
	num, err := scope.LowerExpr(r.Expr)
	if err != nil {
		return nil, err
	}
	if r.Type == ir.Ratio {
		den, err := scope.LowerExpr(r.Den)
		if err != nil {
			return nil, err
		}
		n, err := onchain.EvalU64(num, env)
		if err != nil {
			return nil, err
		}
		d, err := onchain.EvalU64(den, env)
		if err != nil {
			return nil, err
		}
		if d == 0 {
			return float64(1), nil
		}
		return float64(n) / float64(d), nil
	}
	t, ok := r.Type.Scalar()
	if !ok {
		return nil, fmt.Errorf("unsupported return type %q", r.Type)
	}
	val, err := onchain.Eval(num, env)
	if err != nil {
		return nil, err
	}
	return onchain.Coerce(t, val)
}

// viewEnv serves field reads from the single account a view covers.
type viewEnv struct {
	state onchain.Record
}

func (e viewEnv) Arg(name string) (any, error) {
	return nil, fmt.Errorf("views cannot read argument %q", name)
}

func (e viewEnv) Field(slot, name string) (any, error) {
	v, ok := e.state[name]
	if !ok {
		return nil, fmt.Errorf("state has no field %s.%s", slot, name)
	}
	return v, nil
}

func (e viewEnv) Key(slot string) (solana.PublicKey, error) {
	return solana.PublicKey{}, fmt.Errorf("views cannot read the key of %q", slot)
}

func (e viewEnv) Bump(slot string) (uint8, error) {
	return 0, fmt.Errorf("views cannot read the bump of %q", slot)
}
