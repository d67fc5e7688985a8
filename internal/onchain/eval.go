package onchain

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
)

// Env supplies the runtime values nodes read.
type Env interface {
	Arg(name string) (any, error)
	Field(slot, name string) (any, error)
	Key(slot string) (solana.PublicKey, error)
	Bump(slot string) (uint8, error)
}

// Eval evaluates n against env.
func Eval(n Node, env Env) (any, error) {
	return WalkNode[any](n, evaluator{env: env})
}

// EvalU64 evaluates a numeric node.
func EvalU64(n Node, env Env) (uint64, error) {
	v, err := Eval(n, env)
	if err != nil {
		return 0, err
	}
	return AsU64(v)
}

type evaluator struct {
	env Env
}

func (e evaluator) u64(n Node) (uint64, error) {
	return EvalU64(n, e.env)
}

func (e evaluator) pair(l, r Node) (uint64, uint64, error) {
	a, err := e.u64(l)
	if err != nil {
		return 0, 0, err
	}
	b, err := e.u64(r)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (e evaluator) VisitImm(n Imm) (any, error)     { return n.Value, nil }
func (e evaluator) VisitBytes(n Bytes) (any, error) { return n.Value, nil }

func (e evaluator) VisitLoadArg(n LoadArg) (any, error) {
	return e.env.Arg(n.Name)
}

func (e evaluator) VisitLoadField(n LoadField) (any, error) {
	return e.env.Field(n.Slot, n.Name)
}

func (e evaluator) VisitLoadKey(n LoadKey) (any, error) {
	return e.env.Key(n.Slot)
}

func (e evaluator) VisitLoadBump(n LoadBump) (any, error) {
	return e.env.Bump(n.Slot)
}

func (e evaluator) VisitAdd(n CheckedAdd) (any, error) {
	a, b, err := e.pair(n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	return Add64(a, b)
}

func (e evaluator) VisitSub(n CheckedSub) (any, error) {
	a, b, err := e.pair(n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	return Sub64(a, b)
}

func (e evaluator) VisitMul(n CheckedMul) (any, error) {
	a, b, err := e.pair(n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	return Mul64(a, b)
}

func (e evaluator) VisitDiv(n CheckedDiv) (any, error) {
	a, b, err := e.pair(n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	return Div64(a, b)
}

func (e evaluator) VisitMulDiv(n WideMulDiv) (any, error) {
	factors := make([]uint64, len(n.Factors))
	for i, f := range n.Factors {
		v, err := e.u64(f)
		if err != nil {
			return nil, err
		}
		factors[i] = v
	}
	d, err := e.u64(n.Divisor)
	if err != nil {
		return nil, err
	}
	return MulDiv64(factors, d)
}

func (e evaluator) VisitCompare(n Compare) (any, error) {
	l, err := Eval(n.Left, e.env)
	if err != nil {
		return nil, err
	}
	r, err := Eval(n.Right, e.env)
	if err != nil {
		return nil, err
	}
	if lk, ok := l.(solana.PublicKey); ok {
		rk, ok := r.(solana.PublicKey)
		return ok && lk == rk, nil
	}
	a, err := AsU64(l)
	if err != nil {
		return nil, err
	}
	b, err := AsU64(r)
	if err != nil {
		return nil, err
	}
	return a == b, nil
}

func (e evaluator) VisitSelect(n Select) (any, error) {
	c, err := Eval(n.Cond, e.env)
	if err != nil {
		return nil, err
	}
	cond, ok := c.(bool)
	if !ok {
		return nil, fmt.Errorf("select condition is %T, not bool", c)
	}
	if cond {
		return Eval(n.Then, e.env)
	}
	return Eval(n.Else, e.env)
}

// SeedBytes evaluates a seed node to the bytes hashed into a PDA: literals
// verbatim, u8 as one byte, u64 as 8 little-endian bytes, pubkeys as 32.
func SeedBytes(n Node, env Env) ([]byte, error) {
	if b, ok := n.(Bytes); ok {
		return b.Value, nil
	}
	v, err := Eval(n, env)
	if err != nil {
		return nil, err
	}
	switch t := NodeType(n); t {
	case ir.U8:
		c, err := Coerce(ir.U8, v)
		if err != nil {
			return nil, err
		}
		return []byte{c.(uint8)}, nil
	case ir.U64:
		c, err := AsU64(v)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(nil, c), nil
	case ir.Pubkey:
		k, ok := v.(solana.PublicKey)
		if !ok {
			return nil, fmt.Errorf("seed evaluated to %T, not a pubkey", v)
		}
		return k.Bytes(), nil
	default:
		return nil, fmt.Errorf("seed of type %q has no byte encoding", t)
	}
}

// SeedList evaluates every seed node in order.
func SeedList(seeds []Node, env Env) ([][]byte, error) {
	out := make([][]byte, len(seeds))
	for i, s := range seeds {
		b, err := SeedBytes(s, env)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// DeriveAddress finds the PDA of seeds under program and its bump.
// Derivation failures are reported as ErrInvalidSeeds.
func DeriveAddress(program solana.PublicKey, seeds []Node, env Env) (solana.PublicKey, uint8, error) {
	list, err := SeedList(seeds, env)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	key, bump, err := solana.FindProgramAddressAndBump(program, list...)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return key, bump, nil
}
