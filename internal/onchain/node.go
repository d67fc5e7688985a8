package onchain

import (
	"fmt"

	"github.com/roach88/solforge/internal/ir"
)

// Node is a lowered expression. Numeric nodes produce uint64, key nodes
// solana.PublicKey, Compare a bool and Bytes a raw seed.
type Node interface {
	node()
}

// Imm is an immediate u64.
type Imm struct{ Value uint64 }

// Bytes is a literal seed.
type Bytes struct{ Value []byte }

// LoadArg reads a decoded instruction argument.
type LoadArg struct {
	Name string
	Type ir.ScalarType
}

// LoadField reads a field of the state record loaded for a slot.
type LoadField struct {
	Slot string
	Name string
	Type ir.ScalarType
}

// LoadKey reads the address of a slot.
type LoadKey struct{ Slot string }

// LoadBump reads the bump found when a slot's PDA was derived.
type LoadBump struct{ Slot string }

// CheckedAdd fails with ArithmeticOverflow instead of wrapping.
type CheckedAdd struct{ Left, Right Node }

// CheckedSub fails with ArithmeticOverflow on underflow.
type CheckedSub struct{ Left, Right Node }

// CheckedMul fails with ArithmeticOverflow when the product exceeds 64 bits.
type CheckedMul struct{ Left, Right Node }

// CheckedDiv fails with DivisionByZero.
type CheckedDiv struct{ Left, Right Node }

// WideMulDiv multiplies Factors in 128-bit space, divides by Divisor and
// narrows the quotient back to 64 bits.
type WideMulDiv struct {
	Factors []Node
	Divisor Node
}

// Compare is an equality test.
type Compare struct{ Left, Right Node }

// Select evaluates Then or Else depending on Cond. Only the chosen branch
// is evaluated.
type Select struct{ Cond, Then, Else Node }

func (Imm) node()        {}
func (Bytes) node()      {}
func (LoadArg) node()    {}
func (LoadField) node()  {}
func (LoadKey) node()    {}
func (LoadBump) node()   {}
func (CheckedAdd) node() {}
func (CheckedSub) node() {}
func (CheckedMul) node() {}
func (CheckedDiv) node() {}
func (WideMulDiv) node() {}
func (Compare) node()    {}
func (Select) node()     {}

// NodeVisitor has one method per Node variant. Adding a variant breaks every
// implementation until it handles the new case.
type NodeVisitor[T any] interface {
	VisitImm(Imm) (T, error)
	VisitBytes(Bytes) (T, error)
	VisitLoadArg(LoadArg) (T, error)
	VisitLoadField(LoadField) (T, error)
	VisitLoadKey(LoadKey) (T, error)
	VisitLoadBump(LoadBump) (T, error)
	VisitAdd(CheckedAdd) (T, error)
	VisitSub(CheckedSub) (T, error)
	VisitMul(CheckedMul) (T, error)
	VisitDiv(CheckedDiv) (T, error)
	VisitMulDiv(WideMulDiv) (T, error)
	VisitCompare(Compare) (T, error)
	VisitSelect(Select) (T, error)
}

// WalkNode dispatches n to the matching visitor method.
func WalkNode[T any](n Node, v NodeVisitor[T]) (T, error) {
	switch x := n.(type) {
	case Imm:
		return v.VisitImm(x)
	case Bytes:
		return v.VisitBytes(x)
	case LoadArg:
		return v.VisitLoadArg(x)
	case LoadField:
		return v.VisitLoadField(x)
	case LoadKey:
		return v.VisitLoadKey(x)
	case LoadBump:
		return v.VisitLoadBump(x)
	case CheckedAdd:
		return v.VisitAdd(x)
	case CheckedSub:
		return v.VisitSub(x)
	case CheckedMul:
		return v.VisitMul(x)
	case CheckedDiv:
		return v.VisitDiv(x)
	case WideMulDiv:
		return v.VisitMulDiv(x)
	case Compare:
		return v.VisitCompare(x)
	case Select:
		return v.VisitSelect(x)
	default:
		var zero T
		return zero, fmt.Errorf("unknown node %T", n)
	}
}

// NodeType is the scalar type a node produces. Arithmetic is u64, Compare
// is bool and Bytes has no scalar type.
func NodeType(n Node) ir.ScalarType {
	switch x := n.(type) {
	case LoadArg:
		return x.Type
	case LoadField:
		return x.Type
	case LoadKey:
		return ir.Pubkey
	case LoadBump:
		return ir.U8
	case Compare:
		return ir.Bool
	case Select:
		t, e := NodeType(x.Then), NodeType(x.Else)
		if t == e {
			return t
		}
		return ir.U64
	case Bytes:
		return ""
	}
	return ir.U64
}
