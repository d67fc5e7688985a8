package rustgen

import (
	"fmt"
	"strings"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
)

// exprRenderer renders lowered nodes as Rust expressions. Fallible
// arithmetic becomes a helper call followed by `?`.
type exprRenderer struct{}

func render(n onchain.Node) (string, error) {
	return onchain.WalkNode[string](n, exprRenderer{})
}

func stateVar(slot string) string {
	return snake(slot) + "_state"
}

// num renders n as a u64 operand, widening u8 values.
func num(n onchain.Node) (string, error) {
	s, err := render(n)
	if err != nil {
		return "", err
	}
	if onchain.NodeType(n) == ir.U8 {
		return "(" + s + " as u64)", nil
	}
	return s, nil
}

func (r exprRenderer) call(fn string, args ...onchain.Node) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := num(a)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return fmt.Sprintf("%s(%s)?", fn, strings.Join(parts, ", ")), nil
}

func (exprRenderer) VisitImm(n onchain.Imm) (string, error) {
	return fmt.Sprintf("%du64", n.Value), nil
}

func (exprRenderer) VisitBytes(n onchain.Bytes) (string, error) {
	return byteString(n.Value), nil
}

func (exprRenderer) VisitLoadArg(n onchain.LoadArg) (string, error) {
	return "args." + ident(n.Name), nil
}

func (exprRenderer) VisitLoadField(n onchain.LoadField) (string, error) {
	return stateVar(n.Slot) + "." + ident(n.Name), nil
}

func (exprRenderer) VisitLoadKey(n onchain.LoadKey) (string, error) {
	return "*" + ident(n.Slot) + ".key()", nil
}

func (exprRenderer) VisitLoadBump(n onchain.LoadBump) (string, error) {
	return snake(n.Slot) + "_bump", nil
}

func (r exprRenderer) VisitAdd(n onchain.CheckedAdd) (string, error) {
	return r.call("checked_add", n.Left, n.Right)
}

func (r exprRenderer) VisitSub(n onchain.CheckedSub) (string, error) {
	return r.call("checked_sub", n.Left, n.Right)
}

func (r exprRenderer) VisitMul(n onchain.CheckedMul) (string, error) {
	return r.call("checked_mul", n.Left, n.Right)
}

func (r exprRenderer) VisitDiv(n onchain.CheckedDiv) (string, error) {
	return r.call("checked_div", n.Left, n.Right)
}

func (exprRenderer) VisitMulDiv(n onchain.WideMulDiv) (string, error) {
	factors := make([]string, len(n.Factors))
	for i, f := range n.Factors {
		s, err := num(f)
		if err != nil {
			return "", err
		}
		factors[i] = s
	}
	d, err := num(n.Divisor)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("checked_mul_div_n(&[%s], %s)?", strings.Join(factors, ", "), d), nil
}

func (exprRenderer) VisitCompare(n onchain.Compare) (string, error) {
	operand := num
	if onchain.NodeType(n.Left) == ir.Pubkey {
		operand = render
	}
	l, err := operand(n.Left)
	if err != nil {
		return "", err
	}
	r, err := operand(n.Right)
	if err != nil {
		return "", err
	}
	return l + " == " + r, nil
}

func (exprRenderer) VisitSelect(n onchain.Select) (string, error) {
	c, err := render(n.Cond)
	if err != nil {
		return "", err
	}
	branch := render
	if onchain.NodeType(n) == ir.U64 {
		branch = num
	}
	t, err := branch(n.Then)
	if err != nil {
		return "", err
	}
	e, err := branch(n.Else)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("if %s { %s } else { %s }", c, t, e), nil
}

// valueAs renders n for storage into a field of type t.
func valueAs(n onchain.Node, t ir.ScalarType) (string, error) {
	switch t {
	case ir.U8:
		if imm, ok := n.(onchain.Imm); ok && imm.Value <= 0xff {
			return fmt.Sprintf("%du8", imm.Value), nil
		}
		s, err := render(n)
		if err != nil {
			return "", err
		}
		if onchain.NodeType(n) == ir.U8 {
			return s, nil
		}
		return fmt.Sprintf("u8::try_from(%s).map_err(|_| ProgramError::ArithmeticOverflow)?", s), nil
	case ir.U64:
		return num(n)
	}
	return render(n)
}

// seedList renders PDA seeds as byte slices. Numeric seeds need a named
// buffer to outlive the call, so they come back as let bindings to emit
// first.
func seedList(slot string, seeds []onchain.Node) (lets, refs []string, err error) {
	for i, s := range seeds {
		if b, ok := s.(onchain.Bytes); ok {
			refs = append(refs, byteString(b.Value))
			continue
		}
		v, err := render(s)
		if err != nil {
			return nil, nil, err
		}
		switch onchain.NodeType(s) {
		case ir.Pubkey:
			refs = append(refs, strings.TrimPrefix(v, "*")+".as_ref()")
		case ir.U8:
			buf := fmt.Sprintf("%s_seed_%d", snake(slot), i)
			lets = append(lets, fmt.Sprintf("let %s = [%s];", buf, v))
			refs = append(refs, "&"+buf)
		default:
			buf := fmt.Sprintf("%s_seed_%d", snake(slot), i)
			lets = append(lets, fmt.Sprintf("let %s = %s.to_le_bytes();", buf, v))
			refs = append(refs, "&"+buf)
		}
	}
	return lets, refs, nil
}

// byteString renders b as a Rust byte string literal.
func byteString(b []byte) string {
	var sb strings.Builder
	sb.WriteString(`b"`)
	for _, c := range b {
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
