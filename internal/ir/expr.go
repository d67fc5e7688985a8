package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is anything assignable to a state field: an expression, an account
// key, or a PDA bump.
type Value interface {
	valueNode()
}

// Expr is a pure expression over arguments, constants and state fields.
type Expr interface {
	Value
	exprNode()
}

// BinaryOp is an arithmetic or comparison operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "add"
	OpSub BinaryOp = "sub"
	OpMul BinaryOp = "mul"
	OpDiv BinaryOp = "div"
	OpEq  BinaryOp = "eq"
)

// Valid reports whether op is a known operator.
func (op BinaryOp) Valid() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpEq:
		return true
	}
	return false
}

// Const is a u64 literal.
type Const struct {
	Value uint64
}

// Arg reads an instruction or view argument.
type Arg struct {
	Name string
}

// FieldRef reads a field of the state held by an account slot.
type FieldRef struct {
	Account string
	Name    string
}

// Binary applies Op to two operands.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// If selects Then when Cond holds, else Else.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

// AccountRef is the public key of an account slot.
type AccountRef struct {
	Name string
}

// BumpRef is the bump seed of a PDA-bearing slot.
type BumpRef struct {
	Account string
}

func (Const) valueNode()      {}
func (Arg) valueNode()        {}
func (FieldRef) valueNode()   {}
func (Binary) valueNode()     {}
func (If) valueNode()         {}
func (AccountRef) valueNode() {}
func (BumpRef) valueNode()    {}

func (Const) exprNode()    {}
func (Arg) exprNode()      {}
func (FieldRef) exprNode() {}
func (Binary) exprNode()   {}
func (If) exprNode()       {}

// String renders the field as "account.name".
func (f FieldRef) String() string {
	return f.Account + "." + f.Name
}

func (c Const) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}{"const", strconv.FormatUint(c.Value, 10)})
}

func (a Arg) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}{"arg", a.Name})
}

func (f FieldRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Account string `json:"account"`
		Name    string `json:"name"`
	}{"field", f.Account, f.Name})
}

func (b Binary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  BinaryOp `json:"kind"`
		Left  Expr     `json:"left"`
		Right Expr     `json:"right"`
	}{b.Op, b.Left, b.Right})
}

func (i If) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Cond Expr   `json:"cond"`
		Then Expr   `json:"then"`
		Else Expr   `json:"else"`
	}{"if", i.Cond, i.Then, i.Else})
}

func (a AccountRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}{"account", a.Name})
}

func (b BumpRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string `json:"kind"`
		Account string `json:"account"`
	}{"bump", b.Account})
}

// rawNode is the union of all tagged node fields.
type rawNode struct {
	Kind    string          `json:"kind"`
	Value   json.RawMessage `json:"value"`
	Name    string          `json:"name"`
	Account string          `json:"account"`
	Left    json.RawMessage `json:"left"`
	Right   json.RawMessage `json:"right"`
	Cond    json.RawMessage `json:"cond"`
	Then    json.RawMessage `json:"then"`
	Else    json.RawMessage `json:"else"`
}

// DecodeExpr decodes a tagged expression node.
func DecodeExpr(raw json.RawMessage) (Expr, error) {
	if isNull(raw) {
		return nil, fmt.Errorf("missing expression")
	}
	var n rawNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}
	switch n.Kind {
	case "const":
		v, err := decodeU64(n.Value)
		if err != nil {
			return nil, fmt.Errorf("const: %w", err)
		}
		return Const{Value: v}, nil
	case "arg":
		return Arg{Name: n.Name}, nil
	case "field":
		return FieldRef{Account: n.Account, Name: n.Name}, nil
	case string(OpAdd), string(OpSub), string(OpMul), string(OpDiv), string(OpEq):
		left, err := DecodeExpr(n.Left)
		if err != nil {
			return nil, fmt.Errorf("%s.left: %w", n.Kind, err)
		}
		right, err := DecodeExpr(n.Right)
		if err != nil {
			return nil, fmt.Errorf("%s.right: %w", n.Kind, err)
		}
		return Binary{Op: BinaryOp(n.Kind), Left: left, Right: right}, nil
	case "if":
		cond, err := DecodeExpr(n.Cond)
		if err != nil {
			return nil, fmt.Errorf("if.cond: %w", err)
		}
		then, err := DecodeExpr(n.Then)
		if err != nil {
			return nil, fmt.Errorf("if.then: %w", err)
		}
		els, err := DecodeExpr(n.Else)
		if err != nil {
			return nil, fmt.Errorf("if.else: %w", err)
		}
		return If{Cond: cond, Then: then, Else: els}, nil
	case "":
		return nil, fmt.Errorf("missing kind in %s", truncate(raw))
	default:
		return nil, fmt.Errorf("unknown expression kind %q", n.Kind)
	}
}

// DecodeValue decodes an expression, account reference or bump reference.
func DecodeValue(raw json.RawMessage) (Value, error) {
	kind, err := kindOf(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "account":
		var n rawNode
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return AccountRef{Name: n.Name}, nil
	case "bump":
		var n rawNode
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return BumpRef{Account: n.Account}, nil
	default:
		return DecodeExpr(raw)
	}
}

// ExprVisitor has one method per expression variant.
type ExprVisitor[T any] interface {
	VisitConst(Const) (T, error)
	VisitArg(Arg) (T, error)
	VisitField(FieldRef) (T, error)
	VisitBinary(Binary) (T, error)
	VisitIf(If) (T, error)
}

// ValueVisitor extends ExprVisitor with the non-expression value variants.
type ValueVisitor[T any] interface {
	ExprVisitor[T]
	VisitAccount(AccountRef) (T, error)
	VisitBump(BumpRef) (T, error)
}

// WalkExpr dispatches e to the matching visitor method.
func WalkExpr[T any](e Expr, v ExprVisitor[T]) (T, error) {
	switch x := e.(type) {
	case Const:
		return v.VisitConst(x)
	case Arg:
		return v.VisitArg(x)
	case FieldRef:
		return v.VisitField(x)
	case Binary:
		return v.VisitBinary(x)
	case If:
		return v.VisitIf(x)
	default:
		var zero T
		return zero, fmt.Errorf("unknown expression %T", e)
	}
}

// WalkValue dispatches val to the matching visitor method.
func WalkValue[T any](val Value, v ValueVisitor[T]) (T, error) {
	switch x := val.(type) {
	case AccountRef:
		return v.VisitAccount(x)
	case BumpRef:
		return v.VisitBump(x)
	case Expr:
		return WalkExpr[T](x, v)
	default:
		var zero T
		return zero, fmt.Errorf("unknown value %T", val)
	}
}
