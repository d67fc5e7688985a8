package ir

import (
	"encoding/json"
	"fmt"
)

// OpKind tags an instruction operation.
type OpKind string

const (
	OpTokenTransfer OpKind = "token.transfer"
	OpTokenMintTo   OpKind = "token.mintTo"
	OpTokenBurn     OpKind = "token.burn"
	OpStateInit     OpKind = "state.init"
	OpStateUpdate   OpKind = "state.update"
	OpEvent         OpKind = "event"
)

// Op is one step of an instruction's effect, executed in declaration order.
type Op interface {
	Kind() OpKind
}

// TokenTransfer moves tokens between two token accounts.
// Signer, when set, names the PDA slot whose seeds sign the CPI.
type TokenTransfer struct {
	From      string
	To        string
	Authority string
	Amount    Expr
	Program   string
	Signer    string
}

// TokenMintTo mints new tokens into a token account.
type TokenMintTo struct {
	Mint      string
	To        string
	Authority string
	Amount    Expr
	Program   string
	Signer    string
}

// TokenBurn destroys tokens held by a token account.
type TokenBurn struct {
	Mint      string
	From      string
	Authority string
	Amount    Expr
	Program   string
	Signer    string
}

// Assignment sets one state field to a value.
type Assignment struct {
	Name  string
	Value Value
}

// Assignments is an ordered field-to-value map.
type Assignments []Assignment

// StateInit creates and fully populates a state account.
type StateInit struct {
	Account string
	Fields  Assignments
}

// Update sets one state field to an expression.
type Update struct {
	Name string
	Expr Expr
}

// Updates is an ordered field-to-expression map.
type Updates []Update

// StateUpdate rewrites a subset of a state account's fields.
// Every expression reads the pre-update state.
type StateUpdate struct {
	Account string
	Fields  Updates
}

// Event logs a named record of values.
type Event struct {
	Name string
	Data Assignments
}

func (TokenTransfer) Kind() OpKind { return OpTokenTransfer }
func (TokenMintTo) Kind() OpKind   { return OpTokenMintTo }
func (TokenBurn) Kind() OpKind     { return OpTokenBurn }
func (StateInit) Kind() OpKind     { return OpStateInit }
func (StateUpdate) Kind() OpKind   { return OpStateUpdate }
func (Event) Kind() OpKind         { return OpEvent }

// Names returns the assigned field names in order.
func (a Assignments) Names() []string {
	names := make([]string, len(a))
	for i, f := range a {
		names[i] = f.Name
	}
	return names
}

// Names returns the updated field names in order.
func (u Updates) Names() []string {
	names := make([]string, len(u))
	for i, f := range u {
		names[i] = f.Name
	}
	return names
}

func (a Assignments) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(a), func(i int) (string, any) {
		return a[i].Name, a[i].Value
	})
}

func (a *Assignments) UnmarshalJSON(data []byte) error {
	var out Assignments
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		v, err := DecodeValue(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, Assignment{Name: key, Value: v})
		return nil
	})
	if err != nil {
		return err
	}
	*a = out
	return nil
}

func (u Updates) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(u), func(i int) (string, any) {
		return u[i].Name, u[i].Expr
	})
}

func (u *Updates) UnmarshalJSON(data []byte) error {
	var out Updates
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		e, err := DecodeExpr(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, Update{Name: key, Expr: e})
		return nil
	})
	if err != nil {
		return err
	}
	*u = out
	return nil
}

type tokenJSON struct {
	Op        OpKind          `json:"op"`
	Mint      string          `json:"mint,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Authority string          `json:"authority"`
	Amount    json.RawMessage `json:"amount"`
	Program   string          `json:"program"`
	Signer    string          `json:"signer,omitempty"`
}

func marshalToken(op OpKind, mint, from, to, authority string, amount Expr, program, signer string) ([]byte, error) {
	amt, err := json.Marshal(amount)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tokenJSON{
		Op:        op,
		Mint:      mint,
		From:      from,
		To:        to,
		Authority: authority,
		Amount:    amt,
		Program:   program,
		Signer:    signer,
	})
}

func (o TokenTransfer) MarshalJSON() ([]byte, error) {
	return marshalToken(OpTokenTransfer, "", o.From, o.To, o.Authority, o.Amount, o.Program, o.Signer)
}

func (o TokenMintTo) MarshalJSON() ([]byte, error) {
	return marshalToken(OpTokenMintTo, o.Mint, "", o.To, o.Authority, o.Amount, o.Program, o.Signer)
}

func (o TokenBurn) MarshalJSON() ([]byte, error) {
	return marshalToken(OpTokenBurn, o.Mint, o.From, "", o.Authority, o.Amount, o.Program, o.Signer)
}

func (o StateInit) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op      OpKind      `json:"op"`
		Account string      `json:"account"`
		Fields  Assignments `json:"fields"`
	}{OpStateInit, o.Account, o.Fields})
}

func (o StateUpdate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op      OpKind  `json:"op"`
		Account string  `json:"account"`
		Fields  Updates `json:"fields"`
	}{OpStateUpdate, o.Account, o.Fields})
}

func (o Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op   OpKind      `json:"op"`
		Name string      `json:"name"`
		Data Assignments `json:"data"`
	}{OpEvent, o.Name, o.Data})
}

// DecodeOp decodes a tagged operation.
func DecodeOp(raw json.RawMessage) (Op, error) {
	var head struct {
		Op OpKind `json:"op"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("op: %w", err)
	}
	switch head.Op {
	case OpTokenTransfer, OpTokenMintTo, OpTokenBurn:
		var t tokenJSON
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("%s: %w", head.Op, err)
		}
		amount, err := DecodeExpr(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s.amount: %w", head.Op, err)
		}
		switch head.Op {
		case OpTokenTransfer:
			return TokenTransfer{From: t.From, To: t.To, Authority: t.Authority, Amount: amount, Program: t.Program, Signer: t.Signer}, nil
		case OpTokenMintTo:
			return TokenMintTo{Mint: t.Mint, To: t.To, Authority: t.Authority, Amount: amount, Program: t.Program, Signer: t.Signer}, nil
		default:
			return TokenBurn{Mint: t.Mint, From: t.From, Authority: t.Authority, Amount: amount, Program: t.Program, Signer: t.Signer}, nil
		}
	case OpStateInit:
		var o struct {
			Account string      `json:"account"`
			Fields  Assignments `json:"fields"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("%s: %w", head.Op, err)
		}
		return StateInit{Account: o.Account, Fields: o.Fields}, nil
	case OpStateUpdate:
		var o struct {
			Account string  `json:"account"`
			Fields  Updates `json:"fields"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("%s: %w", head.Op, err)
		}
		return StateUpdate{Account: o.Account, Fields: o.Fields}, nil
	case OpEvent:
		var o struct {
			Name string      `json:"name"`
			Data Assignments `json:"data"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("%s: %w", head.Op, err)
		}
		return Event{Name: o.Name, Data: o.Data}, nil
	case "":
		return nil, fmt.Errorf("missing op in %s", truncate(raw))
	default:
		return nil, fmt.Errorf("unknown op %q", head.Op)
	}
}

// OpVisitor has one method per operation variant.
type OpVisitor[T any] interface {
	VisitTransfer(TokenTransfer) (T, error)
	VisitMintTo(TokenMintTo) (T, error)
	VisitBurn(TokenBurn) (T, error)
	VisitInit(StateInit) (T, error)
	VisitUpdate(StateUpdate) (T, error)
	VisitEvent(Event) (T, error)
}

// WalkOp dispatches op to the matching visitor method.
func WalkOp[T any](op Op, v OpVisitor[T]) (T, error) {
	switch x := op.(type) {
	case TokenTransfer:
		return v.VisitTransfer(x)
	case TokenMintTo:
		return v.VisitMintTo(x)
	case TokenBurn:
		return v.VisitBurn(x)
	case StateInit:
		return v.VisitInit(x)
	case StateUpdate:
		return v.VisitUpdate(x)
	case Event:
		return v.VisitEvent(x)
	default:
		var zero T
		return zero, fmt.Errorf("unknown op %T", op)
	}
}

// TokenOp is the common view of the three token CPIs.
type TokenOp struct {
	Kind      OpKind
	Mint      string
	From      string
	To        string
	Authority string
	Amount    Expr
	Program   string
	Signer    string
}

// AsTokenOp returns the token view of op, if it is a token CPI.
func AsTokenOp(op Op) (TokenOp, bool) {
	switch x := op.(type) {
	case TokenTransfer:
		return TokenOp{OpTokenTransfer, "", x.From, x.To, x.Authority, x.Amount, x.Program, x.Signer}, true
	case TokenMintTo:
		return TokenOp{OpTokenMintTo, x.Mint, "", x.To, x.Authority, x.Amount, x.Program, x.Signer}, true
	case TokenBurn:
		return TokenOp{OpTokenBurn, x.Mint, x.From, "", x.Authority, x.Amount, x.Program, x.Signer}, true
	}
	return TokenOp{}, false
}

// Slots returns the account slots a token op touches, in CPI order.
func (t TokenOp) Slots() []string {
	switch t.Kind {
	case OpTokenTransfer:
		return []string{t.From, t.To, t.Authority}
	case OpTokenMintTo:
		return []string{t.Mint, t.To, t.Authority}
	default:
		return []string{t.From, t.Mint, t.Authority}
	}
}
