package ir

import (
	"encoding/json"
	"fmt"
)

// Seed is one component of a PDA derivation.
type Seed interface {
	seedNode()
}

// AddressRef names where an account's expected address comes from.
type AddressRef interface {
	addressNode()
}

// SeedLiteral is a UTF-8 string seed. It serializes as a bare JSON string.
type SeedLiteral struct {
	Value string
}

func (SeedLiteral) seedNode() {}
func (Arg) seedNode()         {}
func (AccountRef) seedNode()  {}
func (FieldRef) seedNode()    {}

func (Arg) addressNode()        {}
func (AccountRef) addressNode() {}
func (FieldRef) addressNode()   {}

func (s SeedLiteral) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value)
}

// Pda is an ordered list of seeds.
type Pda struct {
	Seeds []Seed
}

// Equal reports whether both derivations use identical seeds.
func (p *Pda) Equal(o *Pda) bool {
	if p == nil || o == nil {
		return p == o
	}
	if len(p.Seeds) != len(o.Seeds) {
		return false
	}
	for i := range p.Seeds {
		if p.Seeds[i] != o.Seeds[i] {
			return false
		}
	}
	return true
}

func (p Pda) MarshalJSON() ([]byte, error) {
	seeds := p.Seeds
	if seeds == nil {
		seeds = []Seed{}
	}
	return json.Marshal(struct {
		Kind  string `json:"kind"`
		Seeds []Seed `json:"seeds"`
	}{"pda", seeds})
}

func (p *Pda) UnmarshalJSON(data []byte) error {
	var aux struct {
		Kind  string            `json:"kind"`
		Seeds []json.RawMessage `json:"seeds"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Kind != "pda" {
		return fmt.Errorf("expected pda, got kind %q", aux.Kind)
	}
	seeds := make([]Seed, 0, len(aux.Seeds))
	for i, raw := range aux.Seeds {
		s, err := DecodeSeed(raw)
		if err != nil {
			return fmt.Errorf("seeds[%d]: %w", i, err)
		}
		seeds = append(seeds, s)
	}
	p.Seeds = seeds
	return nil
}

// DecodeSeed decodes a bare string literal or a tagged arg, account or
// field reference.
func DecodeSeed(raw json.RawMessage) (Seed, error) {
	var lit string
	if err := json.Unmarshal(raw, &lit); err == nil {
		return SeedLiteral{Value: lit}, nil
	}
	var n rawNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	switch n.Kind {
	case "arg":
		return Arg{Name: n.Name}, nil
	case "account":
		return AccountRef{Name: n.Name}, nil
	case "field":
		return FieldRef{Account: n.Account, Name: n.Name}, nil
	default:
		return nil, fmt.Errorf("unsupported seed kind %q", n.Kind)
	}
}

// DecodeAddress decodes a tagged arg, account or field reference.
// A JSON null decodes to a nil AddressRef.
func DecodeAddress(raw json.RawMessage) (AddressRef, error) {
	if isNull(raw) {
		return nil, nil
	}
	var n rawNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	switch n.Kind {
	case "arg":
		return Arg{Name: n.Name}, nil
	case "account":
		return AccountRef{Name: n.Name}, nil
	case "field":
		return FieldRef{Account: n.Account, Name: n.Name}, nil
	default:
		return nil, fmt.Errorf("unsupported address kind %q", n.Kind)
	}
}

// SeedVisitor has one method per seed variant.
type SeedVisitor[T any] interface {
	VisitLiteral(SeedLiteral) (T, error)
	VisitArg(Arg) (T, error)
	VisitAccount(AccountRef) (T, error)
	VisitField(FieldRef) (T, error)
}

// AddressVisitor has one method per address variant.
type AddressVisitor[T any] interface {
	VisitArg(Arg) (T, error)
	VisitAccount(AccountRef) (T, error)
	VisitField(FieldRef) (T, error)
}

// WalkSeed dispatches s to the matching visitor method.
func WalkSeed[T any](s Seed, v SeedVisitor[T]) (T, error) {
	switch x := s.(type) {
	case SeedLiteral:
		return v.VisitLiteral(x)
	case Arg:
		return v.VisitArg(x)
	case AccountRef:
		return v.VisitAccount(x)
	case FieldRef:
		return v.VisitField(x)
	default:
		var zero T
		return zero, fmt.Errorf("unknown seed %T", s)
	}
}

// WalkAddress dispatches a to the matching visitor method.
func WalkAddress[T any](a AddressRef, v AddressVisitor[T]) (T, error) {
	switch x := a.(type) {
	case Arg:
		return v.VisitArg(x)
	case AccountRef:
		return v.VisitAccount(x)
	case FieldRef:
		return v.VisitField(x)
	default:
		var zero T
		return zero, fmt.Errorf("unknown address %T", a)
	}
}
