package onchain

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
)

// Record holds decoded field values: uint8 for u8, uint64 for u64 and
// solana.PublicKey for pubkey.
type Record map[string]any

// LayoutKind selects the error a short buffer reports.
type LayoutKind int

const (
	// StateLayout describes persisted account data.
	StateLayout LayoutKind = iota
	// ArgsLayout describes instruction arguments after the discriminator.
	ArgsLayout
)

// LayoutField is one fixed-width field at a byte offset.
type LayoutField struct {
	Name   string
	Type   ir.ScalarType
	Offset int
}

// Layout is the packed little-endian encoding of a schema: fields in
// declaration order, no padding, no header.
type Layout struct {
	Name   string
	Kind   LayoutKind
	Fields []LayoutField
	Size   int
}

// NewLayout computes field offsets for schema.
func NewLayout(name string, kind LayoutKind, schema ir.Schema) *Layout {
	l := &Layout{Name: name, Kind: kind, Fields: make([]LayoutField, 0, len(schema))}
	for _, f := range schema {
		l.Fields = append(l.Fields, LayoutField{Name: f.Name, Type: f.Type, Offset: l.Size})
		l.Size += f.Type.Width()
	}
	return l
}

// Field finds a field by name.
func (l *Layout) Field(name string) (LayoutField, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return LayoutField{}, false
}

func (l *Layout) shortError() ProgramError {
	if l.Kind == ArgsLayout {
		return ErrInvalidInstructionData
	}
	return ErrAccountDataTooSmall
}

// Decode parses the first Size bytes of buf. Trailing bytes are ignored.
func (l *Layout) Decode(buf []byte) (Record, error) {
	if len(buf) < l.Size {
		return nil, l.shortError()
	}
	r := make(Record, len(l.Fields))
	for _, f := range l.Fields {
		b := buf[f.Offset:]
		switch f.Type {
		case ir.U8:
			r[f.Name] = b[0]
		case ir.U64:
			r[f.Name] = binary.LittleEndian.Uint64(b)
		case ir.Pubkey:
			var k solana.PublicKey
			copy(k[:], b)
			r[f.Name] = k
		default:
			return nil, fmt.Errorf("%s.%s: unsupported type %q", l.Name, f.Name, f.Type)
		}
	}
	return r, nil
}

// Encode serializes r. Every field must be present with its exact Go type.
func (l *Layout) Encode(r Record) ([]byte, error) {
	buf := make([]byte, l.Size)
	if err := l.EncodeInto(buf, r); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto serializes r into the first Size bytes of buf.
func (l *Layout) EncodeInto(buf []byte, r Record) error {
	if len(buf) < l.Size {
		return l.shortError()
	}
	for _, f := range l.Fields {
		v, ok := r[f.Name]
		if !ok {
			return fmt.Errorf("%s: missing field %q", l.Name, f.Name)
		}
		b := buf[f.Offset:]
		switch x := v.(type) {
		case uint8:
			if f.Type != ir.U8 {
				return typeMismatch(l, f, v)
			}
			b[0] = x
		case uint64:
			if f.Type != ir.U64 {
				return typeMismatch(l, f, v)
			}
			binary.LittleEndian.PutUint64(b, x)
		case solana.PublicKey:
			if f.Type != ir.Pubkey {
				return typeMismatch(l, f, v)
			}
			copy(b, x[:])
		default:
			return typeMismatch(l, f, v)
		}
	}
	return nil
}

func typeMismatch(l *Layout, f LayoutField, v any) error {
	return fmt.Errorf("%s.%s: cannot encode %T as %s", l.Name, f.Name, v, f.Type)
}

// Coerce converts an evaluated value to the Go type of t. Numeric values
// narrow to u8 with an overflow check.
func Coerce(t ir.ScalarType, v any) (any, error) {
	switch t {
	case ir.U8:
		n, err := AsU64(v)
		if err != nil {
			return nil, err
		}
		if n > math.MaxUint8 {
			return nil, ErrArithmeticOverflow
		}
		return uint8(n), nil
	case ir.U64:
		return AsU64(v)
	case ir.Pubkey:
		k, ok := v.(solana.PublicKey)
		if !ok {
			return nil, fmt.Errorf("expected pubkey, got %T", v)
		}
		return k, nil
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}

// AsU64 widens a numeric value.
func AsU64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint8:
		return uint64(x), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
