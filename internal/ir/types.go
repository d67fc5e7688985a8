package ir

import (
	"encoding/json"
	"fmt"
)

// ScalarType is a fixed-width wire type.
type ScalarType string

const (
	U8     ScalarType = "u8"
	U64    ScalarType = "u64"
	Pubkey ScalarType = "pubkey"

	// Bool is produced by eq and consumed by if. It never appears in a schema.
	Bool ScalarType = "bool"
)

// Width returns the encoded size in bytes, or 0 for non-schema types.
func (t ScalarType) Width() int {
	switch t {
	case U8:
		return 1
	case U64:
		return 8
	case Pubkey:
		return 32
	default:
		return 0
	}
}

// Valid reports whether t may appear in a schema.
func (t ScalarType) Valid() bool {
	return t.Width() > 0
}

// Numeric reports whether t participates in arithmetic.
func (t ScalarType) Numeric() bool {
	return t == U8 || t == U64
}

// ParseScalarType parses a schema type name.
func ParseScalarType(s string) (ScalarType, error) {
	t := ScalarType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unsupported scalar type %q (expected u8, u64 or pubkey)", s)
	}
	return t, nil
}

// Field is one named, typed entry of a Schema.
type Field struct {
	Name string
	Type ScalarType
}

// Schema is an ordered list of fields. Order fixes the byte layout.
// It serializes as a JSON object whose key order is the field order.
type Schema []Field

// Width returns the sum of all field widths.
func (s Schema) Width() int {
	total := 0
	for _, f := range s {
		total += f.Type.Width()
	}
	return total
}

// Lookup finds a field by name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns field names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

func (s Schema) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(s), func(i int) (string, any) {
		return s[i].Name, s[i].Type
	})
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var out Schema
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		var t ScalarType
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("schema field %q: %w", key, err)
		}
		out = append(out, Field{Name: key, Type: t})
		return nil
	})
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// ReturnType is the type of a view return value: a ScalarType or Ratio.
type ReturnType string

// Ratio is a read-only computed fraction that is never persisted.
const Ratio ReturnType = "ratio"

// Scalar returns the ScalarType for non-ratio returns.
func (t ReturnType) Scalar() (ScalarType, bool) {
	if t == Ratio {
		return "", false
	}
	st := ScalarType(t)
	return st, st.Valid()
}
