package ir

import (
	"encoding/json"
	"fmt"
)

// AccountDef describes a persisted state account type.
type AccountDef struct {
	Name   string `json:"name"`
	Schema Schema `json:"schema"`
	Pda    *Pda   `json:"pda,omitempty"`
}

// AccountEntry binds an account table key to its definition.
type AccountEntry struct {
	Key string
	Def AccountDef
}

// AccountTable is the ordered table of state account types, keyed by the
// name instruction slots use to refer to them.
type AccountTable []AccountEntry

// Lookup finds an account definition by key.
func (t AccountTable) Lookup(key string) (AccountDef, bool) {
	for _, e := range t {
		if e.Key == key {
			return e.Def, true
		}
	}
	return AccountDef{}, false
}

// Keys returns the table keys in order.
func (t AccountTable) Keys() []string {
	keys := make([]string, len(t))
	for i, e := range t {
		keys[i] = e.Key
	}
	return keys
}

func (t AccountTable) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(t), func(i int) (string, any) {
		return t[i].Key, t[i].Def
	})
}

func (t *AccountTable) UnmarshalJSON(data []byte) error {
	var out AccountTable
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		var def AccountDef
		if err := json.Unmarshal(raw, &def); err != nil {
			return fmt.Errorf("account %q: %w", key, err)
		}
		out = append(out, AccountEntry{Key: key, Def: def})
		return nil
	})
	if err != nil {
		return err
	}
	*t = out
	return nil
}

// Role classifies what an instruction account slot holds.
type Role string

const (
	RoleAccount Role = "account"
	RoleMint    Role = "mint"
	RoleATA     Role = "ata"
	RoleProgram Role = "program"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAccount, RoleMint, RoleATA, RoleProgram:
		return true
	}
	return false
}

// AccountMeta is one account slot of an instruction.
//
// Address pins the expected key. Pda requires the key to equal the derived
// address. Owner and Mint describe associated token accounts.
type AccountMeta struct {
	Name     string
	Signer   bool
	Writable bool
	Role     Role
	Address  AddressRef
	Pda      *Pda
	Owner    AddressRef
	Mint     AddressRef
}

type accountMetaJSON struct {
	Name     string          `json:"name"`
	Signer   bool            `json:"signer,omitempty"`
	Writable bool            `json:"writable,omitempty"`
	Role     Role            `json:"role"`
	Address  json.RawMessage `json:"address,omitempty"`
	Pda      *Pda            `json:"pda,omitempty"`
	Owner    json.RawMessage `json:"owner,omitempty"`
	Mint     json.RawMessage `json:"mint,omitempty"`
}

func marshalAddress(a AddressRef) (json.RawMessage, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (m AccountMeta) MarshalJSON() ([]byte, error) {
	out := accountMetaJSON{
		Name:     m.Name,
		Signer:   m.Signer,
		Writable: m.Writable,
		Role:     m.Role,
		Pda:      m.Pda,
	}
	var err error
	if out.Address, err = marshalAddress(m.Address); err != nil {
		return nil, err
	}
	if out.Owner, err = marshalAddress(m.Owner); err != nil {
		return nil, err
	}
	if out.Mint, err = marshalAddress(m.Mint); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (m *AccountMeta) UnmarshalJSON(data []byte) error {
	var aux accountMetaJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	out := AccountMeta{
		Name:     aux.Name,
		Signer:   aux.Signer,
		Writable: aux.Writable,
		Role:     aux.Role,
		Pda:      aux.Pda,
	}
	if out.Role == "" {
		out.Role = RoleAccount
	}
	var err error
	if out.Address, err = DecodeAddress(aux.Address); err != nil {
		return fmt.Errorf("%s.address: %w", aux.Name, err)
	}
	if out.Owner, err = DecodeAddress(aux.Owner); err != nil {
		return fmt.Errorf("%s.owner: %w", aux.Name, err)
	}
	if out.Mint, err = DecodeAddress(aux.Mint); err != nil {
		return fmt.Errorf("%s.mint: %w", aux.Name, err)
	}
	*m = out
	return nil
}

// IxDef is an instruction as declared, before a discriminator is assigned.
type IxDef struct {
	Name     string        `json:"name"`
	Args     Schema        `json:"args"`
	Accounts []AccountMeta `json:"accounts"`
	Ops      []Op          `json:"ops"`
}

// Slot finds an account slot by name.
func (d *IxDef) Slot(name string) (AccountMeta, int, bool) {
	for i, m := range d.Accounts {
		if m.Name == name {
			return m, i, true
		}
	}
	return AccountMeta{}, -1, false
}

func (d *IxDef) UnmarshalJSON(data []byte) error {
	var aux struct {
		Name     string            `json:"name"`
		Args     Schema            `json:"args"`
		Accounts []AccountMeta     `json:"accounts"`
		Ops      []json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ops := make([]Op, 0, len(aux.Ops))
	for i, raw := range aux.Ops {
		op, err := DecodeOp(raw)
		if err != nil {
			return fmt.Errorf("%s.ops[%d]: %w", aux.Name, i, err)
		}
		ops = append(ops, op)
	}
	*d = IxDef{Name: aux.Name, Args: aux.Args, Accounts: aux.Accounts, Ops: ops}
	return nil
}

// Instruction is an IxDef with its assigned one-byte discriminator.
type Instruction struct {
	Discriminator int `json:"discriminator"`
	IxDef
}

func (ix *Instruction) UnmarshalJSON(data []byte) error {
	var head struct {
		Discriminator *int `json:"discriminator"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.Discriminator == nil {
		return fmt.Errorf("instruction missing discriminator")
	}
	var def IxDef
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*ix = Instruction{Discriminator: *head.Discriminator, IxDef: def}
	return nil
}

// ReturnField is one named view result. Ratio returns divide Expr by Den
// and yield 1 when Den is zero.
type ReturnField struct {
	Name string
	Type ReturnType
	Expr Expr
	Den  Expr
}

// Returns is the ordered set of view results.
type Returns []ReturnField

type returnJSON struct {
	Type ReturnType      `json:"type"`
	Expr json.RawMessage `json:"expr,omitempty"`
	Den  json.RawMessage `json:"den,omitempty"`
}

func (r Returns) MarshalJSON() ([]byte, error) {
	entries := make([]returnJSON, len(r))
	for i, f := range r {
		entries[i].Type = f.Type
		if f.Expr != nil {
			b, err := json.Marshal(f.Expr)
			if err != nil {
				return nil, err
			}
			entries[i].Expr = b
		}
		if f.Den != nil {
			b, err := json.Marshal(f.Den)
			if err != nil {
				return nil, err
			}
			entries[i].Den = b
		}
	}
	return marshalOrdered(len(r), func(i int) (string, any) {
		return r[i].Name, entries[i]
	})
}

func (r *Returns) UnmarshalJSON(data []byte) error {
	var out Returns
	err := unmarshalOrdered(data, func(key string, raw json.RawMessage) error {
		var aux returnJSON
		if err := json.Unmarshal(raw, &aux); err != nil {
			return fmt.Errorf("return %q: %w", key, err)
		}
		f := ReturnField{Name: key, Type: aux.Type}
		if !isNull(aux.Expr) {
			e, err := DecodeExpr(aux.Expr)
			if err != nil {
				return fmt.Errorf("return %q: %w", key, err)
			}
			f.Expr = e
		}
		if !isNull(aux.Den) {
			e, err := DecodeExpr(aux.Den)
			if err != nil {
				return fmt.Errorf("return %q.den: %w", key, err)
			}
			f.Den = e
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return err
	}
	*r = out
	return nil
}

// ViewDef is a read-only query over one state account.
type ViewDef struct {
	Name    string  `json:"name"`
	Args    Schema  `json:"args"`
	Returns Returns `json:"returns"`
}

// Document is the complete IR for one program.
type Document struct {
	IRVersion      string        `json:"irVersion"`
	Name           string        `json:"name"`
	ProgramAddress string        `json:"programAddress"`
	Accounts       AccountTable  `json:"accounts"`
	Instructions   []Instruction `json:"instructions"`
	Views          []ViewDef     `json:"views"`
}

// Instruction finds an instruction by name.
func (d *Document) Instruction(name string) (*Instruction, bool) {
	for i := range d.Instructions {
		if d.Instructions[i].Name == name {
			return &d.Instructions[i], true
		}
	}
	return nil, false
}

// View finds a view by name.
func (d *Document) View(name string) (*ViewDef, bool) {
	for i := range d.Views {
		if d.Views[i].Name == name {
			return &d.Views[i], true
		}
	}
	return nil, false
}

// SlotState returns the account definition persisted in a slot: the table
// entry whose key equals the slot name.
func (d *Document) SlotState(slot string) (AccountDef, bool) {
	return d.Accounts.Lookup(slot)
}

// MarshalDocument renders doc as indented JSON with a trailing newline.
func MarshalDocument(doc *Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// UnmarshalDocument parses an IR document and checks its version.
func UnmarshalDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse IR: %w", err)
	}
	if doc.IRVersion != IRVersion {
		return nil, fmt.Errorf("unsupported IR version %q (expected %q)", doc.IRVersion, IRVersion)
	}
	return &doc, nil
}
