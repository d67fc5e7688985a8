package clientgen

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
)

// IDLSpec is the version of the IDL document format.
const IDLSpec = "0.1.0"

// IDL is the interface description of a program.
type IDL struct {
	Address      string           `json:"address"`
	Metadata     IDLMetadata      `json:"metadata"`
	Instructions []IDLInstruction `json:"instructions"`
	Accounts     []IDLAccount     `json:"accounts"`
	PDAs         []IDLPda         `json:"pdas"`
	Views        []IDLView        `json:"views"`
	Errors       []IDLError       `json:"errors"`
}

type IDLMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Spec    string `json:"spec"`
	IRHash  string `json:"irHash"`
}

type IDLField struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Offset int    `json:"offset"`
}

type IDLInstruction struct {
	Name          string           `json:"name"`
	Discriminator []int            `json:"discriminator"`
	Accounts      []IDLAccountMeta `json:"accounts"`
	Args          []IDLField       `json:"args"`
}

type IDLAccountMeta struct {
	Name     string    `json:"name"`
	Writable bool      `json:"writable,omitempty"`
	Signer   bool      `json:"signer,omitempty"`
	Pda      *IDLSeeds `json:"pda,omitempty"`
}

type IDLSeeds struct {
	Seeds []IDLSeed `json:"seeds"`
}

// IDLSeed is a const seed with its bytes, an arg seed or an account seed.
// Account seeds name a slot key or a slot.field state read.
type IDLSeed struct {
	Kind  string `json:"kind"`
	Value []int  `json:"value,omitempty"`
	Path  string `json:"path,omitempty"`
}

type IDLAccount struct {
	Name   string     `json:"name"`
	Key    string     `json:"key"`
	Size   int        `json:"size"`
	Fields []IDLField `json:"fields"`
}

type IDLPda struct {
	Name string `json:"name"`
	IDLSeeds
}

type IDLReturn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type IDLView struct {
	Name    string      `json:"name"`
	Account string      `json:"account,omitempty"`
	Returns []IDLReturn `json:"returns"`
}

type IDLError struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

type idlConfig struct {
	version string
}

// IDLOption configures RenderIDL.
type IDLOption func(*idlConfig)

// WithIDLVersion sets metadata.version.
func WithIDLVersion(v string) IDLOption {
	return func(c *idlConfig) { c.version = v }
}

// BuildIDL assembles the interface description of the bindings.
func BuildIDL(b *Bindings, opts ...IDLOption) (*IDL, error) {
	cfg := idlConfig{version: "0.1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}

	idl := &IDL{
		Address: b.Program.Address.String(),
		Metadata: IDLMetadata{
			Name:    b.Program.Name,
			Version: cfg.version,
			Spec:    IDLSpec,
			IRHash:  b.Program.IRHash,
		},
		Instructions: []IDLInstruction{},
		Accounts:     []IDLAccount{},
		PDAs:         []IDLPda{},
		Views:        []IDLView{},
	}

	for _, h := range b.Program.Handlers {
		ix := IDLInstruction{
			Name:          h.Name,
			Discriminator: []int{int(h.Discriminator)},
			Accounts:      make([]IDLAccountMeta, 0, len(h.Slots)),
			Args:          idlFields(h.Args),
		}
		for _, s := range h.Slots {
			m := IDLAccountMeta{Name: s.Name, Writable: s.Writable, Signer: s.Signer}
			if s.Pda {
				p, ok := b.PDA(s.Name)
				if !ok {
					return nil, fmt.Errorf("%s: slot %s: missing pda", h.Name, s.Name)
				}
				seeds, err := idlSeeds(p)
				if err != nil {
					return nil, err
				}
				m.Pda = &seeds
			}
			ix.Accounts = append(ix.Accounts, m)
		}
		idl.Instructions = append(idl.Instructions, ix)
	}

	for _, s := range b.Program.States {
		idl.Accounts = append(idl.Accounts, IDLAccount{
			Name:   s.Layout.Name,
			Key:    s.Key,
			Size:   s.Layout.Size,
			Fields: idlFields(s.Layout),
		})
	}

	for _, p := range b.pdas {
		seeds, err := idlSeeds(p)
		if err != nil {
			return nil, err
		}
		idl.PDAs = append(idl.PDAs, IDLPda{Name: p.Name, IDLSeeds: seeds})
	}

	for _, v := range b.Doc.Views {
		iv := IDLView{Name: v.Name, Returns: make([]IDLReturn, len(v.Returns))}
		iv.Account, _ = b.ViewAccount(v.Name)
		for i, r := range v.Returns {
			iv.Returns[i] = IDLReturn{Name: r.Name, Type: string(r.Type)}
		}
		idl.Views = append(idl.Views, iv)
	}

	code, _ := onchain.ErrDivisionByZero.Custom()
	idl.Errors = []IDLError{{Code: code, Name: onchain.ErrDivisionByZero.Name(), Msg: "Division by zero"}}
	return idl, nil
}

// RenderIDL renders the interface description as indented JSON.
func RenderIDL(b *Bindings, opts ...IDLOption) ([]byte, error) {
	idl, err := BuildIDL(b, opts...)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(idl, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func idlFields(l *onchain.Layout) []IDLField {
	out := make([]IDLField, len(l.Fields))
	for i, f := range l.Fields {
		out[i] = IDLField{Name: f.Name, Type: string(f.Type), Offset: f.Offset}
	}
	return out
}

func idlSeeds(p PDA) (IDLSeeds, error) {
	out := IDLSeeds{Seeds: make([]IDLSeed, len(p.Seeds))}
	for i, s := range p.Seeds {
		switch x := s.(type) {
		case ir.SeedLiteral:
			value := make([]int, len(x.Value))
			for j := 0; j < len(x.Value); j++ {
				value[j] = int(x.Value[j])
			}
			out.Seeds[i] = IDLSeed{Kind: "const", Value: value}
		case ir.Arg:
			out.Seeds[i] = IDLSeed{Kind: "arg", Path: x.Name}
		case ir.AccountRef:
			out.Seeds[i] = IDLSeed{Kind: "account", Path: x.Name}
		case ir.FieldRef:
			out.Seeds[i] = IDLSeed{Kind: "account", Path: x.Account + "." + x.Name}
		default:
			return IDLSeeds{}, fmt.Errorf("pda %s: unknown seed %T", p.Name, s)
		}
	}
	return out, nil
}
