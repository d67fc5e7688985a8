package clientgen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
)

// SolanaImport is the import path of the key and instruction types the
// generated code builds on.
const SolanaImport = "github.com/roach88/solforge/pkg/solana"

// RenderGo renders the bindings as a gofmt-formatted Go source file in
// package pkg.
func RenderGo(b *Bindings, pkg string) ([]byte, error) {
	if !token.IsIdentifier(pkg) {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}
	f, err := newGoFile(b, pkg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goTemplate.Execute(&buf, f); err != nil {
		return nil, err
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return out, nil
}

type goFile struct {
	Package      string
	Program      string
	Address      string
	IRHash       string
	Imports      []string
	States       []goState
	Instructions []goInstruction
	PDAs         []goPDA
	Views        []goView

	usesBinary bool
}

type goField struct {
	Name   string
	Type   string
	Encode string
	Decode string
}

type goState struct {
	Name   string
	Key    string
	Size   int
	Fields []goField
}

type goAccount struct {
	Name     string
	Signer   bool
	Writable bool
}

type goInstruction struct {
	Name          string
	Wire          string
	Discriminator uint8
	DataSize      int
	Args          []goField
	Accounts      []goAccount
}

type goParam struct {
	Name string
	Type string
}

type goPDA struct {
	Name   string
	Wire   string
	Params []goParam
	Seeds  []string
}

type goReturn struct {
	Name  string
	Type  string
	Field string
	Num   string
	Den   string
	Ratio bool
}

type goView struct {
	Name    string
	Wire    string
	State   string
	Returns []goReturn
}

func newGoFile(b *Bindings, pkg string) (*goFile, error) {
	f := &goFile{
		Package: pkg,
		Program: b.Program.Name,
		Address: b.Program.Address.String(),
		IRHash:  b.Program.IRHash,
	}

	for _, s := range b.Program.States {
		st := goState{Name: exported(s.Layout.Name), Key: s.Key, Size: s.Layout.Size}
		for _, lf := range s.Layout.Fields {
			st.Fields = append(st.Fields, f.field(lf, 0))
		}
		f.States = append(f.States, st)
	}

	for _, h := range b.Program.Handlers {
		ix := goInstruction{
			Name:          exported(h.Name),
			Wire:          h.Name,
			Discriminator: h.Discriminator,
			DataSize:      1 + h.Args.Size,
		}
		for _, lf := range h.Args.Fields {
			ix.Args = append(ix.Args, f.field(lf, 1))
		}
		for _, s := range h.Slots {
			ix.Accounts = append(ix.Accounts, goAccount{Name: exported(s.Name), Signer: s.Signer, Writable: s.Writable})
		}
		f.Instructions = append(f.Instructions, ix)
	}

	for _, p := range b.pdas {
		gp, err := f.pda(p)
		if err != nil {
			return nil, err
		}
		f.PDAs = append(f.PDAs, gp)
	}

	for _, v := range b.Doc.Views {
		if gv, ok := goViewOf(b, v); ok {
			f.Views = append(f.Views, gv)
		}
	}

	if f.usesBinary {
		f.Imports = append(f.Imports, "encoding/binary")
	}
	if len(f.States) > 0 {
		f.Imports = append(f.Imports, "errors")
	}
	if len(f.Imports) > 0 {
		f.Imports = append(f.Imports, "")
	}
	f.Imports = append(f.Imports, SolanaImport)
	return f, nil
}

// field renders the codec statements of a layout field; base is the
// offset of the layout within the buffer.
func (f *goFile) field(lf onchain.LayoutField, base int) goField {
	name := exported(lf.Name)
	start := base + lf.Offset
	end := start + lf.Type.Width()
	gf := goField{Name: name, Type: goType(lf.Type)}
	switch lf.Type {
	case ir.U8:
		gf.Encode = fmt.Sprintf("data[%d] = args.%s", start, name)
		gf.Decode = fmt.Sprintf("s.%s = data[%d]", name, start)
	case ir.U64:
		f.usesBinary = true
		gf.Encode = fmt.Sprintf("binary.LittleEndian.PutUint64(data[%d:%d], args.%s)", start, end, name)
		gf.Decode = fmt.Sprintf("s.%s = binary.LittleEndian.Uint64(data[%d:%d])", name, start, end)
	case ir.Pubkey:
		gf.Encode = fmt.Sprintf("copy(data[%d:%d], args.%s[:])", start, end, name)
		gf.Decode = fmt.Sprintf("copy(s.%s[:], data[%d:%d])", name, start, end)
	}
	return gf
}

func (f *goFile) pda(p PDA) (goPDA, error) {
	gp := goPDA{Name: exported(p.Name), Wire: p.Name}
	seen := map[string]bool{}
	param := func(name string, t ir.ScalarType) string {
		name = unexported(name)
		if !seen[name] {
			seen[name] = true
			gp.Params = append(gp.Params, goParam{Name: name, Type: goType(t)})
		}
		return name
	}
	for _, n := range p.Nodes {
		var name string
		switch x := n.(type) {
		case onchain.Bytes:
			gp.Seeds = append(gp.Seeds, fmt.Sprintf("[]byte(%s)", strconv.Quote(string(x.Value))))
			continue
		case onchain.LoadArg:
			name = param(x.Name, x.Type)
		case onchain.LoadKey:
			name = param(x.Slot, ir.Pubkey)
		case onchain.LoadField:
			name = param(x.Slot+exported(x.Name), x.Type)
		default:
			return goPDA{}, fmt.Errorf("pda %s: seed %T has no Go rendering", p.Name, n)
		}
		switch onchain.NodeType(n) {
		case ir.U8:
			gp.Seeds = append(gp.Seeds, fmt.Sprintf("[]byte{%s}", name))
		case ir.U64:
			f.usesBinary = true
			gp.Seeds = append(gp.Seeds, fmt.Sprintf("binary.LittleEndian.AppendUint64(nil, %s)", name))
		default:
			gp.Seeds = append(gp.Seeds, name+"[:]")
		}
	}
	return gp, nil
}

// goViewOf renders views whose returns read fields of the viewed account
// directly. Other views are served by Bindings.EvaluateView.
func goViewOf(b *Bindings, v ir.ViewDef) (goView, bool) {
	key, ok := b.ViewAccount(v.Name)
	if !ok {
		return goView{}, false
	}
	layout, ok := b.Program.State(key)
	if !ok {
		return goView{}, false
	}
	field := func(e ir.Expr) (string, bool) {
		ref, ok := e.(ir.FieldRef)
		if !ok || ref.Account != key {
			return "", false
		}
		if _, ok := layout.Field(ref.Name); !ok {
			return "", false
		}
		return "s." + exported(ref.Name), true
	}

	gv := goView{Name: exported(v.Name), Wire: v.Name, State: exported(layout.Name)}
	for _, r := range v.Returns {
		gr := goReturn{Name: exported(r.Name)}
		if r.Type == ir.Ratio {
			num, ok1 := field(r.Expr)
			den, ok2 := field(r.Den)
			if !ok1 || !ok2 {
				return goView{}, false
			}
			gr.Type, gr.Ratio, gr.Num, gr.Den = "float64", true, num, den
		} else {
			t, ok := r.Type.Scalar()
			if !ok {
				return goView{}, false
			}
			ref, ok := field(r.Expr)
			if !ok {
				return goView{}, false
			}
			gr.Type, gr.Field = goType(t), ref
		}
		gv.Returns = append(gv.Returns, gr)
	}
	return gv, true
}

func goType(t ir.ScalarType) string {
	switch t {
	case ir.U8:
		return "uint8"
	case ir.U64:
		return "uint64"
	default:
		return "solana.PublicKey"
	}
}

// exported turns a camelCase, snake_case or kebab-case name into an
// exported Go identifier.
func exported(name string) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		if r == '_' || r == '-' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// unexported turns a name into a parameter identifier that is not a Go
// keyword.
func unexported(name string) string {
	e := exported(name)
	if e == "" {
		return e
	}
	r := []rune(e)
	r[0] = unicode.ToLower(r[0])
	s := string(r)
	if token.IsKeyword(s) {
		s += "Value"
	}
	return s
}

var goTemplate = template.Must(template.New("bindings").Parse(`// Code generated by solforge from program {{.Program}}. DO NOT EDIT.
// ir-hash: {{.IRHash}}

package {{.Package}}

import (
{{- range .Imports}}
{{if .}}	"{{.}}"{{end}}
{{- end}}
)

// ProgramAddress is the address the program is deployed at.
var ProgramAddress = solana.MustParsePublicKey("{{.Address}}")
{{- if .States}}

// ErrAccountDataTooSmall is returned when decoding a truncated account.
var ErrAccountDataTooSmall = errors.New("account data too small")
{{- end}}
{{- range .States}}

// {{.Name}}Size is the encoded size of {{.Name}}.
const {{.Name}}Size = {{.Size}}

// {{.Name}} is the state stored in {{.Key}} accounts.
type {{.Name}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}}
{{- end}}
}

// Decode reads the state from raw account data.
func (s *{{.Name}}) Decode(data []byte) error {
	if len(data) < {{.Name}}Size {
		return ErrAccountDataTooSmall
	}
{{- range .Fields}}
	{{.Decode}}
{{- end}}
	return nil
}
{{- end}}
{{- range .Instructions}}

// {{.Name}}Discriminator selects the {{.Wire}} handler.
const {{.Name}}Discriminator = {{.Discriminator}}

// {{.Name}}Args are the arguments of {{.Wire}}.
type {{.Name}}Args struct {
{{- range .Args}}
	{{.Name}} {{.Type}}
{{- end}}
}

// {{.Name}}Accounts are the accounts of {{.Wire}}, in call order.
type {{.Name}}Accounts struct {
{{- range .Accounts}}
	{{.Name}} solana.PublicKey
{{- end}}
}

// New{{.Name}}Instruction builds a {{.Wire}} call.
func New{{.Name}}Instruction(args {{.Name}}Args, accounts {{.Name}}Accounts) solana.Instruction {
	data := make([]byte, {{.DataSize}})
	data[0] = {{.Name}}Discriminator
{{- range .Args}}
	{{.Encode}}
{{- end}}
	return solana.NewInstruction(ProgramAddress, data,
{{- range .Accounts}}
		solana.AccountMeta{PublicKey: accounts.{{.Name}}, IsSigner: {{.Signer}}, IsWritable: {{.Writable}}},
{{- end}}
	)
}
{{- end}}
{{- range .PDAs}}

// Derive{{.Name}}PDA derives the {{.Wire}} address and its bump.
func Derive{{.Name}}PDA({{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.Name}} {{$p.Type}}{{end}}) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(ProgramAddress,
{{- range .Seeds}}
		{{.}},
{{- end}}
	)
}
{{- end}}
{{- range .Views}}

// {{.Name}} is the result of the {{.Wire}} view.
type {{.Name}} struct {
{{- range .Returns}}
	{{.Name}} {{.Type}}
{{- end}}
}

// {{.Name}} evaluates the {{.Wire}} view. Ratios with a zero denominator
// are 1.
func (s *{{.State}}) {{.Name}}() {{.Name}} {
	var v {{.Name}}
{{- range .Returns}}
{{- if .Ratio}}
	if {{.Den}} == 0 {
		v.{{.Name}} = 1
	} else {
		v.{{.Name}} = float64({{.Num}}) / float64({{.Den}})
	}
{{- else}}
	v.{{.Name}} = {{.Field}}
{{- end}}
{{- end}}
	return v
}
{{- end}}
`))
