package clientgen

import (
	"github.com/roach88/solforge/internal/ir"
)

// Output holds the generated client artifacts.
type Output struct {
	Bindings *Bindings
	Go       []byte
	IDL      []byte
}

// Generate builds the bindings of doc and renders the Go source in package
// pkg and the IDL.
func Generate(doc *ir.Document, pkg string, opts ...IDLOption) (*Output, error) {
	b, err := New(doc)
	if err != nil {
		return nil, err
	}
	src, err := RenderGo(b, pkg)
	if err != nil {
		return nil, err
	}
	idl, err := RenderIDL(b, opts...)
	if err != nil {
		return nil, err
	}
	return &Output{Bindings: b, Go: src, IDL: idl}, nil
}
