package onchain

import (
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/pkg/solana"
)

// Program is a fully lowered native program, independent of the language
// it is finally rendered in.
type Program struct {
	Name     string
	Address  solana.PublicKey
	IRHash   string
	States   []State
	Handlers []*Handler
}

// State is the layout of one persisted account kind.
type State struct {
	Key    string
	Layout *Layout
}

// Slot is one entry of a handler's account list.
type Slot struct {
	Name     string
	Index    int
	Signer   bool
	Writable bool
	Role     ir.Role
	Pda      bool
}

// Handler is the lowered body of one instruction.
type Handler struct {
	Name          string
	Discriminator uint8
	Args          *Layout
	Slots         []Slot
	Steps         []Step
}

// MinAccounts is the number of account keys the handler requires.
func (h *Handler) MinAccounts() int {
	return len(h.Slots)
}

// Slot finds a slot by name.
func (h *Handler) Slot(name string) (Slot, bool) {
	for _, s := range h.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// State finds the layout persisted under an account table key.
func (p *Program) State(key string) (*Layout, bool) {
	for _, s := range p.States {
		if s.Key == key {
			return s.Layout, true
		}
	}
	return nil, false
}

// Handler finds a handler by instruction name.
func (p *Program) Handler(name string) (*Handler, bool) {
	for _, h := range p.Handlers {
		if h.Name == name {
			return h, true
		}
	}
	return nil, false
}

// Dispatch selects the handler for an instruction payload. Byte 0 is the
// discriminator; the rest is returned as the argument buffer.
func (p *Program) Dispatch(data []byte, accounts int) (*Handler, []byte, error) {
	if len(data) == 0 {
		return nil, nil, ErrInvalidInstructionData
	}
	d := int(data[0])
	if d >= len(p.Handlers) {
		return nil, nil, ErrInvalidInstructionData
	}
	h := p.Handlers[d]
	if accounts < h.MinAccounts() {
		return nil, nil, ErrNotEnoughAccountKeys
	}
	return h, data[1:], nil
}

// EncodeInstruction builds the payload of a handler call: the
// discriminator followed by the encoded arguments.
func (h *Handler) EncodeInstruction(args Record) ([]byte, error) {
	body, err := h.Args.Encode(args)
	if err != nil {
		return nil, err
	}
	return append([]byte{h.Discriminator}, body...), nil
}
