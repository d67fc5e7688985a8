package clientgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/system"
	"github.com/roach88/solforge/pkg/solana/token"
)

// Accounts maps slot names to keys.
type Accounts map[string]solana.PublicKey

// AccountFetcher returns the data stored at key, if the account exists.
type AccountFetcher func(key solana.PublicKey) ([]byte, bool)

// ResolveOption configures default account resolution.
type ResolveOption func(*resolver)

// WithFetcher lets seeds and token account owners read state fields of
// accounts that already exist, such as the mints recorded in a vault.
func WithFetcher(f AccountFetcher) ResolveOption {
	return func(r *resolver) { r.fetch = f }
}

// errPending marks a slot whose inputs are not resolved yet.
var errPending = errors.New("pending")

// Instruction builds a wire-compatible call: the encoded arguments and
// the account list in slot order with the declared signer and writable
// flags. Slots missing from accounts are filled in from their PDA seeds,
// associated token account parameters, pinned addresses or well-known
// program addresses.
func (b *Bindings) Instruction(name string, args onchain.Record, accounts Accounts, opts ...ResolveOption) (solana.Instruction, error) {
	h, ok := b.Program.Handler(name)
	if !ok {
		return solana.Instruction{}, fmt.Errorf("unknown instruction %q", name)
	}
	data, err := h.EncodeInstruction(args)
	if err != nil {
		return solana.Instruction{}, fmt.Errorf("%s: encode args: %w", name, err)
	}
	keys, err := b.ResolveAccounts(name, args, accounts, opts...)
	if err != nil {
		return solana.Instruction{}, err
	}
	metas := make([]solana.AccountMeta, len(h.Slots))
	for i, s := range h.Slots {
		metas[i] = solana.AccountMeta{
			PublicKey:  keys[s.Name],
			IsSigner:   s.Signer,
			IsWritable: s.Writable,
		}
	}
	return solana.NewInstruction(b.Program.Address, data, metas...), nil
}

// ResolveAccounts completes accounts for the named instruction. Explicit
// keys always win over derived ones.
func (b *Bindings) ResolveAccounts(name string, args onchain.Record, accounts Accounts, opts ...ResolveOption) (Accounts, error) {
	ix, ok := b.Doc.Instruction(name)
	if !ok {
		return nil, fmt.Errorf("unknown instruction %q", name)
	}
	r := &resolver{
		b:      b,
		scope:  b.scope(ix.Args),
		args:   args,
		keys:   Accounts{},
		states: map[string]onchain.Record{},
	}
	for _, opt := range opts {
		opt(r)
	}
	for k, v := range accounts {
		r.keys[k] = v
	}

	pending := make([]ir.AccountMeta, 0, len(ix.Accounts))
	for _, m := range ix.Accounts {
		if _, ok := r.keys[m.Name]; !ok {
			pending = append(pending, m)
		}
	}

	for len(pending) > 0 {
		var next []ir.AccountMeta
		for _, m := range pending {
			key, err := r.resolve(m)
			switch {
			case errors.Is(err, errPending):
				next = append(next, m)
			case err != nil:
				return nil, fmt.Errorf("%s: account %s: %w", name, m.Name, err)
			default:
				r.keys[m.Name] = key
			}
		}
		if len(next) == len(pending) {
			names := make([]string, len(next))
			for i, m := range next {
				names[i] = m.Name
			}
			return nil, fmt.Errorf("%s: unresolved accounts: %s", name, strings.Join(names, ", "))
		}
		pending = next
	}

	out := make(Accounts, len(ix.Accounts))
	for _, m := range ix.Accounts {
		out[m.Name] = r.keys[m.Name]
	}
	return out, nil
}

type resolver struct {
	b      *Bindings
	scope  onchain.Scope
	args   onchain.Record
	keys   Accounts
	states map[string]onchain.Record
	fetch  AccountFetcher
}

func (r *resolver) resolve(m ir.AccountMeta) (solana.PublicKey, error) {
	switch {
	case m.Pda != nil:
		nodes, err := r.scope.LowerSeeds(m.Pda.Seeds)
		if err != nil {
			return solana.PublicKey{}, err
		}
		key, _, err := onchain.DeriveAddress(r.b.Program.Address, nodes, r)
		return key, err
	case m.Role == ir.RoleATA:
		owner, err := r.address(m.Owner)
		if err != nil {
			return solana.PublicKey{}, err
		}
		mint, err := r.address(m.Mint)
		if err != nil {
			return solana.PublicKey{}, err
		}
		return token.GetAssociatedAccount(owner, mint)
	case m.Address != nil:
		return r.address(m.Address)
	case m.Role == ir.RoleProgram:
		if m.Name == compiler.SystemProgramSlot {
			return system.ProgramKey, nil
		}
		return token.ProgramKey, nil
	}
	return solana.PublicKey{}, errors.New("no default address; pass it explicitly")
}

func (r *resolver) address(a ir.AddressRef) (solana.PublicKey, error) {
	n, err := r.scope.LowerAddress(a)
	if err != nil {
		return solana.PublicKey{}, err
	}
	v, err := onchain.Eval(n, r)
	if err != nil {
		return solana.PublicKey{}, err
	}
	k, ok := v.(solana.PublicKey)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("address evaluated to %T, not a pubkey", v)
	}
	return k, nil
}

func (r *resolver) Arg(name string) (any, error) {
	v, ok := r.args[name]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", name)
	}
	return v, nil
}

func (r *resolver) Key(slot string) (solana.PublicKey, error) {
	k, ok := r.keys[slot]
	if !ok {
		return solana.PublicKey{}, errPending
	}
	return k, nil
}

func (r *resolver) Bump(slot string) (uint8, error) {
	return 0, fmt.Errorf("seeds cannot read the bump of %q", slot)
}

func (r *resolver) Field(slot, name string) (any, error) {
	rec, ok := r.states[slot]
	if !ok {
		key, ok := r.keys[slot]
		if !ok {
			return nil, errPending
		}
		if r.fetch == nil {
			return nil, fmt.Errorf("reading %s.%s needs account data; use WithFetcher", slot, name)
		}
		data, ok := r.fetch(key)
		if !ok {
			return nil, fmt.Errorf("account %s (%s) does not exist", slot, key)
		}
		rec, err := r.b.DecodeAccount(slot, data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", slot, err)
		}
		r.states[slot] = rec
		return rec[name], nil
	}
	return rec[name], nil
}
