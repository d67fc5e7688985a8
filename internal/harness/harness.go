package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/roach88/solforge/internal/clientgen"
	"github.com/roach88/solforge/internal/compiler"
	"github.com/roach88/solforge/internal/ir"
	"github.com/roach88/solforge/internal/loader"
	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/internal/svm"
	"github.com/roach88/solforge/internal/testutil"
	"github.com/roach88/solforge/pkg/solana"
	"github.com/roach88/solforge/pkg/solana/token"
)

var log = logrus.StandardLogger().WithField("type", "harness")

// DefaultLamports is airdropped to signers that hold no lamports.
const DefaultLamports = 10_000_000_000

// Option configures a scenario run.
type Option func(*options)

type options struct {
	loader loader.Loader
}

// WithLoader loads scenario programs through l instead of the default
// loader chain.
func WithLoader(l loader.Loader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// Harness executes one scenario against a fresh ledger.
type Harness struct {
	scenario *Scenario
	bindings *clientgen.Bindings
	rt       *svm.Runtime
	clock    *testutil.DeterministicClock
	keys     *testutil.Keys
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh ledger with a deterministic clock and
// deterministic wallets. A returned error means the scenario itself is
// unusable; failed expectations are reported in the Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	o := options{loader: loader.NewChain()}
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := LoadDocument(ctx, s.ProgramSource(), o.loader)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	h, err := New(s, doc)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeSetup(); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	for _, msg := range h.evaluateAssertions(result) {
		result.AddError(msg)
	}
	result.Keys = h.keyMap()

	log.WithFields(logrus.Fields{
		"scenario": s.Name,
		"pass":     result.Pass,
		"steps":    len(result.Trace),
	}).Debug("scenario finished")
	return result, nil
}

// New deploys doc on a fresh emulator for s.
func New(s *Scenario, doc *ir.Document) (*Harness, error) {
	b, err := clientgen.New(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build bindings: %w", err)
	}
	clock := testutil.NewDeterministicClock()
	opts := []svm.Option{svm.WithClock(clock)}
	if s.ComputeLimit > 0 {
		opts = append(opts, svm.WithComputeLimit(s.ComputeLimit))
	}
	rt := svm.New(svm.NewLedger(), opts...)
	rt.Deploy(b.Program)

	return &Harness{
		scenario: s,
		bindings: b,
		rt:       rt,
		clock:    clock,
		keys:     testutil.NewKeys(),
	}, nil
}

// Runtime returns the emulator the scenario runs on.
func (h *Harness) Runtime() *svm.Runtime {
	return h.rt
}

func isBuiltin(source string) bool {
	return strings.HasPrefix(source, loader.BuiltinPrefix)
}

// LoadDocument reads an IR document (.json) or loads and builds a program
// source through l.
func LoadDocument(ctx context.Context, source string, l loader.Loader) (*ir.Document, error) {
	if !isBuiltin(source) && filepath.Ext(source) == ".json" {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, err
		}
		return ir.UnmarshalDocument(data)
	}
	p, err := l.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	return compiler.Build(p)
}

// executeSetup funds wallets, binds PDA labels and creates mints and
// token accounts directly in the ledger.
func (h *Harness) executeSetup() error {
	ledger := h.rt.Ledger()
	setup := h.scenario.Setup

	for i, w := range setup.Wallets {
		k, err := h.key(w.Name)
		if err != nil {
			return fmt.Errorf("setup.wallets[%d]: %w", i, err)
		}
		ledger.Airdrop(k, w.Lamports)
	}

	for i, p := range setup.Pdas {
		if err := h.bindPDA(p); err != nil {
			return fmt.Errorf("setup.pdas[%d] %s: %w", i, p.Name, err)
		}
	}

	for i, m := range setup.Mints {
		k, err := h.key(m.Name)
		if err != nil {
			return fmt.Errorf("setup.mints[%d]: %w", i, err)
		}
		authority, err := h.key(m.Authority)
		if err != nil {
			return fmt.Errorf("setup.mints[%d]: %w", i, err)
		}
		ledger.SetMint(k, token.Mint{MintAuthority: authority, Decimals: m.Decimals, Supply: m.Supply})
	}

	for i, a := range setup.TokenAccounts {
		if err := h.createTokenAccount(a); err != nil {
			return fmt.Errorf("setup.token_accounts[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) bindPDA(p PdaSetup) error {
	in := clientgen.SeedInputs{
		Args:     onchain.Record{},
		Accounts: make(map[string]solana.PublicKey, len(p.Accounts)),
	}
	for name, raw := range p.Args {
		v, err := h.untyped(raw)
		if err != nil {
			return fmt.Errorf("arg %s: %w", name, err)
		}
		in.Args[name] = v
	}
	for slot, label := range p.Accounts {
		k, err := h.key(label)
		if err != nil {
			return err
		}
		in.Accounts[slot] = k
	}
	k, _, err := h.bindings.DerivePDA(p.Name, in)
	if err != nil {
		return err
	}
	label := p.Label
	if label == "" {
		label = p.Name
	}
	if !h.keys.Register(pdaPrefix+label, k) {
		return fmt.Errorf("label %s%s is already bound to another address", pdaPrefix, label)
	}
	return nil
}

// createTokenAccount stores an initialized token account and adds its
// amount to the mint supply.
func (h *Harness) createTokenAccount(a TokenAccountSetup) error {
	owner, err := h.key(a.Owner)
	if err != nil {
		return err
	}
	mint, err := h.key(a.Mint)
	if err != nil {
		return err
	}
	label := a.Label
	if label == "" {
		label = ataPrefix + a.Owner + "/" + a.Mint
	}
	k, err := h.key(label)
	if err != nil {
		return err
	}

	ledger := h.rt.Ledger()
	ledger.SetTokenAccount(k, token.Account{Mint: mint, Owner: owner, Amount: a.Amount})
	if a.Amount > 0 {
		m, err := ledger.Mint(mint)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Mint, err)
		}
		m.Supply += a.Amount
		ledger.SetMint(mint, m)
	}
	return nil
}

// executeFlow runs every step as its own transaction and checks its
// expect clause. Steps keep running after a failed expectation so the
// trace is complete.
func (h *Harness) executeFlow(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Flow {
		if err := ctx.Err(); err != nil {
			return err
		}
		ix, signers, err := h.instruction(step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		h.fund(signers)

		receipt, err := h.rt.Process(signers, ix)
		ev := TraceEvent{Step: i, Invoke: step.Invoke}
		if receipt != nil {
			ev.Slot = receipt.Slot
			ev.Units = receipt.Units()
			ev.Events = receipt.Events()
		}
		if err != nil {
			ev.Error = svm.ErrorName(err)
			if receipt != nil {
				if tr := h.rt.Trace(); len(tr) > 0 {
					ev.Units = tr[len(tr)-1].Units
				}
			}
		}
		result.AddTrace(ev)

		for _, msg := range checkExpect(step.Expect, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
		}

		log.WithFields(logrus.Fields{
			"step":   i,
			"invoke": step.Invoke,
			"slot":   ev.Slot,
			"error":  ev.Error,
		}).Debug("flow step completed")
	}
	return nil
}

func checkExpect(e *Expect, ev TraceEvent) []string {
	var errs []string
	switch {
	case e.Succeeds() && ev.Error != "":
		errs = append(errs, fmt.Sprintf("expected success, got %s", ev.Error))
	case !e.Succeeds() && ev.Error == "":
		errs = append(errs, "expected failure, instruction succeeded")
	case e != nil && e.Error != "" && e.Error != ev.Error:
		errs = append(errs, fmt.Sprintf("expected error %s, got %s", e.Error, ev.Error))
	}
	if e != nil && e.Events != nil {
		names := make([]string, len(ev.Events))
		for i, x := range ev.Events {
			names[i] = x.Name
		}
		if strings.Join(names, ",") != strings.Join(e.Events, ",") {
			errs = append(errs, fmt.Sprintf("expected events %v, got %v", e.Events, names))
		}
	}
	return errs
}

// instruction builds the call for step and returns the signing wallets.
func (h *Harness) instruction(step FlowStep) (solana.Instruction, []solana.PublicKey, error) {
	handler, ok := h.bindings.Program.Handler(step.Invoke)
	if !ok {
		return solana.Instruction{}, nil, fmt.Errorf("unknown instruction %q", step.Invoke)
	}
	args, err := h.args(handler, step.Args)
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	accounts := clientgen.Accounts{}
	for slot, label := range h.scenario.Accounts {
		if _, ok := handler.Slot(slot); !ok {
			continue
		}
		k, err := h.key(label)
		if err != nil {
			return solana.Instruction{}, nil, fmt.Errorf("account %s: %w", slot, err)
		}
		accounts[slot] = k
	}
	for slot, label := range step.Accounts {
		if _, ok := handler.Slot(slot); !ok {
			return solana.Instruction{}, nil, fmt.Errorf("unknown account slot %q", slot)
		}
		k, err := h.key(label)
		if err != nil {
			return solana.Instruction{}, nil, fmt.Errorf("account %s: %w", slot, err)
		}
		accounts[slot] = k
	}
	for _, s := range handler.Slots {
		if _, ok := accounts[s.Name]; !ok && s.Signer {
			accounts[s.Name] = h.keys.Key(s.Name)
		}
	}

	ix, err := h.bindings.Instruction(step.Invoke, args, accounts, clientgen.WithFetcher(h.fetch))
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	var signers []solana.PublicKey
	if len(step.Signers) > 0 {
		for _, label := range step.Signers {
			k, err := h.key(label)
			if err != nil {
				return solana.Instruction{}, nil, fmt.Errorf("signer: %w", err)
			}
			signers = append(signers, k)
		}
	} else {
		for _, m := range ix.Accounts {
			if m.IsSigner {
				signers = append(signers, m.PublicKey)
			}
		}
	}
	return ix, signers, nil
}

func (h *Harness) fetch(k solana.PublicKey) ([]byte, bool) {
	a, ok := h.rt.Ledger().Get(k)
	if !ok {
		return nil, false
	}
	return a.Data, true
}

func (h *Harness) fund(signers []solana.PublicKey) {
	ledger := h.rt.Ledger()
	for _, s := range signers {
		if ledger.Balance(s) == 0 {
			ledger.Airdrop(s, DefaultLamports)
		}
	}
}

// args converts YAML arguments to the handler's argument types.
func (h *Harness) args(handler *onchain.Handler, raw map[string]any) (onchain.Record, error) {
	rec := make(onchain.Record, len(raw))
	for name, v := range raw {
		f, ok := layoutField(handler.Args, name)
		if !ok {
			return nil, fmt.Errorf("unknown argument %q", name)
		}
		val, err := h.typed(f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		rec[name] = val
	}
	return rec, nil
}

func layoutField(l *onchain.Layout, name string) (onchain.LayoutField, bool) {
	if l == nil {
		return onchain.LayoutField{}, false
	}
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return onchain.LayoutField{}, false
}

// keyMap renders every bound label.
func (h *Harness) keyMap() map[string]string {
	labels := h.keys.Labels()
	out := make(map[string]string, len(labels))
	for _, l := range labels {
		k, _ := h.keys.Lookup(l)
		out[l] = k.String()
	}
	return out
}
