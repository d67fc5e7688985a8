package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/solforge/internal/onchain"
	"github.com/roach88/solforge/pkg/solana/token"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			status := "ok"
			if ev.Error != "" {
				status = ev.Error
			}
			fmt.Fprintf(&buf, "  [%d] slot %d %s: %s\n", ev.Step, ev.Slot, ev.Invoke, status)
		}
	}
	return buf.String()
}

// evaluateAssertions checks every assertion and returns failure messages.
func (h *Harness) evaluateAssertions(result *Result) []string {
	var errs []string
	for i, a := range h.scenario.Assertions {
		var err error
		switch a.Type {
		case AssertState:
			err = h.assertState(a)
		case AssertBalance:
			err = h.assertBalance(a)
		case AssertSupply:
			err = h.assertSupply(a)
		case AssertView:
			err = h.assertView(a)
		case AssertEvent:
			err = assertEvent(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			if ae, ok := err.(*AssertionError); ok {
				ae.Trace = result.Trace
			}
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// stateKey picks the account table key a state assertion decodes with.
func (h *Harness) stateKey(a Assertion) (string, error) {
	if a.State != "" {
		return a.State, nil
	}
	states := h.bindings.Program.States
	if len(states) != 1 {
		return "", fmt.Errorf("state is required when the program declares %d account types", len(states))
	}
	return states[0].Key, nil
}

func (h *Harness) loadState(account, stateKey string) (onchain.Record, error) {
	k, err := h.key(account)
	if err != nil {
		return nil, err
	}
	acct, ok := h.rt.Ledger().Get(k)
	if !ok || len(acct.Data) == 0 {
		return nil, &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s account at %s", stateKey, account),
			Actual:   "account does not exist",
		}
	}
	return h.bindings.DecodeAccount(stateKey, acct.Data)
}

// compareFields checks every expected field (subset semantics) in sorted
// order so messages are stable.
func (h *Harness) compareFields(kind string, got map[string]any, expect map[string]any) error {
	names := make([]string, 0, len(expect))
	for n := range expect {
		names = append(names, n)
	}
	sort.Strings(names)

	var mismatches []string
	for _, n := range names {
		g, ok := got[n]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", n))
			continue
		}
		eq, err := h.equal(g, expect[n])
		if err != nil {
			return fmt.Errorf("%s: %w", n, err)
		}
		if !eq {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %v, got %s", n, expect[n], h.describe(g)))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%v", expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func (h *Harness) assertState(a Assertion) error {
	key, err := h.stateKey(a)
	if err != nil {
		return err
	}
	rec, err := h.loadState(a.Account, key)
	if err != nil {
		return err
	}
	return h.compareFields(AssertState, rec, a.Expect.(map[string]any))
}

func (h *Harness) assertBalance(a Assertion) error {
	label := a.Account
	if label == "" {
		label = ataPrefix + a.Owner + "/" + a.Mint
	}
	k, err := h.key(label)
	if err != nil {
		return err
	}
	want, err := toU64(a.Expect)
	if err != nil {
		return err
	}
	acct, err := h.rt.Ledger().TokenAccount(k)
	if err != nil {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %d", label, want),
			Actual:   err.Error(),
		}
	}
	if acct.Amount != want {
		return &AssertionError{
			Type:     AssertBalance,
			Expected: fmt.Sprintf("%s holds %d", label, want),
			Actual:   fmt.Sprintf("%d", acct.Amount),
		}
	}
	return nil
}

func (h *Harness) assertSupply(a Assertion) error {
	k, err := h.key(a.Mint)
	if err != nil {
		return err
	}
	want, err := toU64(a.Expect)
	if err != nil {
		return err
	}
	var m token.Mint
	if m, err = h.rt.Ledger().Mint(k); err != nil {
		return &AssertionError{Type: AssertSupply, Expected: fmt.Sprintf("mint %s", a.Mint), Actual: err.Error()}
	}
	if m.Supply != want {
		return &AssertionError{
			Type:     AssertSupply,
			Expected: fmt.Sprintf("%s supply %d", a.Mint, want),
			Actual:   fmt.Sprintf("%d", m.Supply),
		}
	}
	return nil
}

func (h *Harness) assertView(a Assertion) error {
	stateKey, ok := h.bindings.ViewAccount(a.View)
	if !ok {
		return fmt.Errorf("unknown view %q", a.View)
	}
	rec, err := h.loadState(a.Account, stateKey)
	if err != nil {
		return err
	}
	values, err := h.bindings.EvaluateView(a.View, rec)
	if err != nil {
		return err
	}
	got := make(map[string]any, len(values))
	for _, v := range values {
		got[v.Name] = v.Value
	}
	return h.compareFields(AssertView, got, a.Expect.(map[string]any))
}

func assertEvent(result *Result, a Assertion) error {
	n := result.EventCount(a.Name)
	switch {
	case a.Count == nil && n == 0:
		return &AssertionError{
			Type:     AssertEvent,
			Expected: fmt.Sprintf("event %s in trace", a.Name),
			Actual:   "not found in trace",
		}
	case a.Count != nil && n != *a.Count:
		return &AssertionError{
			Type:     AssertEvent,
			Expected: fmt.Sprintf("%d occurrences of %s", *a.Count, a.Name),
			Actual:   fmt.Sprintf("%d occurrences", n),
		}
	}
	return nil
}
