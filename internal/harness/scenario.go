package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a program, the ledger it starts from, the instructions to
// run and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is builtin:<name>, a .cue file or directory, or an IR
	// document (.json). Relative paths are resolved against BaseDir.
	Program string `yaml:"program"`

	// ComputeLimit overrides the per-instruction compute budget.
	ComputeLimit uint64 `yaml:"compute_limit,omitempty"`

	// Accounts binds slot names to labels for every step.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	Setup      Setup       `yaml:"setup,omitempty"`
	Flow       []FlowStep  `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`

	// BaseDir is the directory of the scenario file.
	BaseDir string `yaml:"-"`
}

// Setup describes the ledger before the flow runs.
type Setup struct {
	Wallets       []WalletSetup       `yaml:"wallets,omitempty"`
	Pdas          []PdaSetup          `yaml:"pdas,omitempty"`
	Mints         []MintSetup         `yaml:"mints,omitempty"`
	TokenAccounts []TokenAccountSetup `yaml:"token_accounts,omitempty"`
}

// WalletSetup funds a wallet.
type WalletSetup struct {
	Name     string `yaml:"name"`
	Lamports uint64 `yaml:"lamports"`
}

// PdaSetup derives a declared PDA and binds it to pda:<Label>. Label
// defaults to Name.
type PdaSetup struct {
	Name     string            `yaml:"name"`
	Label    string            `yaml:"label,omitempty"`
	Args     map[string]any    `yaml:"args,omitempty"`
	Accounts map[string]string `yaml:"accounts,omitempty"`
}

// MintSetup creates an initialized mint at the address of Name.
type MintSetup struct {
	Name      string `yaml:"name"`
	Authority string `yaml:"authority"`
	Decimals  uint8  `yaml:"decimals,omitempty"`
	Supply    uint64 `yaml:"supply,omitempty"`
}

// TokenAccountSetup creates the associated token account of Owner for
// Mint, or the account at Label when set.
type TokenAccountSetup struct {
	Owner  string `yaml:"owner"`
	Mint   string `yaml:"mint"`
	Amount uint64 `yaml:"amount,omitempty"`
	Label  string `yaml:"label,omitempty"`
}

// FlowStep invokes one instruction as its own transaction.
type FlowStep struct {
	// Invoke is the instruction name.
	Invoke string `yaml:"invoke"`

	// Signers are wallet labels. Empty means every signer slot signs.
	Signers []string `yaml:"signers,omitempty"`

	// Args are instruction arguments. Pubkey arguments are labels.
	Args map[string]any `yaml:"args,omitempty"`

	// Accounts binds slots to labels for this step only.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Expect defaults to success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a flow step.
type Expect struct {
	// Ok is the expected success. Setting Error implies false.
	Ok *bool `yaml:"ok,omitempty"`

	// Error is the expected error name (svm.ErrorName), such as
	// InsufficientFunds or InvalidSeeds.
	Error string `yaml:"error,omitempty"`

	// Events are the expected event names in order.
	Events []string `yaml:"events,omitempty"`
}

// Succeeds reports whether the step is expected to commit.
func (e *Expect) Succeeds() bool {
	if e == nil {
		return true
	}
	if e.Error != "" {
		return false
	}
	return e.Ok == nil || *e.Ok
}

// Assertion validates the final ledger or the trace.
type Assertion struct {
	// Type is one of state, balance, supply, view or event.
	Type string `yaml:"type"`

	// Account is the label of the account to read.
	Account string `yaml:"account,omitempty"`

	// State is the account table key to decode with (state). It defaults
	// to the only declared account type.
	State string `yaml:"state,omitempty"`

	// Owner and Mint locate a token account (balance).
	Owner string `yaml:"owner,omitempty"`
	Mint  string `yaml:"mint,omitempty"`

	// View is the view to evaluate (view).
	View string `yaml:"view,omitempty"`

	// Name is the event name (event).
	Name string `yaml:"name,omitempty"`

	// Count is the exact number of events (event). Nil means at least one.
	Count *int `yaml:"count,omitempty"`

	// Expect is a field map for state and view, a number for balance and
	// supply.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertState   = "state"
	AssertBalance = "balance"
	AssertSupply  = "supply"
	AssertView    = "view"
	AssertEvent   = "event"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving scenario directory: %w", err)
	}
	s.BaseDir = abs
	return s, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so typos like "assertion:" surface.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// ProgramSource returns Program with relative paths resolved.
func (s *Scenario) ProgramSource() string {
	if isBuiltin(s.Program) || filepath.IsAbs(s.Program) || s.BaseDir == "" {
		return s.Program
	}
	return filepath.Join(s.BaseDir, s.Program)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, p := range s.Setup.Pdas {
		if p.Name == "" {
			return fmt.Errorf("setup.pdas[%d]: name is required", i)
		}
	}
	for i, m := range s.Setup.Mints {
		if m.Name == "" || m.Authority == "" {
			return fmt.Errorf("setup.mints[%d]: name and authority are required", i)
		}
	}
	for i, a := range s.Setup.TokenAccounts {
		if a.Owner == "" || a.Mint == "" {
			return fmt.Errorf("setup.token_accounts[%d]: owner and mint are required", i)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if e := step.Expect; e != nil && e.Error != "" && e.Ok != nil && *e.Ok {
			return fmt.Errorf("flow[%d].expect: ok and error are exclusive", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		if a.Account == "" {
			return fmt.Errorf("assertions[%d]: account is required for state", index)
		}
		if _, ok := a.Expect.(map[string]any); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a field map for state", index)
		}
	case AssertBalance:
		if a.Account == "" && (a.Owner == "" || a.Mint == "") {
			return fmt.Errorf("assertions[%d]: account or owner and mint are required for balance", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for balance", index)
		}
	case AssertSupply:
		if a.Mint == "" {
			return fmt.Errorf("assertions[%d]: mint is required for supply", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for supply", index)
		}
	case AssertView:
		if a.View == "" || a.Account == "" {
			return fmt.Errorf("assertions[%d]: view and account are required for view", index)
		}
		if _, ok := a.Expect.(map[string]any); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a field map for view", index)
		}
	case AssertEvent:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for event", index)
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
