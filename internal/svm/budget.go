package svm

import (
	"errors"
	"fmt"
)

// DefaultComputeLimit is the per-instruction compute budget.
const DefaultComputeLimit = 200_000

// Compute unit prices. Deriving a PDA pays once per bump tried.
const (
	stepCost          = 100
	pdaAttemptCost    = 1_500
	invokeCost        = 1_000
	systemProgramCost = 150
	tokenProgramCost  = 2_000
)

// ComputeMeter tracks the compute units one instruction consumes,
// including the units of the programs it invokes.
type ComputeMeter struct {
	limit uint64
	used  uint64
}

// NewComputeMeter creates a meter with the given limit.
func NewComputeMeter(limit uint64) *ComputeMeter {
	return &ComputeMeter{limit: limit}
}

// Consume charges units and fails once the budget is exhausted.
func (m *ComputeMeter) Consume(units uint64) error {
	m.used += units
	if m.used > m.limit {
		return &BudgetExceededError{Used: m.used, Limit: m.limit}
	}
	return nil
}

// Used returns the units consumed so far.
func (m *ComputeMeter) Used() uint64 {
	return m.used
}

// Limit returns the budget.
func (m *ComputeMeter) Limit() uint64 {
	return m.limit
}

// BudgetExceededError aborts an instruction that ran out of compute units.
type BudgetExceededError struct {
	Used  uint64
	Limit uint64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("exceeded compute budget: %d units > %d limit", e.Used, e.Limit)
}

// IsBudgetExceeded reports whether err is a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
