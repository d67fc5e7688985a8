package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/solforge/internal/ir"
)

// TraceSnapshot is the golden form of a scenario run. Compute units are
// left out so that cost tuning does not churn fixtures.
type TraceSnapshot struct {
	Scenario string         `json:"scenario"`
	Pass     bool           `json:"pass"`
	Trace    []SnapshotStep `json:"trace"`
}

// SnapshotStep is one flow step of a TraceSnapshot.
type SnapshotStep struct {
	Step   int      `json:"step"`
	Invoke string   `json:"invoke"`
	Slot   uint64   `json:"slot"`
	Events []string `json:"events,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Snapshot builds the golden form of result.
func Snapshot(name string, result *Result) TraceSnapshot {
	s := TraceSnapshot{Scenario: name, Pass: result.Pass, Trace: make([]SnapshotStep, len(result.Trace))}
	for i, ev := range result.Trace {
		step := SnapshotStep{Step: ev.Step, Invoke: ev.Invoke, Slot: ev.Slot, Error: ev.Error}
		for _, e := range ev.Events {
			step.Events = append(step.Events, e.Name)
		}
		s.Trace[i] = step
	}
	return s
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := ir.MarshalCanonical(Snapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
