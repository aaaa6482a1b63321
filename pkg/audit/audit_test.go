// Package audit provides tests for the audit logging components.
package audit

import (
	"encoding/json"
	"testing"
	"time"
)

// TestNewEntry verifies that the Builder correctly constructs an Entry with all fields set.
func TestNewEntry(t *testing.T) {
	entry := NewEntry().
		Service("simcore").
		Method("Run").
		Action(ActionSolve).
		Outcome(OutcomeSuccess).
		Run("run-123", 4).
		Progress(90, false).
		Duration(100 * time.Millisecond).
		Meta("key1", "value1").
		Build()

	if entry.Service != "simcore" {
		t.Errorf("expected service 'simcore', got %s", entry.Service)
	}
	if entry.Method != "Run" {
		t.Errorf("expected method 'Run', got %s", entry.Method)
	}
	if entry.Action != ActionSolve {
		t.Errorf("expected action SOLVE, got %s", entry.Action)
	}
	if entry.Outcome != OutcomeSuccess {
		t.Errorf("expected outcome SUCCESS, got %s", entry.Outcome)
	}
	if entry.RunID != "run-123" {
		t.Errorf("expected runID 'run-123', got %s", entry.RunID)
	}
	if entry.ScenarioCount != 4 {
		t.Errorf("expected scenarioCount 4, got %d", entry.ScenarioCount)
	}
	if entry.StepsRun != 90 {
		t.Errorf("expected stepsRun 90, got %d", entry.StepsRun)
	}
	if entry.Cancelled {
		t.Error("expected cancelled to be false")
	}
	if entry.DurationMs != 100 {
		t.Errorf("expected durationMs 100, got %d", entry.DurationMs)
	}
	if entry.Metadata["key1"] != "value1" {
		t.Errorf("expected metadata key1='value1', got %v", entry.Metadata["key1"])
	}
	if entry.ID == "" {
		t.Error("expected ID to be generated")
	}
}

// TestBuilder_Progress_Cancelled verifies that a cancelled run is recorded as such.
func TestBuilder_Progress_Cancelled(t *testing.T) {
	entry := NewEntry().
		Service("simcore").
		Method("Run").
		Action(ActionSolve).
		Outcome(OutcomeFailure).
		Run("run-456", 2).
		Progress(12, true).
		Build()

	if !entry.Cancelled {
		t.Error("expected cancelled to be true")
	}
	if entry.StepsRun != 12 {
		t.Errorf("expected stepsRun 12, got %d", entry.StepsRun)
	}
}

// TestBuilder_Error verifies that the Error method correctly sets error fields on an Entry.
func TestBuilder_Error(t *testing.T) {
	entry := NewEntry().
		Service("simcore").
		Method("Run").
		Action(ActionSolve).
		Outcome(OutcomeFailure).
		Error("INFEASIBLE_STEP", "no feasible solution at step 12").
		Build()

	if entry.ErrorCode != "INFEASIBLE_STEP" {
		t.Errorf("expected errorCode 'INFEASIBLE_STEP', got %s", entry.ErrorCode)
	}
	if entry.ErrorMessage != "no feasible solution at step 12" {
		t.Errorf("expected errorMessage 'no feasible solution at step 12', got %s", entry.ErrorMessage)
	}
}

// TestEntry_MarshalJSON verifies that Entry can be marshaled and unmarshaled to/from JSON correctly.
func TestEntry_MarshalJSON(t *testing.T) {
	entry := NewEntry().
		Service("simcore").
		Method("Run").
		Action(ActionSolve).
		Outcome(OutcomeSuccess).
		Run("run-789", 1).
		Build()

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("failed to marshal entry: %v", err)
	}

	var decoded Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal entry: %v", err)
	}

	if decoded.Service != entry.Service {
		t.Errorf("expected service %s, got %s", entry.Service, decoded.Service)
	}
	if decoded.Action != entry.Action {
		t.Errorf("expected action %s, got %s", entry.Action, decoded.Action)
	}
	if decoded.RunID != entry.RunID {
		t.Errorf("expected runID %s, got %s", entry.RunID, decoded.RunID)
	}
}

// TestDefaultConfig verifies that DefaultConfig returns a Config with expected default values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("expected enabled to be true by default")
	}
	if cfg.Backend != "stdout" {
		t.Errorf("expected backend 'stdout', got %s", cfg.Backend)
	}
	if cfg.BufferSize != 1000 {
		t.Errorf("expected buffer size 1000, got %d", cfg.BufferSize)
	}
	if cfg.FlushPeriod != 5*time.Second {
		t.Errorf("expected flush period 5s, got %v", cfg.FlushPeriod)
	}
}

// TestAction_Constants verifies the string representation of Action constants.
func TestAction_Constants(t *testing.T) {
	actions := []struct {
		action   Action
		expected string
	}{
		{ActionSolve, "SOLVE"},
		{ActionAnalyze, "ANALYZE"},
	}

	for _, tc := range actions {
		if string(tc.action) != tc.expected {
			t.Errorf("expected action %s, got %s", tc.expected, tc.action)
		}
	}
}

// TestOutcome_Constants verifies the string representation of Outcome constants.
func TestOutcome_Constants(t *testing.T) {
	outcomes := []struct {
		outcome  Outcome
		expected string
	}{
		{OutcomeSuccess, "SUCCESS"},
		{OutcomeFailure, "FAILURE"},
	}

	for _, tc := range outcomes {
		if string(tc.outcome) != tc.expected {
			t.Errorf("expected outcome %s, got %s", tc.expected, tc.outcome)
		}
	}
}

// TestQueryFilter verifies the initialization and basic fields of QueryFilter.
func TestQueryFilter(t *testing.T) {
	now := time.Now()
	filter := &QueryFilter{
		StartTime: &now,
		EndTime:   &now,
		Service:   "simcore",
		Method:    "Run",
		Action:    ActionSolve,
		Outcome:   OutcomeSuccess,
		RunID:     "run-123",
		Limit:     100,
		Offset:    0,
	}

	if filter.Service != "simcore" {
		t.Errorf("expected service 'simcore', got %s", filter.Service)
	}
	if filter.Limit != 100 {
		t.Errorf("expected limit 100, got %d", filter.Limit)
	}
}

// TestGenerateID verifies that generateID produces a non-empty and reasonably structured ID.
func TestGenerateID(t *testing.T) {
	id1 := generateID()

	if id1 == "" {
		t.Error("expected non-empty ID")
	}
	if len(id1) < 10 {
		t.Error("expected ID to have reasonable length")
	}

	// IDs should contain timestamp prefix
	if len(id1) < 14 {
		t.Error("expected ID to contain timestamp")
	}
}
