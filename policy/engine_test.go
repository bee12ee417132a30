package policy

import (
	"context"
	"testing"
)

func TestSynthesisClearance(t *testing.T) {
	ctx := context.Background()
	e, err := NewDefaultEngine(ctx)
	if err != nil {
		t.Fatalf("NewDefaultEngine: %v", err)
	}

	cases := []struct {
		status string
		crit   int
		strict bool
		want   string
	}{
		{"PASS", 0, false, "CLEARED"},
		{"PASS", 0, true, "CLEARED"},
		{"NEEDS_REBALANCE", 0, false, "CONDITIONAL"},
		{"NEEDS_REBALANCE", 0, true, "BLOCKED"},
		{"CRITICAL", 2, false, "BLOCKED"},
	}
	for _, tc := range cases {
		got, reason, err := e.SynthesisClearance(ctx, tc.status, tc.crit, tc.strict)
		if err != nil {
			t.Fatalf("SynthesisClearance(%s): %v", tc.status, err)
		}
		if got != tc.want {
			t.Fatalf("SynthesisClearance(%s, strict=%v) = %s, want %s", tc.status, tc.strict, got, tc.want)
		}
		if reason == "" {
			t.Fatalf("expected a reason for %s", tc.status)
		}
	}
}

func TestPhaseFailureAction(t *testing.T) {
	ctx := context.Background()
	e, err := NewDefaultEngine(ctx)
	if err != nil {
		t.Fatalf("NewDefaultEngine: %v", err)
	}

	cases := []struct {
		failed, max int
		strict      bool
		want        string
	}{
		{1, 0, false, ActionContinue},
		{5, 0, false, ActionContinue},
		{2, 3, false, ActionContinue},
		{3, 3, false, ActionStop},
		{1, 0, true, ActionStop},
	}
	for _, tc := range cases {
		got, _, err := e.PhaseFailureAction(ctx, "NB3", tc.failed, tc.max, tc.strict)
		if err != nil {
			t.Fatalf("PhaseFailureAction: %v", err)
		}
		if got != tc.want {
			t.Fatalf("PhaseFailureAction(failed=%d, max=%d, strict=%v) = %s, want %s", tc.failed, tc.max, tc.strict, got, tc.want)
		}
	}
}

func TestCustomPolicyStringDecision(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, `
package pipeline

synthesis_clearance = "CONDITIONAL"
phase_failure_action = "stop"
`)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	got, _, err := e.SynthesisClearance(ctx, "CRITICAL", 1, false)
	if err != nil || got != "CONDITIONAL" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, _, err = e.PhaseFailureAction(ctx, "NB1", 1, 0, false)
	if err != nil || got != ActionStop {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestInvalidPolicy(t *testing.T) {
	if _, err := NewEngine(context.Background(), "package pipeline\nthis is not rego"); err == nil {
		t.Fatalf("expected prepare error")
	}
}
