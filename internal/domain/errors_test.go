package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestKindOfPrefersInnerCause(t *testing.T) {
	cause := &ProviderRequestError{Provider: "openai", StatusCode: 502}
	err := &PhaseError{Phase: "NB3", RunID: "r1", Message: "model call", Err: cause}
	wrapped := fmt.Errorf("pipeline: %w", err)

	if got := KindOf(wrapped); got != KindProviderRequest {
		t.Fatalf("expected provider_request, got %s", got)
	}
	if !Retryable(wrapped) {
		t.Fatalf("expected provider failure to be retryable")
	}

	var pe *PhaseError
	if !errors.As(wrapped, &pe) || pe.Phase != "NB3" {
		t.Fatalf("expected phase error to be reachable, got %v", pe)
	}
}

func TestKindOfTerminalKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{&SchemaNotFoundError{Name: "nb99"}, KindSchemaNotFound},
		{&ArtifactNotFoundError{RunID: "r", Phase: "NB1", Type: "x"}, KindArtifactNotFound},
		{&DiversityGateBlocked{RunID: "r", Status: DiversityCritical}, KindDiversityBlocked},
		{&RunCancelledError{RunID: "r"}, KindCancelled},
		{&PhaseError{Phase: "NB1", Message: "bad"}, KindPhase},
		{errors.New("plain"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("%v: expected %s, got %s", tc.err, tc.kind, got)
		}
		if Retryable(tc.err) {
			t.Fatalf("%v: expected not retryable", tc.err)
		}
	}
}

func TestTruncateMessage(t *testing.T) {
	long := strings.Repeat("é", 600)
	got := TruncateMessage(long, MaxErrorMessageLen)
	if utf8.RuneCountInString(got) != MaxErrorMessageLen {
		t.Fatalf("expected %d runes, got %d", MaxErrorMessageLen, utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
	if TruncateMessage("short", 10) != "short" {
		t.Fatalf("short messages must be untouched")
	}
}
