package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind partitions pipeline failures so callers can branch without
// matching on message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindProviderRequest
	KindProviderResponse
	KindSchemaValidation
	KindSchemaNotFound
	KindArtifactNotFound
	KindDiversityBlocked
	KindPhase
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindProviderRequest:
		return "provider_request"
	case KindProviderResponse:
		return "provider_response"
	case KindSchemaValidation:
		return "schema_validation"
	case KindSchemaNotFound:
		return "schema_not_found"
	case KindArtifactNotFound:
		return "artifact_not_found"
	case KindDiversityBlocked:
		return "diversity_blocked"
	case KindPhase:
		return "phase"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ProviderRequestError covers network failures, timeouts and non-200 replies.
type ProviderRequestError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderRequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s request failed", e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *ProviderRequestError) Unwrap() error { return e.Err }

// ProviderResponseError means the provider answered 200 with an envelope
// that lacks the expected content path.
type ProviderResponseError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s response invalid: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s response invalid: %s", e.Provider, e.Message)
}

func (e *ProviderResponseError) Unwrap() error { return e.Err }

// SchemaValidationError means output failed its contract even after repair.
type SchemaValidationError struct {
	Schema     string
	Violations []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("output does not satisfy schema %s: %s", e.Schema, strings.Join(e.Violations, "; "))
}

// SchemaNotFoundError is returned when no schema is registered under a name.
type SchemaNotFoundError struct {
	Name string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("schema not found: %s", e.Name)
}

// ArtifactNotFoundError means an expected upstream artifact is missing.
type ArtifactNotFoundError struct {
	RunID string
	Phase string
	Type  string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: run=%s phase=%s type=%s", e.RunID, e.Phase, e.Type)
}

// DiversityGateBlocked is a gating outcome, not a fault: synthesis may be
// retried once the evidence base improves.
type DiversityGateBlocked struct {
	RunID            string
	Status           DiversityStatus
	CriticalFailures []string
}

func (e *DiversityGateBlocked) Error() string {
	return fmt.Sprintf("synthesis blocked by diversity gate (%s): %s", e.Status, strings.Join(e.CriticalFailures, ", "))
}

// PhaseError carries the phase, run and structured context of a step failure.
type PhaseError struct {
	Phase   string
	RunID   string
	Message string
	Context map[string]any
	Err     error
}

func (e *PhaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("phase %s failed: %s: %v", e.Phase, e.Message, e.Err)
	}
	return fmt.Sprintf("phase %s failed: %s", e.Phase, e.Message)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// RunCancelledError is returned when a cancellation was observed at a phase boundary.
type RunCancelledError struct {
	RunID string
}

func (e *RunCancelledError) Error() string { return "run cancelled" }

// KindOf classifies err. The innermost typed cause wins over a wrapping PhaseError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var (
		cancelled *RunCancelledError
		req       *ProviderRequestError
		resp      *ProviderResponseError
		invalid   *SchemaValidationError
		noSchema  *SchemaNotFoundError
		missing   *ArtifactNotFoundError
		blocked   *DiversityGateBlocked
		phase     *PhaseError
	)
	switch {
	case errors.As(err, &cancelled):
		return KindCancelled
	case errors.As(err, &req):
		return KindProviderRequest
	case errors.As(err, &resp):
		return KindProviderResponse
	case errors.As(err, &invalid):
		return KindSchemaValidation
	case errors.As(err, &noSchema):
		return KindSchemaNotFound
	case errors.As(err, &missing):
		return KindArtifactNotFound
	case errors.As(err, &blocked):
		return KindDiversityBlocked
	case errors.As(err, &phase):
		return KindPhase
	}
	return KindUnknown
}

// Retryable reports whether a later attempt of the same work can succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProviderRequest, KindProviderResponse, KindSchemaValidation:
		return true
	}
	return false
}

// MaxErrorMessageLen bounds run-level error messages persisted for operators.
const MaxErrorMessageLen = 500

// TruncateMessage shortens msg to at most n runes.
func TruncateMessage(msg string, n int) string {
	r := []rune(msg)
	if len(r) <= n {
		return msg
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
