// Package apperrors defines the typed error taxonomy shared by every
// component of the retrieval engine.
//
// A single Error type carries category, severity, recoverability and a
// suggested remediation so the RPC boundary can translate any internal
// failure into the wire envelope of SPEC_FULL.md §6.3 without each
// component re-deriving that policy.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind categorizes an error the way SPEC_FULL.md §7 does.
type Kind string

const (
	KindDatabase   Kind = "database"
	KindVector     Kind = "vector"
	KindPersistence Kind = "persistence"
	KindEmbedding  Kind = "embedding"
	KindLLM        Kind = "llm"
	KindValidation Kind = "validation"
	KindNetwork    Kind = "network"
)

// Severity indicates how serious an error is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error is the engine-wide error envelope.
type Error struct {
	Kind            Kind
	Severity        Severity
	Recoverable     bool
	SuggestedAction string
	Component       string
	Operation       string
	RequestID       string
	Timestamp       time.Time
	// Params carries contextual parameters with sensitive fields already
	// redacted by the caller before being attached here.
	Params map[string]any
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Component, e.Operation, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Component, e.Operation, e.Kind)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error, defaulting Timestamp to time.Now if unset.
func New(kind Kind, severity Severity, component, operation string, err error) *Error {
	return &Error{
		Kind:        kind,
		Severity:    severity,
		Component:   component,
		Operation:   operation,
		Recoverable: severity != SeverityCritical,
		Timestamp:   time.Now(),
		Err:         err,
	}
}

// WithAction sets the user-facing suggested remediation and returns e for
// chaining.
func (e *Error) WithAction(action string) *Error {
	e.SuggestedAction = action
	return e
}

// WithRequestID attaches the originating RPC request id.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithParams attaches contextual parameters (already redacted by the caller).
func (e *Error) WithParams(params map[string]any) *Error {
	e.Params = params
	return e
}

// UserMessage derives a short user-facing message from kind and severity,
// per SPEC_FULL.md / spec.md §7.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindPersistence:
		return "Storage is unavailable or out of space. Clear browser storage or export data to free space."
	case KindVector:
		return "The vector search extension is unavailable; recreate the collection."
	case KindEmbedding:
		return "Embedding generation failed; retry or switch providers."
	case KindLLM:
		return "The language model request failed; retry later."
	case KindValidation:
		return "The request was invalid."
	case KindNetwork:
		return "A network request failed; retry later."
	default:
		return "An internal database error occurred."
	}
}

// Is reports whether target is an *Error with the same Kind, supporting
// errors.Is(err, &apperrors.Error{Kind: KindValidation}).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Sentinel errors components may wrap with apperrors.New for quick checks.
var (
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrCollectionExists     = errors.New("collection already exists")
	ErrInvalidDimension     = errors.New("vector dimension mismatch")
	ErrSchemaStale          = errors.New("schema version below minimum supported")
	ErrVectorExtensionMissing = errors.New("vector extension unavailable")
	ErrQuotaExceeded        = errors.New("storage quota exceeded")
	ErrNonASCIIInterpolated = errors.New("non-ASCII SQL text must be bound as a parameter")
	ErrMethodNotFound       = errors.New("method not found")
	ErrTimeout              = errors.New("operation timed out")
	ErrInvalidName          = errors.New("name contains invalid characters")
	ErrEmptyContent         = errors.New("document content must not be empty")
)
