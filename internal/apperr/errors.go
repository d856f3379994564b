// Package apperr defines the typed error kinds the orchestration core can
// raise, per the error handling design: every externally-visible failure
// carries a stable kind, a human message, and optional structured details,
// while the underlying cause is preserved for logs via pkg/errors.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the failure categories core operations can surface.
type Kind string

const (
	CityNotFound                Kind = "city_not_found"
	POINotFound                 Kind = "poi_not_found"
	ItineraryGenerationFailed   Kind = "itinerary_generation_failed"
	EditValidationFailed        Kind = "edit_validation_failed"
	SessionNotFound             Kind = "session_not_found"
	ExternalProviderUnavailable Kind = "external_provider_unavailable"
	EvaluationFailed            Kind = "evaluation_failed"
	RateLimited                 Kind = "rate_limited"
	Timeout                     Kind = "timeout"
	ValidationError             Kind = "validation_error"
)

// Error is the typed error surfaced from orchestrator operations.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap constructs an Error wrapping cause with stack context via pkg/errors,
// so the original failure site survives propagation through the provider
// chain, builder, and dialogue layers.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
