// Package apperrors defines the typed failures raised by domain services.
// The API layer is the single place that translates them to HTTP responses.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindUnauthorized
	KindBanned
)

// Error is a domain failure with a classification and an optional detail payload.
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a 400-class failure; details usually carries field errors.
func Validation(message string, details any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// NotFound creates a 404-class failure for the named resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// Forbidden creates a 403-class failure.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Conflict creates a 409-class failure.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Unauthorized creates a 401-class failure.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Banned creates a failure carrying the ban reason of a blocked prompt.
func Banned(reason string) *Error {
	return &Error{Kind: KindBanned, Message: "prompt is banned: " + reason, Details: map[string]string{"reason": reason}}
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// DetailsOf extracts the detail payload from err, if any.
func DetailsOf(err error) any {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Details
	}
	return nil
}
