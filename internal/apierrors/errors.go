// Package apierrors defines the typed error kind the orchestration core
// surfaces to callers, mirroring the teacher's AppError pattern but closed
// over the kind set the discussion command surface needs.
package apierrors

import (
	"errors"
	"fmt"

	v1 "github.com/kandev/discussord/pkg/api/v1"
)

// Error is a typed, wrappable error carrying one of the closed ErrorKind values.
type Error struct {
	Kind    v1.ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind v1.ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func NotFound(message string) *Error            { return newErr(v1.ErrNotFound, message) }
func InvalidState(message string) *Error        { return newErr(v1.ErrInvalidState, message) }
func InvalidConfig(message string) *Error        { return newErr(v1.ErrInvalidConfig, message) }
func ParticipantNotFound(message string) *Error { return newErr(v1.ErrParticipantNotFound, message) }
func ParticipantInactive(message string) *Error { return newErr(v1.ErrParticipantInactive, message) }
func NotYourTurn(message string) *Error         { return newErr(v1.ErrNotYourTurn, message) }
func LimitExceeded(message string) *Error       { return newErr(v1.ErrLimitExceeded, message) }

// StoreError wraps an underlying storage port error as STORE_ERROR.
func StoreError(err error) *Error {
	return &Error{Kind: v1.ErrStoreError, Message: "storage operation failed", Err: err}
}

// BusError wraps an underlying event bus error as BUS_ERROR.
func BusError(err error) *Error {
	return &Error{Kind: v1.ErrBusError, Message: "event bus operation failed", Err: err}
}

// Wrap preserves an existing *Error's kind, or wraps a plain error as an
// internal store error if it isn't already one of ours.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return &Error{Kind: ae.Kind, Message: message, Err: ae}
	}
	return &Error{Kind: v1.ErrStoreError, Message: message, Err: err}
}

// Kind extracts the ErrorKind from err, defaulting to STORE_ERROR if err
// isn't one of ours.
func Kind(err error) v1.ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return v1.ErrStoreError
}

func Is(err error, kind v1.ErrorKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
