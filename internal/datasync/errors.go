package datasync

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindAuthFailure        Kind = "auth_failure"
	KindDuplicateEntity    Kind = "duplicate_entity"
	KindRemoteWriteFailure Kind = "remote_write_failure"
	KindRemoteReadFailure  Kind = "remote_read_failure"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
)

const (
	msgNoSession           = "There is no active session."
	msgEmailRegistered     = "This email address is already registered."
	msgClientExists        = "This client already exists."
	msgEmailDifferentRole  = "This email address is already registered with a different role."
	msgRemoteWriteFailure  = "The change could not be saved, please try again."
	msgRemoteReadFailure   = "The data could not be loaded, please try again."
	msgUnknownExerciseName = "Unknown exercise"
)

var ErrSessionClosed = errors.New("session closed")

// Error is returned by every Layer operation that fails.
// Message is safe to show to the end user.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a Layer error, or "" for any other error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func invalidInput(op, message string) *Error {
	return newError(KindInvalidInput, op, message, nil)
}
