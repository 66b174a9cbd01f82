package tablesession

import (
	"errors"
	"fmt"
)

// Kind classifies how an error is surfaced to clients.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindStateConflict
	KindPersistence
	KindInternal
)

// Code is a machine-readable error code sent on the wire.
type Code string

const (
	CodeInvalidCommand     Code = "INVALID_COMMAND"
	CodeInvalidItem        Code = "INVALID_ITEM"
	CodeInvalidParticipant Code = "INVALID_PARTICIPANT"
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyCovered     Code = "ALREADY_COVERED"
	CodeOverAssigned       Code = "OVER_ASSIGNED"
	CodeParticipantBusy    Code = "PARTICIPANT_BUSY"
	CodeNotJoined          Code = "NOT_JOINED"
	CodeSessionNotFound    Code = "SESSION_NOT_FOUND"

	CodeSessionLocked Code = "SESSION_LOCKED"
	CodeAlreadyClosed Code = "ALREADY_CLOSED"
	CodeNotLocked     Code = "NOT_LOCKED"
	CodeNotValidated  Code = "NOT_VALIDATED"

	CodePersistence Code = "PERSISTENCE_FAILED"
	CodeInternal    Code = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable reports whether the client may resend the same command.
func (e *Error) Retryable() bool { return e.Kind == KindPersistence }

var (
	ErrInvalidCommand     = &Error{Kind: KindValidation, Code: CodeInvalidCommand, Message: "invalid command"}
	ErrInvalidItem        = &Error{Kind: KindValidation, Code: CodeInvalidItem, Message: "order item not found or doesn't belong to this session"}
	ErrInvalidParticipant = &Error{Kind: KindValidation, Code: CodeInvalidParticipant, Message: "participant not found in this session"}
	ErrInvalidAmount      = &Error{Kind: KindValidation, Code: CodeInvalidAmount, Message: "amount must not be negative"}
	ErrNotFound           = &Error{Kind: KindValidation, Code: CodeNotFound, Message: "assignment not found"}
	ErrAlreadyCovered     = &Error{Kind: KindValidation, Code: CodeAlreadyCovered, Message: "participant is already covered on this item"}
	ErrOverAssigned       = &Error{Kind: KindValidation, Code: CodeOverAssigned, Message: "assigned total would exceed the item price"}
	ErrParticipantBusy    = &Error{Kind: KindValidation, Code: CodeParticipantBusy, Message: "participant still has assignments"}
	ErrNotJoined          = &Error{Kind: KindValidation, Code: CodeNotJoined, Message: "join the session first"}
	ErrSessionNotFound    = &Error{Kind: KindValidation, Code: CodeSessionNotFound, Message: "session not found"}

	ErrSessionLocked = &Error{Kind: KindStateConflict, Code: CodeSessionLocked, Message: "session is locked, assignments cannot be modified"}
	ErrAlreadyClosed = &Error{Kind: KindStateConflict, Code: CodeAlreadyClosed, Message: "session is already closed"}
	ErrNotLocked     = &Error{Kind: KindStateConflict, Code: CodeNotLocked, Message: "session is not locked"}
	ErrNotValidated  = &Error{Kind: KindStateConflict, Code: CodeNotValidated, Message: "assignments must be fully validated before finalizing"}

	ErrActorStopped = &Error{Kind: KindInternal, Code: CodeInternal, Message: "session is restarting, reconnect"}
)

func invalidCommand(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: CodeInvalidCommand, Message: fmt.Sprintf(format, args...)}
}

func persistenceError(op string, err error) *Error {
	return &Error{
		Kind:    KindPersistence,
		Code:    CodePersistence,
		Message: "could not save changes, please retry",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

// AsError coerces err into an *Error, treating unknown errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}
