// Package apperr classifies the failures the marketplace reports to callers.
package apperr

import (
	"errors"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	Validation
	NotFound
	AlreadyDecided
	AuthFailure
	RemoteWrite
	Conflict
	Forbidden
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation failed"
	case NotFound:
		return "not found"
	case AlreadyDecided:
		return "already decided"
	case AuthFailure:
		return "authentication failed"
	case RemoteWrite:
		return "remote write failed"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown error"
	}
}

// Error carries a Kind together with the operation and, for validation
// failures, the offending field.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func sentinel(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

var (
	ErrInvalidOffer         = sentinel(Validation, "invalid offer")
	ErrCardMissing          = sentinel(NotFound, "card not found")
	ErrUserMissing          = sentinel(NotFound, "user not found")
	ErrRequestNotFound      = sentinel(NotFound, "swap request not found")
	ErrTransactionNotFound  = sentinel(NotFound, "swap transaction not found")
	ErrAlreadyDecided       = sentinel(AlreadyDecided, "swap request has already been decided")
	ErrListingClosed        = sentinel(Conflict, "listing is no longer open for swaps")
	ErrAlreadyRated         = sentinel(Conflict, "transaction has already been rated by this user")
	ErrIdempotencyKeyReused = sentinel(Validation, "idempotency key was already used for a different request")
	ErrUnverified           = sentinel(AuthFailure, "account email has not been verified")
	ErrInvalidCredentials   = sentinel(AuthFailure, "invalid email or password")
)

// E wraps err with kind and op.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid reports a validation failure on a single input field.
func Invalid(op, field, msg string) error {
	return &Error{Kind: Validation, Op: op, Field: field, Err: errors.New(msg)}
}

// Wrap attaches op to err while keeping the kind of an inner *Error.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf returns the first known Kind in err's chain. Errors that carry no
// Kind are treated as failed remote calls.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		if e.Kind != KindUnknown {
			return e.Kind
		}
		err = e.Err
	}
	return RemoteWrite
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is err's text without operation prefixes, for showing to users.
func Message(err error) string {
	if err == nil {
		return ""
	}
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}
	inner := e.Kind.String()
	if e.Err != nil {
		inner = Message(e.Err)
	}
	if e.Field != "" {
		return e.Field + ": " + inner
	}
	return inner
}
