package common

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Kind classifies the failures returned by the domain services.
type Kind int

const (
	KindStoreFailure Kind = iota
	KindNotFound
	KindConflict
	KindBadCredentials
	KindForbidden
	KindLastAdminProtected
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindBadCredentials:
		return "bad credentials"
	case KindForbidden:
		return "forbidden"
	case KindLastAdminProtected:
		return "last admin protected"
	default:
		return "store failure"
	}
}

// Error is the typed failure of a domain operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, op string) error {
	return &Error{Kind: kind, Op: op}
}

func NotFound(op string) error           { return E(KindNotFound, op) }
func Conflict(op string) error           { return E(KindConflict, op) }
func BadCredentials(op string) error     { return E(KindBadCredentials, op) }
func Forbidden(op string) error          { return E(KindForbidden, op) }
func LastAdminProtected(op string) error { return E(KindLastAdminProtected, op) }

// FromStore classifies a gorm error. Lookups that find nothing become
// NotFound, unique index violations become Conflict, the rest StoreFailure.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Op: op, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Op: op, Err: err}
	default:
		return &Error{Kind: KindStoreFailure, Op: op, Err: errors.WithStack(err)}
	}
}

// KindOf returns the kind carried by err; untyped errors are store failures.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindStoreFailure
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
