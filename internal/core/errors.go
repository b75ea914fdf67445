package core

import (
	"errors"
	"fmt"
)

var (
	// ErrCursorInvalidated is matched by provider errors reporting that a sync
	// token can no longer be used and a full sync is required.
	ErrCursorInvalidated = errors.New("sync cursor invalidated")
	// ErrCredentials is matched by provider errors caused by expired or revoked
	// authorization.
	ErrCredentials = errors.New("provider credentials rejected")
	// ErrTransient is matched by every other provider failure.
	ErrTransient = errors.New("provider request failed")
)

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindCursorInvalidated
	KindCredentials
)

func (k ErrorKind) String() string {
	switch k {
	case KindCursorInvalidated:
		return "cursor_invalidated"
	case KindCredentials:
		return "credentials"
	default:
		return "transient"
	}
}

// ProviderError is the error type returned by provider adapters.
type ProviderError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewProviderError wraps err with a classification.
func NewProviderError(kind ErrorKind, op string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrCursorInvalidated:
		return e.Kind == KindCursorInvalidated
	case ErrCredentials:
		return e.Kind == KindCredentials
	case ErrTransient:
		return e.Kind == KindTransient
	}
	return false
}

// KindOf classifies any error. Errors that are not provider errors are
// transient.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}
