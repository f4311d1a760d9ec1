package app

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientFetch marks fetch failures worth retrying within a tick
	ErrTransientFetch = errors.New("transient fetch error")
	// ErrFatalFetch marks fetch failures that abort the tick immediately
	ErrFatalFetch = errors.New("fatal fetch error")
	// ErrRetriesExhausted is returned when every allowed attempt failed transiently
	ErrRetriesExhausted = errors.New("fetch retries exhausted")
	// ErrDisplayPush wraps any failure reported by the display sink
	ErrDisplayPush = errors.New("display push failed")
)

// FetchKind classifies a failed fetch
type FetchKind int

const (
	FetchTransient FetchKind = iota
	FetchFatal
)

func (k FetchKind) String() string {
	if k == FetchTransient {
		return "transient"
	}
	return "fatal"
}

// FetchError is returned by schedule clients. It matches ErrTransientFetch or
// ErrFatalFetch with errors.Is depending on Kind.
type FetchError struct {
	Kind FetchKind
	Err  error
}

// Transient wraps err as a retryable fetch failure
func Transient(err error) error {
	return &FetchError{Kind: FetchTransient, Err: err}
}

// Fatal wraps err as a non-retryable fetch failure
func Fatal(err error) error {
	return &FetchError{Kind: FetchFatal, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransientFetch:
		return e.Kind == FetchTransient
	case ErrFatalFetch:
		return e.Kind == FetchFatal
	}
	return false
}

// IsTransient reports whether err should be retried. Errors that were not
// classified by the client are treated as fatal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}
