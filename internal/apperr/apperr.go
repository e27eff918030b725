// Package apperr carries the photobooth error taxonomy.
//
// Every failure that leaves a core package resolves to one of the kinds below.
// Callers test with errors.Is against the exported sentinels, which match any
// *Error of the same kind regardless of message or cause.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error category.
type Kind string

const (
	KindSourceNotReady Kind = "source_not_ready"
	KindCaptureFailed  Kind = "capture_failed"
	KindLoadFailed     Kind = "load_failed"
	KindExportBlocked  Kind = "export_blocked"
	KindSequenceBusy   Kind = "sequence_busy"
)

// Recoverable reports whether the user can simply retry.
func (k Kind) Recoverable() bool {
	switch k {
	case KindSourceNotReady, KindCaptureFailed, KindLoadFailed, KindSequenceBusy:
		return true
	default:
		return false
	}
}

// Error is a categorized error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrSourceNotReady = &Error{Kind: KindSourceNotReady, Message: "video source not ready"}
	ErrCaptureFailed  = &Error{Kind: KindCaptureFailed, Message: "capture failed"}
	ErrLoadFailed     = &Error{Kind: KindLoadFailed, Message: "image load failed"}
	ErrExportBlocked  = &Error{Kind: KindExportBlocked, Message: "export blocked: canvas is tainted by a cross-origin image"}
	ErrSequenceBusy   = &Error{Kind: KindSequenceBusy, Message: "capture sequence already running"}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
