package scan

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoFiles is returned by Start when there is nothing to scan.
	ErrNoFiles = errors.New("no files to scan")

	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("scan already in progress")

	// ErrUnsupportedFile rejects uploads outside AllowedExtensions.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrUnknownFlag rejects configuration keys outside Flags.
	ErrUnknownFlag = errors.New("unknown scan flag")

	// ErrInvalidCheckpoints rejects malformed checkpoint sequences.
	ErrInvalidCheckpoints = errors.New("invalid checkpoints")
)

// ErrorKind classifies why a scan ended without completing.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindAnalysisTimeout ErrorKind = "analysis_timeout"
	KindPartialFailure  ErrorKind = "partial_failure"
	KindInternal        ErrorKind = "internal_error"
)

// Error is the terminal error of a failed run. Partial holds any findings
// the analyzer produced before failing.
type Error struct {
	Kind    ErrorKind
	Err     error
	Partial []Finding
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindAnalysisTimeout
	case errors.Is(err, ErrUnsupportedFile), errors.Is(err, ErrNoFiles):
		return KindInvalidInput
	}
	return KindInternal
}

// asScanError wraps any analyzer error into an *Error, keeping partial
// findings when the analyzer returned some alongside the error.
func asScanError(err error, partial []Finding) *Error {
	var se *Error
	if errors.As(err, &se) {
		if se.Partial == nil && len(partial) > 0 {
			se.Partial = partial
		}
		return se
	}
	kind := KindOf(err)
	if kind == KindInternal && len(partial) > 0 {
		kind = KindPartialFailure
	}
	return &Error{Kind: kind, Err: err, Partial: partial}
}
