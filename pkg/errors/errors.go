// Package errors provides error wrapping utilities and the error kinds
// surfaced by snapshot orchestration.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Kind classifies a failure so callers can react without string matching.
type Kind string

const (
	KindConnectivity     Kind = "connectivity"
	KindAuthentication   Kind = "authentication"
	KindParse            Kind = "parse"
	KindVolumeNotFound   Kind = "volume_not_found"
	KindSnapshotCreation Kind = "snapshot_creation"
	KindState            Kind = "state"
)

// Error is a kinded error. Use IsKind to recover the kind from a wrapped chain.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a kinded error from a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: stderrors.New(msg)}
}

// Newf builds a kinded error from a format string.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithKind attaches a kind to an existing error. Returns nil for nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// OrchestrationError is returned by a snapshot run that failed partway. It
// records the last stage that completed so operators know how far the run
// got before re-invoking it.
type OrchestrationError struct {
	LastCompletedStage string
	Err                error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed after stage %q: %v", e.LastCompletedStage, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}
