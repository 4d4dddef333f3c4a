// Package exception provides the error type shared by the ingestion pipeline and the API.
// Every error that crosses a component boundary is a BatchError carrying the module that
// raised it and a Kind from a small, fixed taxonomy. Callers branch on the Kind
// (KindOf, IsKind) instead of inspecting driver- or parser-specific error values.
package exception

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	// KindConnection covers failures to reach or keep a connection to the sink.
	KindConnection Kind = "connection"
	// KindParse covers malformed source rows.
	KindParse Kind = "parse"
	// KindValidation covers request payloads that violate field or cross-field rules.
	KindValidation Kind = "validation"
	// KindTransactional covers statement or commit failures inside a transaction.
	KindTransactional Kind = "transactional"
	// KindConfig covers invalid or missing configuration.
	KindConfig Kind = "config"
	// KindStopped marks work abandoned because the run was asked to stop.
	KindStopped Kind = "stopped"
	// KindInternal is the fallback for anything unclassified.
	KindInternal Kind = "internal"
)

// BatchError is the error type raised by pipeline and API components.
type BatchError struct {
	// Module indicates where the error occurred (e.g. "reader", "loader", "tuner", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// Kind is the failure class.
	Kind Kind
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
}

// NewBatchError creates a BatchError of the given kind.
func NewBatchError(module string, kind Kind, message string, originalErr error) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		Kind:        kind,
		OriginalErr: originalErr,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message.
// If the last argument is an error it is wrapped instead of being formatted.
//
//	NewBatchErrorf("reader", KindParse, "line %d: bad date", 12, err)
func NewBatchErrorf(module string, kind Kind, format string, a ...interface{}) *BatchError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok {
			originalErr = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, kind, fmt.Sprintf(format, a...), originalErr)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsBatchError reports whether err, or anything it wraps, is a BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// KindOf returns the Kind of the outermost BatchError in err's chain.
// Context cancellation maps to KindStopped; anything else unclassified maps to KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) && be.Kind != "" {
		return be.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindStopped
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether an error should abort a run rather than fail a single batch.
// Configuration problems and stop requests are fatal; row, statement and connection
// failures stay scoped to the batch that hit them.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindStopped:
		return true
	}
	return false
}

// ExtractErrorMessage returns the Message of a BatchError, or err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil && !strings.Contains(be.Message, be.OriginalErr.Error()) {
			return be.Message + ": " + be.OriginalErr.Error()
		}
		return be.Message
	}
	return err.Error()
}
