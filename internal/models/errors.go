package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline error taxonomy.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInput indicates bad or missing user input (URL, text, question count).
	ErrInput = errors.New("invalid input")

	// ErrTranscriptUnavailable indicates the provider has no captions for the
	// source. Terminal: the run never reaches prompt building.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")

	// ErrCompletionUnavailable indicates the completion provider failed on
	// every attempt.
	ErrCompletionUnavailable = errors.New("completion unavailable")

	// ErrSchemaViolation indicates the provider output did not match the quiz
	// contract. The raw response is already on disk when this is returned.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrSinkFailure indicates an output sink (document, deck) failed.
	// Never terminal for a run.
	ErrSinkFailure = errors.New("sink failure")
)

// Error kinds reported to API and CLI callers.
const (
	KindInput                 = "InputError"
	KindTranscriptUnavailable = "TranscriptUnavailable"
	KindCompletionUnavailable = "CompletionUnavailable"
	KindSchemaViolation       = "SchemaViolation"
	KindSinkFailure           = "SinkFailure"
	KindInternal              = "Internal"
)

// Kind maps an error to its taxonomy name. Unknown errors are "Internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrTranscriptUnavailable):
		return KindTranscriptUnavailable
	case errors.Is(err, ErrCompletionUnavailable):
		return KindCompletionUnavailable
	case errors.Is(err, ErrSchemaViolation):
		return KindSchemaViolation
	case errors.Is(err, ErrSinkFailure):
		return KindSinkFailure
	default:
		return KindInternal
	}
}

// snippetLen bounds the offending text carried by a SchemaError.
const snippetLen = 200

// SchemaError describes why a completion could not be turned into a quiz.
// It matches ErrSchemaViolation and unwraps to the underlying parse error.
type SchemaError struct {
	Reason  string
	Snippet string
	Err     error
}

// NewSchemaError builds a SchemaError, bounding the snippet.
func NewSchemaError(reason, offending string, cause error) *SchemaError {
	return &SchemaError{
		Reason:  reason,
		Snippet: Truncate(offending, snippetLen),
		Err:     cause,
	}
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrSchemaViolation, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrSchemaViolation, e.Reason)
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaViolation
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
