// Package errors defines unified error types for retrieval engine operations.
// Backend-specific failures (model, vector store, cache) are mapped to these
// standard error types so callers can decide between aborting, retrying, and
// degrading without inspecting driver errors.
package errors

import (
	"errors"
	"fmt"
)

// RetrievalError represents a standardized error from the retrieval engine.
// It carries enough information for error handling, logging, and the
// degrade-or-fail decision at call sites.
type RetrievalError struct {
	Type      string `json:"type"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Retryable bool   `json:"-"`
	// Fatal marks errors the process cannot recover from, such as a model
	// that failed to load. Nothing retrieval-related can succeed after one.
	Fatal bool  `json:"-"`
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (component=%s): %v", e.Type, e.Message, e.Component, e.Cause)
	}
	return fmt.Sprintf("[%s] %s (component=%s)", e.Type, e.Message, e.Component)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Common error types as constants for consistency.
const (
	TypeModelLoad        = "model_load_error"
	TypeCacheUnavailable = "cache_unavailable_error"
	TypeStoreUnavailable = "store_unavailable_error"
	TypeIngestionBatch   = "ingestion_batch_error"
	TypeInvalidArgument  = "invalid_argument_error"
	TypeTimeout          = "timeout_error"
)

// NewModelLoadError creates a fatal model load error. Retrieval cannot
// function at all without the embedding model, so callers should surface
// this immediately rather than retry.
func NewModelLoadError(model string, cause error) *RetrievalError {
	return &RetrievalError{
		Type:      TypeModelLoad,
		Component: "embedding",
		Message:   fmt.Sprintf("embedding model %q failed to load", model),
		Retryable: false,
		Fatal:     true,
		Cause:     cause,
	}
}

// NewCacheUnavailableError creates a recoverable cache backend error.
// Callers are expected to degrade to cache-miss behavior, not fail.
func NewCacheUnavailableError(cause error) *RetrievalError {
	return &RetrievalError{
		Type:      TypeCacheUnavailable,
		Component: "cache",
		Message:   "cache backend unavailable",
		Retryable: true,
		Cause:     cause,
	}
}

// NewStoreUnavailableError creates a vector store connectivity error.
func NewStoreUnavailableError(cause error) *RetrievalError {
	return &RetrievalError{
		Type:      TypeStoreUnavailable,
		Component: "vectorstore",
		Message:   "vector store unavailable",
		Retryable: true,
		Cause:     cause,
	}
}

// NewInvalidArgumentError creates a non-retryable caller error.
func NewInvalidArgumentError(component, message string) *RetrievalError {
	return &RetrievalError{
		Type:      TypeInvalidArgument,
		Component: component,
		Message:   message,
		Retryable: false,
	}
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(component string, cause error) *RetrievalError {
	return &RetrievalError{
		Type:      TypeTimeout,
		Component: component,
		Message:   "operation timed out",
		Retryable: true,
		Cause:     cause,
	}
}

// IngestionBatchError reports a partial ingestion failure. Batches inserted
// before the failure remain valid and queryable; the caller decides whether
// to retry the remainder. Re-running the same ingest is safe because the
// vector store upserts by chunk id.
type IngestionBatchError struct {
	DocumentID  string
	BatchesDone int
	Inserted    int
	FailedBatch int
	Cause       error
	// EmbedFailure is true when the embedding call failed, false when the
	// store write failed.
	EmbedFailure bool
}

// Error implements the error interface.
func (e *IngestionBatchError) Error() string {
	stage := "store write"
	if e.EmbedFailure {
		stage = "embedding"
	}
	return fmt.Sprintf("[%s] ingestion of document %q aborted at batch %d (%s failed, %d batches / %d chunks inserted): %v",
		TypeIngestionBatch, e.DocumentID, e.FailedBatch, stage, e.BatchesDone, e.Inserted, e.Cause)
}

// Unwrap exposes the underlying cause.
func (e *IngestionBatchError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether err (or anything it wraps) is unrecoverable for
// the process.
func IsFatal(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Fatal
	}
	return false
}

// IsRetryable reports whether err is worth retrying with the same inputs.
func IsRetryable(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Retryable
	}
	var ie *IngestionBatchError
	if errors.As(err, &ie) {
		return true
	}
	return false
}

// IsCacheUnavailable reports whether err is a degradable cache failure.
func IsCacheUnavailable(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Type == TypeCacheUnavailable
	}
	return false
}
