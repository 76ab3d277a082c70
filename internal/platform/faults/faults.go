// Package faults defines the error taxonomy shared across the ingestion and
// retrieval pipelines. Upstream failures are split into transient (retry with
// backoff) and permanent (surface immediately); consistency violations mark
// the affected unit failed without touching shared state.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunkConfig rejects chunker configurations that cannot make progress.
	ErrInvalidChunkConfig = errors.New("invalid chunk config")

	// ErrEmbeddingUnavailable is a transient embedding-service failure.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrEmbeddingRejected is a permanent embedding failure (e.g. oversized input).
	ErrEmbeddingRejected = errors.New("embedding input rejected")

	// ErrExtractionUnavailable is a transient extraction-service failure.
	ErrExtractionUnavailable = errors.New("extraction service unavailable")

	// ErrGenerationUnavailable is a transient answer-generation failure.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrConversionFailed means a media blob could not be turned into text.
	ErrConversionFailed = errors.New("media conversion failed")

	// ErrConsistency marks state that violates a pipeline invariant
	// (chunk ordinal gap, merge collision beyond policy).
	ErrConsistency = errors.New("consistency violation")

	// ErrNotFound is the generic missing-resource sentinel.
	ErrNotFound = errors.New("not found")
)

// UpstreamError wraps a failure from an external collaborator with its
// retryability classification.
type UpstreamError struct {
	Service   string
	Status    int
	Transient bool
	Err       error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ""
	}
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s upstream failure (%s): %v", kind, e.Service, e.Err)
	}
	return fmt.Sprintf("%s upstream failure (%s, status %d)", kind, e.Service, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) HTTPStatusCode() int { return e.Status }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrExtractionUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable)
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return !ue.Transient
	}
	return errors.Is(err, ErrEmbeddingRejected)
}
