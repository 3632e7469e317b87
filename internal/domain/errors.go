package domain

import "errors"

var (
	// ErrNotFound signals a missing or unpublished study.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals malformed or out-of-range request parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited signals that the embedding rate limit was hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrUnauthorized signals a missing or wrong admin token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStoreUnavailable signals that the record store could not serve the call.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
