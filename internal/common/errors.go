package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Credential resolution.
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("credential rejected")

	// ErrServiceUnavailable means a backing store fault, not a credential or
	// balance problem. Callers may retry.
	ErrServiceUnavailable = errors.New("service unavailable")

	// Ledger errors.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAccountNotFound     = errors.New("account not found")
	ErrCaptureFailed       = errors.New("capture failed")

	// Request validation.
	ErrValidation = errors.New("validation error")

	// ErrEngineUnavailable is returned when a model-backed collaborator
	// (embedder, classifier) is not configured or cannot be reached.
	ErrEngineUnavailable = errors.New("engine not available")
)
