// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/repository/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable indicates the secure store is inaccessible.
	// Fatal for any encrypted operation; there is no unencrypted fallback.
	ErrStorageUnavailable = errors.New("secure storage unavailable")

	// ErrDecryption indicates a corrupt or foreign ciphertext blob.
	ErrDecryption = errors.New("decryption failed")

	// ErrEnrichment indicates the AI collaborator failed or timed out.
	// Non-fatal: the record is stored unenriched.
	ErrEnrichment = errors.New("enrichment failed")

	// ErrUnauthorized indicates failed credential verification.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
