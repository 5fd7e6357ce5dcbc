package store

import "errors"

// Domain errors for the store package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrKeyNotFound is returned when a setting key has never been written.
	ErrKeyNotFound = errors.New("store: key not found")

	// ErrCorruptConfiguration is returned when the persisted configuration
	// is internally inconsistent (e.g. locker count without the ids).
	ErrCorruptConfiguration = errors.New("store: corrupt configuration")

	// ErrVerificationFailed is returned when a configuration read back after
	// writing does not match what was written.
	ErrVerificationFailed = errors.New("store: configuration verification failed")
)
