package handshake

import "errors"

// Domain errors for the handshake package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, handshake.ErrIdentityMismatch) {
//	    // push was addressed to a different device
//	}
var (
	// ErrIdentityMismatch is returned when a configuration push names a
	// different hardware identity. Nothing is mutated.
	ErrIdentityMismatch = errors.New("handshake: identity mismatch")

	// ErrAlreadyConfigured is returned when a push arrives after the
	// module identity is already set. Reprovisioning a live device
	// requires a factory reset first.
	ErrAlreadyConfigured = errors.New("handshake: already configured")

	// ErrInvalidConfiguration is returned when the pushed configuration
	// is malformed or oversized. Nothing is mutated.
	ErrInvalidConfiguration = errors.New("handshake: invalid configuration")

	// ErrApplyFailed is returned when persisting the configuration fails
	// or the read-back verification does not match.
	ErrApplyFailed = errors.New("handshake: apply failed")
)
