package session

import "errors"

// Domain errors for the session package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, session.ErrNotConnected) {
//	    // no transport connection right now
//	}
var (
	// ErrMalformedEnvelope is returned when an inbound frame fits
	// neither supported wire framing. The frame is dropped; the session
	// is unaffected.
	ErrMalformedEnvelope = errors.New("session: malformed envelope")

	// ErrNotConnected is returned when a message is emitted while the
	// transport is down.
	ErrNotConnected = errors.New("session: not connected")

	// ErrSessionClosed is returned when the client is used after Close.
	ErrSessionClosed = errors.New("session: closed")
)
