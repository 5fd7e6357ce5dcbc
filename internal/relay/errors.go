package relay

import "errors"

// Domain errors for the relay package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, relay.ErrAlreadyPending) {
//	    // a command is still in flight for this locker
//	}
var (
	// ErrAlreadyPending is returned when a command is issued for a locker
	// that already has one in flight.
	ErrAlreadyPending = errors.New("relay: command already pending")

	// ErrUnknownLocker is returned when a command names a locker that is
	// not in the registry.
	ErrUnknownLocker = errors.New("relay: unknown locker")

	// ErrRelayClosed is returned when a command is issued after Close.
	ErrRelayClosed = errors.New("relay: closed")
)
