package identity

import "errors"

// Domain errors for the identity package.
var (
	// ErrNoHardwareID is returned when no network interface provides a
	// usable MAC address to derive the hardware id from.
	ErrNoHardwareID = errors.New("identity: no hardware id source found")
)
