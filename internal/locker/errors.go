package locker

import "errors"

// Domain errors for the locker package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, locker.ErrLockerNotFound) {
//	    // handle unknown locker
//	}
var (
	// ErrLockerNotFound is returned when a locker id or index is not configured.
	ErrLockerNotFound = errors.New("locker: not found")

	// ErrEmptyConfiguration is returned when a registry is built with no lockers.
	ErrEmptyConfiguration = errors.New("locker: empty configuration")

	// ErrDuplicateLockerID is returned when the configured id list repeats an id.
	ErrDuplicateLockerID = errors.New("locker: duplicate id")

	// ErrInvalidLockerID is returned when a configured id is empty.
	ErrInvalidLockerID = errors.New("locker: invalid id")

	// ErrInvalidState is returned when a state value is not recognised.
	ErrInvalidState = errors.New("locker: invalid state")
)
