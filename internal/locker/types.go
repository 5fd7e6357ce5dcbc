package locker

import "time"

// State is the known position of a locker's lock.
type State string

// Locker states.
const (
	// StateLocked means the lock is known to be engaged.
	StateLocked State = "locked"

	// StateUnlocked means the lock is known to be released.
	StateUnlocked State = "unlocked"

	// StateUnknown means the position cannot be asserted: initial state,
	// or the last actuation timed out and no status report has
	// disambiguated it yet.
	StateUnknown State = "unknown"
)

// Valid reports whether s is a recognised state.
func (s State) Valid() bool {
	switch s {
	case StateLocked, StateUnlocked, StateUnknown:
		return true
	}
	return false
}

// Locker is one physical compartment managed by this module.
type Locker struct {
	// ID is the backend-assigned locker identifier, unique within the device.
	ID string

	// Index is the 1-based position used by the secondary controller
	// protocol (index 0 is reserved for "all lockers").
	Index int

	// State is the last known lock position.
	State State

	// Occupied is the last occupancy observation, nil if the sensor has
	// not reported yet.
	Occupied *bool

	// LastUpdate is when State or Occupied last changed or was confirmed.
	LastUpdate time.Time
}

// Copy returns a copy of the locker safe for callers to hold.
func (l Locker) Copy() Locker {
	out := l
	if l.Occupied != nil {
		v := *l.Occupied
		out.Occupied = &v
	}
	return out
}
