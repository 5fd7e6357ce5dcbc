package actuation

import "errors"

// Domain errors for the actuation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, actuation.ErrAckTimeout) {
//	    // controller did not acknowledge in time
//	}
var (
	// ErrInvalidFrame is returned when a frame cannot be built or parsed.
	ErrInvalidFrame = errors.New("actuation: invalid frame")

	// ErrInvalidIndex is returned when a locker index is out of the
	// channel's configured range.
	ErrInvalidIndex = errors.New("actuation: invalid locker index")

	// ErrInvalidTarget is returned when the requested state is not an
	// actuatable position (only locked and unlocked can be commanded).
	ErrInvalidTarget = errors.New("actuation: invalid target state")

	// ErrAckTimeout is returned when the secondary controller does not
	// acknowledge a command within the configured timeout.
	ErrAckTimeout = errors.New("actuation: acknowledgment timeout")

	// ErrControllerFault is returned when the secondary controller answers
	// a command with an error response.
	ErrControllerFault = errors.New("actuation: controller fault")

	// ErrLinkDown is returned when the link to the secondary controller
	// is not currently established.
	ErrLinkDown = errors.New("actuation: link down")

	// ErrLinkClosed is returned after Close, or when the link fails while
	// a command is waiting for its acknowledgment.
	ErrLinkClosed = errors.New("actuation: link closed")
)
