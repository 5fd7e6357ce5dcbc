package actuation

import (
	"context"
	"fmt"

	"github.com/ferndale-systems/locknode/internal/locker"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger discards all log output. Used when no logger is set.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Channel abstracts the physical unlock/lock operation for one device.
//
// Two interchangeable strategies exist, selected at construction time:
//   - Direct: the lock hardware is driven locally and synchronously
//   - Relayed: commands cross a byte-oriented link to a secondary
//     controller and an acknowledgment is awaited with a bounded timeout
type Channel interface {
	// SetState drives the locker at the given 1-based index to the target
	// position and returns the applied state.
	SetState(ctx context.Context, index int, target locker.State) (locker.State, error)

	// Close releases the channel's resources.
	Close() error
}

// Ensure both strategies implement Channel.
var (
	_ Channel = (*Direct)(nil)
	_ Channel = (*Relayed)(nil)
)

// Direct drives lock hardware attached to the device itself.
//
// Actuation is synchronous: the driver call completes before SetState
// returns, so the returned state is the new physical position. Failure
// occurs only on invalid input or a driver fault.
type Direct struct {
	count  int
	driver DirectDriver
	logger Logger
}

// DirectDriver is the hardware seam for the Direct strategy.
//
// Implementations drive the actual lock mechanism (GPIO, servo driver).
// The call must be synchronous and must not be retried internally.
type DirectDriver interface {
	Drive(index int, engage bool) error
}

// DirectDriverFunc adapts a function to the DirectDriver interface.
type DirectDriverFunc func(index int, engage bool) error

// Drive calls f.
func (f DirectDriverFunc) Drive(index int, engage bool) error {
	return f(index, engage)
}

// NewDirect creates a Direct channel for count lockers.
//
// Parameters:
//   - count: Number of configured lockers (indexes 1..count are valid)
//   - driver: Hardware driver invoked for each actuation
//
// Returns:
//   - *Direct: Channel ready for use
func NewDirect(count int, driver DirectDriver) *Direct {
	return &Direct{
		count:  count,
		driver: driver,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for this channel.
func (d *Direct) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetState drives the locker synchronously to the target position.
//
// Returns:
//   - locker.State: The applied state, equal to target on success
//   - error: ErrInvalidIndex or ErrInvalidTarget on bad input, or the
//     driver's error wrapped if actuation fails
func (d *Direct) SetState(_ context.Context, index int, target locker.State) (locker.State, error) {
	if index < 1 || index > d.count {
		return locker.StateUnknown, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	var engage bool
	switch target {
	case locker.StateLocked:
		engage = true
	case locker.StateUnlocked:
		engage = false
	default:
		return locker.StateUnknown, fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}

	if err := d.driver.Drive(index, engage); err != nil {
		return locker.StateUnknown, fmt.Errorf("drive locker %d: %w", index, err)
	}

	d.logger.Debug("locker actuated", "index", index, "state", string(target))
	return target, nil
}

// Close releases the channel. Direct channels hold no resources.
func (d *Direct) Close() error {
	return nil
}
