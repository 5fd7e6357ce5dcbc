package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferndale-systems/locknode/internal/actuation"
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

// Command is one accepted actuation request.
type Command struct {
	// ID uniquely identifies the command for logging and correlation.
	ID string

	// LockerID is the target locker.
	LockerID string

	// Target is the requested lock position.
	Target locker.State

	// IssuedAt is when the command was accepted.
	IssuedAt time.Time
}

// pendingEntry tracks one in-flight command and its cancellation handle.
type pendingEntry struct {
	cmd    Command
	cancel context.CancelFunc
}

// CommandRelay executes actuation requests against the channel, holding
// the at-most-one-pending-command-per-locker invariant.
//
// A request is rejected synchronously if the locker is unknown or
// already has a command in flight. Accepted requests run off the caller's
// path so that a slow acknowledgment wait on one locker never blocks
// dispatch for another. On completion the relay updates the registry,
// clears the pending entry, and invokes the result callback so status
// reaches the backend on the low-latency on-change path.
//
// Failed or timed-out commands leave the locker in StateUnknown until
// the channel's next status report disambiguates the physical position.
// The relay never retries: a late-acting controller plus a retry could
// double-actuate the lock.
type CommandRelay struct {
	registry *locker.Registry
	channel  actuation.Channel

	mu      sync.Mutex
	pending map[string]*pendingEntry
	closed  bool

	// Result handler callback
	onResult   func(cmd Command, l locker.Locker, err error)
	onStatus   func(l locker.Locker)
	callbackMu sync.RWMutex

	wg sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a CommandRelay over the given registry and channel.
//
// Parameters:
//   - registry: Configured locker registry, updated on command completion
//   - channel: Actuation strategy (Direct or Relayed)
//
// Returns:
//   - *CommandRelay: Relay ready for use
func New(registry *locker.Registry, channel actuation.Channel) *CommandRelay {
	return &CommandRelay{
		registry: registry,
		channel:  channel,
		pending:  make(map[string]*pendingEntry),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for this relay.
func (r *CommandRelay) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	if logger != nil {
		r.logger = logger
	}
	r.loggerMu.Unlock()
}

// SetOnResult sets the callback invoked when a command completes or fails.
//
// The callback receives the command, a copy of the locker after the
// registry update, and the command's error (nil on success). It is
// invoked from the command's own goroutine.
func (r *CommandRelay) SetOnResult(callback func(cmd Command, l locker.Locker, err error)) {
	r.callbackMu.Lock()
	r.onResult = callback
	r.callbackMu.Unlock()
}

// SetOnStatus sets the callback invoked when an unsolicited status
// report updates a locker outside the command path.
func (r *CommandRelay) SetOnStatus(callback func(l locker.Locker)) {
	r.callbackMu.Lock()
	r.onStatus = callback
	r.callbackMu.Unlock()
}

// Lock issues a lock command for the given locker.
//
// Returns:
//   - Command: The accepted command
//   - error: ErrUnknownLocker, ErrAlreadyPending, or ErrRelayClosed
func (r *CommandRelay) Lock(lockerID string) (Command, error) {
	return r.handleCommand(lockerID, locker.StateLocked)
}

// Unlock issues an unlock command for the given locker.
//
// Returns:
//   - Command: The accepted command
//   - error: ErrUnknownLocker, ErrAlreadyPending, or ErrRelayClosed
func (r *CommandRelay) Unlock(lockerID string) (Command, error) {
	return r.handleCommand(lockerID, locker.StateUnlocked)
}

// Toggle flips the locker between locked and unlocked based on its
// current known state.
//
// When the state is unknown, Toggle issues an unlock. Policy: a person
// standing at the locker can close and secure it again, whereas locking
// blind could shut them out.
//
// Returns:
//   - Command: The accepted command
//   - error: ErrUnknownLocker, ErrAlreadyPending, or ErrRelayClosed
func (r *CommandRelay) Toggle(lockerID string) (Command, error) {
	current, err := r.registry.Get(lockerID)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownLocker, lockerID)
	}

	target := locker.StateUnlocked
	if current.State == locker.StateUnlocked {
		target = locker.StateLocked
	}
	return r.handleCommand(lockerID, target)
}

// handleCommand validates, records, and launches one actuation request.
func (r *CommandRelay) handleCommand(lockerID string, target locker.State) (Command, error) {
	l, err := r.registry.Get(lockerID)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownLocker, lockerID)
	}

	cmd := Command{
		ID:       uuid.New().String(),
		LockerID: lockerID,
		Target:   target,
		IssuedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return Command{}, ErrRelayClosed
	}
	if _, exists := r.pending[lockerID]; exists {
		r.mu.Unlock()
		cancel()
		return Command{}, fmt.Errorf("%w: %s", ErrAlreadyPending, lockerID)
	}
	r.pending[lockerID] = &pendingEntry{cmd: cmd, cancel: cancel}
	r.wg.Add(1)
	r.mu.Unlock()

	r.logDebug("command accepted",
		"command_id", cmd.ID, "locker_id", lockerID, "target", string(target))

	go r.execute(ctx, cancel, cmd, l.Index)

	return cmd, nil
}

// execute runs one accepted command to completion.
func (r *CommandRelay) execute(ctx context.Context, cancel context.CancelFunc, cmd Command, index int) {
	defer r.wg.Done()
	defer cancel()

	applied, err := r.channel.SetState(ctx, index, cmd.Target)

	r.mu.Lock()
	delete(r.pending, cmd.LockerID)
	r.mu.Unlock()

	var updated locker.Locker
	if err != nil {
		updated, _ = r.registry.MarkUnknown(cmd.LockerID)
		r.logWarn("command failed",
			"command_id", cmd.ID, "locker_id", cmd.LockerID, "error", err)
	} else {
		updated, _ = r.registry.SetState(cmd.LockerID, applied)
		r.logInfo("command completed",
			"command_id", cmd.ID, "locker_id", cmd.LockerID, "state", string(applied))
	}

	r.callbackMu.RLock()
	callback := r.onResult
	r.callbackMu.RUnlock()

	if callback != nil {
		callback(cmd, updated, err)
	}
}

// HandleChannelStatus records an unsolicited status report from the
// actuation channel and triggers an on-change emission.
//
// Wired to the relayed channel's status callback. Reports for indexes
// outside the configured set are logged and dropped.
//
// Parameters:
//   - index: 1-based locker index from the status frame
//   - state: Reported lock position
func (r *CommandRelay) HandleChannelStatus(index int, state locker.State) {
	updated, err := r.registry.SetStateByIndex(index, state)
	if err != nil {
		r.logWarn("status report for unconfigured locker", "index", index)
		return
	}

	r.callbackMu.RLock()
	callback := r.onStatus
	r.callbackMu.RUnlock()

	if callback != nil {
		callback(updated)
	}
}

// Pending returns the in-flight command for a locker, if any.
func (r *CommandRelay) Pending(lockerID string) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[lockerID]
	if !ok {
		return Command{}, false
	}
	return entry.cmd, true
}

// PendingCount returns the number of in-flight commands.
func (r *CommandRelay) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FailAllPending cancels every in-flight command.
//
// Called when the backend session drops: a command accepted under a
// connection that no longer exists must fail and report, not linger
// until a reconnect resurrects it. Each cancelled command completes
// through its normal failure path.
func (r *CommandRelay) FailAllPending() {
	r.mu.Lock()
	entries := make([]*pendingEntry, 0, len(r.pending))
	for _, entry := range r.pending {
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		r.logWarn("cancelling pending command",
			"command_id", entry.cmd.ID, "locker_id", entry.cmd.LockerID)
		entry.cancel()
	}
}

// Close stops accepting commands, cancels in-flight ones, and waits for
// them to finish. Safe to call multiple times.
func (r *CommandRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.FailAllPending()
	r.wg.Wait()
	return nil
}

func (r *CommandRelay) logDebug(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	logger.Debug(msg, keysAndValues...)
}

func (r *CommandRelay) logInfo(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}

func (r *CommandRelay) logWarn(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()
	logger.Warn(msg, keysAndValues...)
}
