package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ferndale-systems/locknode/internal/identity"
	"github.com/ferndale-systems/locknode/internal/infrastructure/store"
	"github.com/ferndale-systems/locknode/internal/session"
)

// defaultFlushDelay is how long the success message gets to leave the
// device before the restart.
const defaultFlushDelay = 2 * time.Second

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

// Emitter sends handshake results upstream.
type Emitter interface {
	Emit(kind string, payload any) error
}

// Restarter performs the post-apply device restart.
type Restarter interface {
	Restart(reason string)
}

// RestarterFunc adapts a function to the Restarter interface.
type RestarterFunc func(reason string)

// Restart calls f.
func (f RestarterFunc) Restart(reason string) { f(reason) }

// Config holds handshake configuration.
type Config struct {
	// MaxLockers is the largest locker set this device accepts.
	MaxLockers int

	// FlushDelay is the pause between emitting configuration-success and
	// restarting, so the message can leave the device. Default: 2 seconds.
	FlushDelay time.Duration
}

// Handshake applies a one-time configuration push from the backend.
//
// Validation runs in a fixed order: target identity, single-shot
// policy, locker id list, module id. A rejected push mutates nothing
// and is reported upstream as configuration-error. A valid push is
// persisted with read-back verification, acknowledged with
// configuration-success, and followed by a full restart so every
// channel binding re-initialises from the persisted state.
//
// The handshake is single-shot per boot and per configured device: once
// a module id is set, further pushes are rejected by policy rather than
// re-applied, so a buggy or compromised backend cannot silently
// re-provision a live device.
type Handshake struct {
	cfg       Config
	store     *store.Store
	identity  *identity.Identity
	emitter   Emitter
	restarter Restarter

	mu      sync.Mutex
	applied bool

	logger Logger
}

// New creates a Handshake.
//
// Parameters:
//   - cfg: Handshake configuration
//   - st: Settings store the configuration is persisted to
//   - id: Device identity, updated in memory on a successful apply
//   - emitter: Upstream channel for success/error results
//   - restarter: Invoked after the flush delay on a successful apply
//
// Returns:
//   - *Handshake: Handshake ready to receive pushes
func New(cfg Config, st *store.Store, id *identity.Identity, emitter Emitter, restarter Restarter) *Handshake {
	if cfg.FlushDelay == 0 {
		cfg.FlushDelay = defaultFlushDelay
	}
	return &Handshake{
		cfg:       cfg,
		store:     st,
		identity:  id,
		emitter:   emitter,
		restarter: restarter,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this handshake.
func (h *Handshake) SetLogger(logger Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Handle validates and applies one configuration push.
//
// Parameters:
//   - ctx: Context for the persistence operations
//   - push: The module-configured payload from the backend
//
// Returns:
//   - error: ErrIdentityMismatch, ErrAlreadyConfigured,
//     ErrInvalidConfiguration, or ErrApplyFailed; nil on a verified apply
func (h *Handshake) Handle(ctx context.Context, push session.ConfigPush) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hardwareID := h.identity.HardwareID()
	if push.TargetIdentity != hardwareID {
		h.logger.Warn("configuration push for different device",
			"expected", hardwareID, "received", push.TargetIdentity)
		h.report(session.ConfigError{
			Error:    "identity mismatch",
			Expected: hardwareID,
			Received: push.TargetIdentity,
		})
		return fmt.Errorf("%w: push targets %q", ErrIdentityMismatch, push.TargetIdentity)
	}

	if h.applied || h.identity.IsConfigured() {
		h.logger.Warn("configuration push rejected, device already configured",
			"module_id", h.identity.ModuleID())
		h.report(session.ConfigError{
			ModuleID: h.identity.ModuleID(),
			Error:    "already configured, factory reset required",
		})
		return ErrAlreadyConfigured
	}

	if len(push.LockerIDs) == 0 {
		h.report(session.ConfigError{Error: "no lockers assigned"})
		return fmt.Errorf("%w: empty locker list", ErrInvalidConfiguration)
	}
	if len(push.LockerIDs) > h.cfg.MaxLockers {
		msg := fmt.Sprintf("locker count %d exceeds maximum %d", len(push.LockerIDs), h.cfg.MaxLockers)
		h.report(session.ConfigError{Error: msg})
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, msg)
	}
	if push.ModuleID == "" {
		h.report(session.ConfigError{Error: "empty module id"})
		return fmt.Errorf("%w: empty module id", ErrInvalidConfiguration)
	}

	err := h.store.SaveConfiguration(ctx, store.Configuration{
		ModuleID:  push.ModuleID,
		LockerIDs: push.LockerIDs,
	})
	if err != nil {
		h.logger.Error("configuration apply failed", "error", err)
		h.report(session.ConfigError{Error: "apply failed"})
		return fmt.Errorf("%w: %w", ErrApplyFailed, err)
	}

	h.applied = true
	h.identity.SetModuleID(push.ModuleID)

	h.logger.Info("configuration applied",
		"module_id", push.ModuleID, "lockers", len(push.LockerIDs))
	h.report(session.ConfigSuccess{ModuleID: push.ModuleID})

	go h.scheduleRestart()
	return nil
}

// scheduleRestart waits for the success message to flush, then restarts.
func (h *Handshake) scheduleRestart() {
	time.Sleep(h.cfg.FlushDelay)
	h.logger.Info("restarting to rebind channels from persisted configuration")
	h.restarter.Restart("configuration applied")
}

// report emits a handshake result upstream, best effort.
func (h *Handshake) report(payload any) {
	kind := session.KindConfigError
	if _, ok := payload.(session.ConfigSuccess); ok {
		kind = session.KindConfigSuccess
	}
	if err := h.emitter.Emit(kind, payload); err != nil {
		h.logger.Warn("could not report handshake result", "kind", kind, "error", err)
	}
}
