package status

import (
	"sync"
	"time"

	"github.com/ferndale-systems/locknode/internal/identity"
	"github.com/ferndale-systems/locknode/internal/locker"
	"github.com/ferndale-systems/locknode/internal/relay"
)

// Status strings reported upstream.
const (
	StatusLocked   = "locked"
	StatusUnlocked = "unlocked"
	StatusUnknown  = "unknown"

	// StatusError reports a failed or timed-out actuation. The locker's
	// state is unknown until the next status report disambiguates it.
	StatusError = "error"
)

// FromState maps a locker state to its reported status string.
func FromState(s locker.State) string {
	switch s {
	case locker.StateLocked:
		return StatusLocked
	case locker.StateUnlocked:
		return StatusUnlocked
	default:
		return StatusUnknown
	}
}

// Update is one emitted state report.
type Update struct {
	ModuleID  string
	LockerID  string
	Status    string
	Occupied  *bool
	Timestamp time.Time
}

// Sink receives emitted updates. The backend session is the primary
// sink; site-integration mirrors (MQTT, state history) are optional
// additional ones.
type Sink interface {
	EmitStatus(u Update) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(u Update) error

// EmitStatus calls f.
func (f SinkFunc) EmitStatus(u Update) error { return f(u) }

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

// Reporter emits locker state upstream on two independent paths.
//
// The on-change path fires immediately when a command completes or an
// unsolicited status report lands; it is never batched. The periodic
// path re-emits any locker whose last update is older than the report
// interval, guarding against status messages lost to transient
// disconnects. The two paths are deliberately not deduplicated against
// each other; the backend tolerates duplicates.
type Reporter struct {
	registry *locker.Registry
	identity *identity.Identity
	interval time.Duration
	sinks    []Sink

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	logger Logger
}

// New creates a Reporter.
//
// Parameters:
//   - registry: Locker registry observed by the periodic path
//   - id: Device identity, stamped on every update
//   - interval: Periodic re-emission interval
//   - sinks: Destinations for every update, in order
//
// Returns:
//   - *Reporter: Reporter ready to start
func New(registry *locker.Registry, id *identity.Identity, interval time.Duration, sinks ...Sink) *Reporter {
	return &Reporter{
		registry: registry,
		identity: id,
		interval: interval,
		sinks:    sinks,
		done:     make(chan struct{}),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start launches the periodic re-emission loop.
func (r *Reporter) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.interval)
			for _, l := range r.registry.StaleSince(cutoff) {
				r.emit(l, FromState(l.State))
			}
		}
	}
}

// ReportResult emits a command's outcome on the on-change path.
// Wired to the command relay's result callback. A failed command
// reports StatusError for the locker.
func (r *Reporter) ReportResult(cmd relay.Command, l locker.Locker, err error) {
	if err != nil {
		r.logger.Warn("reporting failed command",
			"command_id", cmd.ID, "locker_id", l.ID, "error", err)
		r.emit(l, StatusError)
		return
	}
	r.emit(l, FromState(l.State))
}

// ReportChange emits a locker's current state on the on-change path.
// Wired to the relay's unsolicited status callback and to the occupancy
// sensor collaborator.
func (r *Reporter) ReportChange(l locker.Locker) {
	r.emit(l, FromState(l.State))
}

// emit fans one update out to every sink.
func (r *Reporter) emit(l locker.Locker, status string) {
	u := Update{
		ModuleID:  r.identity.ModuleID(),
		LockerID:  l.ID,
		Status:    status,
		Occupied:  l.Occupied,
		Timestamp: time.Now().UTC(),
	}

	for _, sink := range r.sinks {
		if err := sink.EmitStatus(u); err != nil {
			r.logger.Debug("status sink rejected update",
				"locker_id", u.LockerID, "error", err)
		}
	}
}

// Close stops the periodic loop.
func (r *Reporter) Close() error {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
	return nil
}
