package status

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ferndale-systems/locknode/internal/actuation"
	"github.com/ferndale-systems/locknode/internal/identity"
	"github.com/ferndale-systems/locknode/internal/locker"
	"github.com/ferndale-systems/locknode/internal/relay"
)

// captureSink records every emitted update.
type captureSink struct {
	mu      sync.Mutex
	updates []Update
	err     error
}

func (c *captureSink) EmitStatus(u Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
	return c.err
}

func (c *captureSink) all() []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Update(nil), c.updates...)
}

func newTestReporter(t *testing.T, interval time.Duration, sinks ...Sink) (*Reporter, *locker.Registry) {
	t.Helper()

	reg, err := locker.NewRegistry([]string{"L1", "L2"})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	id := identity.New("AABBCCDDEEFF", "M1")
	r := New(reg, id, interval, sinks...)
	t.Cleanup(func() { r.Close() })
	return r, reg
}

func TestFromState(t *testing.T) {
	tests := []struct {
		state locker.State
		want  string
	}{
		{state: locker.StateLocked, want: StatusLocked},
		{state: locker.StateUnlocked, want: StatusUnlocked},
		{state: locker.StateUnknown, want: StatusUnknown},
	}
	for _, tt := range tests {
		if got := FromState(tt.state); got != tt.want {
			t.Errorf("FromState(%q) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestReportResultSuccess(t *testing.T) {
	sink := &captureSink{}
	r, reg := newTestReporter(t, time.Hour, sink)

	l, _ := reg.SetState("L1", locker.StateLocked)
	r.ReportResult(relay.Command{ID: "c1", LockerID: "L1"}, l, nil)

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	u := updates[0]
	if u.ModuleID != "M1" || u.LockerID != "L1" || u.Status != StatusLocked {
		t.Errorf("update = %+v, want M1/L1/locked", u)
	}
	if u.Timestamp.IsZero() {
		t.Error("update missing timestamp")
	}
}

func TestReportResultFailure(t *testing.T) {
	sink := &captureSink{}
	r, reg := newTestReporter(t, time.Hour, sink)

	l, _ := reg.MarkUnknown("L1")
	r.ReportResult(relay.Command{ID: "c1", LockerID: "L1"}, l, actuation.ErrAckTimeout)

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].Status != StatusError {
		t.Errorf("failed command status = %q, want %q", updates[0].Status, StatusError)
	}
}

func TestReportChangeCarriesOccupancy(t *testing.T) {
	sink := &captureSink{}
	r, reg := newTestReporter(t, time.Hour, sink)

	if _, err := reg.SetState("L2", locker.StateUnlocked); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}
	l, _ := reg.SetOccupied("L2", true)
	r.ReportChange(l)

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	u := updates[0]
	if u.Status != StatusUnlocked {
		t.Errorf("status = %q, want %q", u.Status, StatusUnlocked)
	}
	if u.Occupied == nil || !*u.Occupied {
		t.Error("occupancy not carried on the update")
	}
}

func TestPeriodicReemission(t *testing.T) {
	sink := &captureSink{}
	r, _ := newTestReporter(t, 20*time.Millisecond, sink)
	r.Start()

	// Both lockers are stale (never updated), so the periodic path
	// re-emits them every interval.
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.all()) < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	updates := sink.all()
	if len(updates) < 4 {
		t.Fatalf("got %d periodic updates, want at least 4", len(updates))
	}
	seen := map[string]bool{}
	for _, u := range updates {
		if u.Status != StatusUnknown {
			t.Errorf("periodic status for %s = %q, want %q", u.LockerID, u.Status, StatusUnknown)
		}
		seen[u.LockerID] = true
	}
	if !seen["L1"] || !seen["L2"] {
		t.Errorf("periodic path covered %v, want both lockers", seen)
	}
}

func TestPeriodicSkipsFreshLockers(t *testing.T) {
	sink := &captureSink{}
	r, reg := newTestReporter(t, 50*time.Millisecond, sink)

	// Keep both lockers fresh, then start the loop.
	if _, err := reg.SetState("L1", locker.StateLocked); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}
	if _, err := reg.SetState("L2", locker.StateLocked); err != nil {
		t.Fatalf("SetState() error: %v", err)
	}
	r.Start()

	time.Sleep(30 * time.Millisecond)
	if got := len(sink.all()); got != 0 {
		t.Errorf("got %d updates before interval elapsed, want 0", got)
	}
}

func TestSinkFailureDoesNotStopFanOut(t *testing.T) {
	failing := &captureSink{err: errors.New("session down")}
	healthy := &captureSink{}
	r, reg := newTestReporter(t, time.Hour, failing, healthy)

	l, _ := reg.SetState("L1", locker.StateLocked)
	r.ReportChange(l)

	if len(healthy.all()) != 1 {
		t.Errorf("healthy sink got %d updates, want 1", len(healthy.all()))
	}
}
