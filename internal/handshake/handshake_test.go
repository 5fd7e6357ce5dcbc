package handshake

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ferndale-systems/locknode/internal/identity"
	"github.com/ferndale-systems/locknode/internal/infrastructure/store"
	"github.com/ferndale-systems/locknode/internal/session"
)

// fakeEmitter records handshake results sent upstream.
type fakeEmitter struct {
	mu    sync.Mutex
	kinds []string
	last  any
}

func (f *fakeEmitter) Emit(kind string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	f.last = payload
	return nil
}

func (f *fakeEmitter) lastResult() (string, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.kinds) == 0 {
		return "", nil
	}
	return f.kinds[len(f.kinds)-1], f.last
}

func newTestHandshake(t *testing.T, moduleID string) (*Handshake, *store.Store, *identity.Identity, *fakeEmitter, chan string) {
	t.Helper()

	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "settings.db")})
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	id := identity.New("AABBCCDDEEFF", moduleID)
	emitter := &fakeEmitter{}
	restarts := make(chan string, 1)

	h := New(Config{MaxLockers: 3, FlushDelay: 10 * time.Millisecond},
		st, id, emitter, RestarterFunc(func(reason string) { restarts <- reason }))

	return h, st, id, emitter, restarts
}

func validPush() session.ConfigPush {
	return session.ConfigPush{
		TargetIdentity: "AABBCCDDEEFF",
		ModuleID:       "M1",
		LockerIDs:      []string{"L1", "L2"},
	}
}

func TestHandleAppliesValidPush(t *testing.T) {
	h, st, id, emitter, restarts := newTestHandshake(t, "")

	if err := h.Handle(context.Background(), validPush()); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	// Persisted and verifiable.
	cfg, err := st.LoadConfiguration(context.Background())
	if err != nil {
		t.Fatalf("LoadConfiguration() error: %v", err)
	}
	if cfg.ModuleID != "M1" {
		t.Errorf("persisted module id = %q, want M1", cfg.ModuleID)
	}
	if len(cfg.LockerIDs) != 2 || cfg.LockerIDs[0] != "L1" || cfg.LockerIDs[1] != "L2" {
		t.Errorf("persisted lockers = %v, want [L1 L2]", cfg.LockerIDs)
	}

	// In-memory identity updated before the restart.
	if id.ModuleID() != "M1" {
		t.Errorf("identity module id = %q, want M1", id.ModuleID())
	}

	kind, payload := emitter.lastResult()
	if kind != session.KindConfigSuccess {
		t.Errorf("emitted kind = %q, want %q", kind, session.KindConfigSuccess)
	}
	if success, ok := payload.(session.ConfigSuccess); !ok || success.ModuleID != "M1" {
		t.Errorf("emitted payload = %+v, want ConfigSuccess{M1}", payload)
	}

	select {
	case <-restarts:
	case <-time.After(time.Second):
		t.Fatal("restart not triggered after flush delay")
	}
}

func TestHandleRejectsIdentityMismatch(t *testing.T) {
	h, st, id, emitter, restarts := newTestHandshake(t, "")

	push := validPush()
	push.TargetIdentity = "CCDDEEFF0011"

	if err := h.Handle(context.Background(), push); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("Handle() error = %v, want ErrIdentityMismatch", err)
	}

	kind, payload := emitter.lastResult()
	if kind != session.KindConfigError {
		t.Errorf("emitted kind = %q, want %q", kind, session.KindConfigError)
	}
	cfgErr, ok := payload.(session.ConfigError)
	if !ok || cfgErr.Expected != "AABBCCDDEEFF" || cfgErr.Received != "CCDDEEFF0011" {
		t.Errorf("emitted payload = %+v, want both identities echoed", payload)
	}

	// Nothing mutated.
	if id.IsConfigured() {
		t.Error("identity mutated by rejected push")
	}
	if cfg, err := st.LoadConfiguration(context.Background()); err != nil || cfg.IsConfigured() {
		t.Errorf("store after rejected push = %+v (err %v), want untouched", cfg, err)
	}
	select {
	case <-restarts:
		t.Error("restart triggered by rejected push")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleRejectsWhenAlreadyConfigured(t *testing.T) {
	h, st, _, emitter, restarts := newTestHandshake(t, "M0")

	if err := h.Handle(context.Background(), validPush()); !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("Handle() error = %v, want ErrAlreadyConfigured", err)
	}

	if kind, _ := emitter.lastResult(); kind != session.KindConfigError {
		t.Errorf("emitted kind = %q, want %q", kind, session.KindConfigError)
	}
	if cfg, err := st.LoadConfiguration(context.Background()); err != nil || cfg.IsConfigured() {
		t.Errorf("store after rejected push = %+v (err %v), want untouched", cfg, err)
	}
	select {
	case <-restarts:
		t.Error("restart triggered by rejected push")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleSingleShotPerBoot(t *testing.T) {
	h, _, _, _, restarts := newTestHandshake(t, "")

	if err := h.Handle(context.Background(), validPush()); err != nil {
		t.Fatalf("first Handle() error: %v", err)
	}
	<-restarts

	// The same push again is rejected, never re-applied.
	if err := h.Handle(context.Background(), validPush()); !errors.Is(err, ErrAlreadyConfigured) {
		t.Fatalf("second Handle() error = %v, want ErrAlreadyConfigured", err)
	}
}

func TestHandleValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*session.ConfigPush)
	}{
		{
			name:   "empty locker list",
			mutate: func(p *session.ConfigPush) { p.LockerIDs = nil },
		},
		{
			name:   "too many lockers",
			mutate: func(p *session.ConfigPush) { p.LockerIDs = []string{"a", "b", "c", "d"} },
		},
		{
			name:   "empty module id",
			mutate: func(p *session.ConfigPush) { p.ModuleID = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, st, id, emitter, _ := newTestHandshake(t, "")

			push := validPush()
			tt.mutate(&push)

			if err := h.Handle(context.Background(), push); !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("Handle() error = %v, want ErrInvalidConfiguration", err)
			}

			if kind, _ := emitter.lastResult(); kind != session.KindConfigError {
				t.Errorf("emitted kind = %q, want %q", kind, session.KindConfigError)
			}
			if id.IsConfigured() {
				t.Error("identity mutated by invalid push")
			}
			if _, err := st.LoadConfiguration(context.Background()); err == nil {
				t.Error("invalid push must not be persisted")
			}
		})
	}
}
