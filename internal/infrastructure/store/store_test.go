package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "locknode.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "module_id", "M1"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "module_id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "M1" {
		t.Errorf("Get() = %q, want %q", got, "M1")
	}

	// Overwrite replaces.
	if err := s.Put(ctx, "module_id", "M2"); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, _ = s.Get(ctx, "module_id")
	if got != "M2" {
		t.Errorf("Get() after overwrite = %q, want %q", got, "M2")
	}
}

func TestGet_Missing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}

	got, err := s.GetDefault(context.Background(), "nope", "fallback")
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if got != "fallback" {
		t.Errorf("GetDefault() = %q, want fallback", got)
	}
}

func TestSaveLoadConfiguration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Unconfigured device loads a zero configuration without error.
	cfg, err := s.LoadConfiguration(ctx)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.IsConfigured() {
		t.Fatal("fresh store should not be configured")
	}

	want := Configuration{
		ModuleID:  "M1",
		LockerIDs: []string{"L1", "L2", "L3"},
	}
	if err := s.SaveConfiguration(ctx, want); err != nil {
		t.Fatalf("SaveConfiguration() error = %v", err)
	}

	got, err := s.LoadConfiguration(ctx)
	if err != nil {
		t.Fatalf("LoadConfiguration() after save error = %v", err)
	}
	if !got.IsConfigured() {
		t.Fatal("store should be configured after save")
	}
	if got.ModuleID != want.ModuleID {
		t.Errorf("ModuleID = %q, want %q", got.ModuleID, want.ModuleID)
	}
	if len(got.LockerIDs) != len(want.LockerIDs) {
		t.Fatalf("LockerIDs length = %d, want %d", len(got.LockerIDs), len(want.LockerIDs))
	}
	for i := range want.LockerIDs {
		if got.LockerIDs[i] != want.LockerIDs[i] {
			t.Errorf("LockerIDs[%d] = %q, want %q", i, got.LockerIDs[i], want.LockerIDs[i])
		}
	}
}

func TestSaveConfiguration_RejectsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveConfiguration(ctx, Configuration{}); err == nil {
		t.Error("SaveConfiguration() with zero value should fail")
	}
	if err := s.SaveConfiguration(ctx, Configuration{ModuleID: "M1"}); err == nil {
		t.Error("SaveConfiguration() with no lockers should fail")
	}
}

func TestSaveConfiguration_Reapply(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := Configuration{ModuleID: "M1", LockerIDs: []string{"L1", "L2"}}
	if err := s.SaveConfiguration(ctx, first); err != nil {
		t.Fatalf("SaveConfiguration() error = %v", err)
	}

	// A smaller re-apply must not leave stale locker keys visible.
	second := Configuration{ModuleID: "M2", LockerIDs: []string{"A1"}}
	if err := s.SaveConfiguration(ctx, second); err != nil {
		t.Fatalf("SaveConfiguration() re-apply error = %v", err)
	}

	got, err := s.LoadConfiguration(ctx)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if got.ModuleID != "M2" || len(got.LockerIDs) != 1 || got.LockerIDs[0] != "A1" {
		t.Errorf("LoadConfiguration() = %+v, want module M2 with single locker A1", got)
	}
}

func TestReset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := Configuration{ModuleID: "M1", LockerIDs: []string{"L1"}}
	if err := s.SaveConfiguration(ctx, cfg); err != nil {
		t.Fatalf("SaveConfiguration() error = %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	got, err := s.LoadConfiguration(ctx)
	if err != nil {
		t.Fatalf("LoadConfiguration() after reset error = %v", err)
	}
	if got.IsConfigured() {
		t.Error("store should be unconfigured after reset")
	}
}

func TestHealthCheck(t *testing.T) {
	s := openTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
