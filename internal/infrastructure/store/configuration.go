package store

import (
	"context"
	"fmt"
	"strconv"
)

// Configuration is the remotely assigned configuration held by the store.
type Configuration struct {
	// ModuleID is the backend-assigned identity. Empty until the device
	// has been configured.
	ModuleID string

	// LockerIDs is the ordered locker id list, indexed 0..count-1.
	LockerIDs []string
}

// IsConfigured reports whether a configuration has been applied.
func (c Configuration) IsConfigured() bool {
	return c.ModuleID != ""
}

// LoadConfiguration reads the assigned configuration from the store.
//
// A device that has never been configured returns a zero Configuration
// and no error.
//
// Returns:
//   - Configuration: The stored module id and locker set
//   - error: If the store cannot be read or the stored data is inconsistent
func (s *Store) LoadConfiguration(ctx context.Context) (Configuration, error) {
	moduleID, err := s.GetDefault(ctx, KeyModuleID, "")
	if err != nil {
		return Configuration{}, err
	}
	if moduleID == "" {
		return Configuration{}, nil
	}

	countStr, err := s.GetDefault(ctx, KeyLockerCount, "0")
	if err != nil {
		return Configuration{}, err
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return Configuration{}, fmt.Errorf("%w: locker_count=%q", ErrCorruptConfiguration, countStr)
	}

	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id, err := s.Get(ctx, lockerIDKey(i))
		if err != nil {
			return Configuration{}, fmt.Errorf("%w: missing locker id %d", ErrCorruptConfiguration, i)
		}
		ids = append(ids, id)
	}

	return Configuration{ModuleID: moduleID, LockerIDs: ids}, nil
}

// SaveConfiguration persists an assigned configuration atomically and
// verifies it by read-back.
//
// All keys are written in one transaction; afterwards the configuration is
// reloaded and compared against what was requested. A verification mismatch
// is reported as an error so the caller does not acknowledge a configuration
// that did not land on disk.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - cfg: Configuration to persist (ModuleID and LockerIDs must be non-empty)
//
// Returns:
//   - error: If persisting or read-back verification fails
func (s *Store) SaveConfiguration(ctx context.Context, cfg Configuration) error {
	if cfg.ModuleID == "" || len(cfg.LockerIDs) == 0 {
		return fmt.Errorf("%w: empty module id or locker set", ErrCorruptConfiguration)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	// Drop stale locker keys from any previous, larger configuration.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM settings WHERE key LIKE ?", lockerIDKeyPrefix+"%"); err != nil {
		return fmt.Errorf("clearing locker ids: %w", err)
	}

	pairs := map[string]string{
		KeyModuleID:    cfg.ModuleID,
		KeyLockerCount: strconv.Itoa(len(cfg.LockerIDs)),
	}
	for i, id := range cfg.LockerIDs {
		pairs[lockerIDKey(i)] = id
	}
	for key, value := range pairs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value); err != nil {
			return fmt.Errorf("writing setting %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing configuration: %w", err)
	}

	// Read-back verification before the caller acknowledges success.
	stored, err := s.LoadConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	if stored.ModuleID != cfg.ModuleID || len(stored.LockerIDs) != len(cfg.LockerIDs) {
		return ErrVerificationFailed
	}
	for i := range cfg.LockerIDs {
		if stored.LockerIDs[i] != cfg.LockerIDs[i] {
			return ErrVerificationFailed
		}
	}

	return nil
}

// lockerIDKey returns the settings key for the locker id at index i.
func lockerIDKey(i int) string {
	return lockerIDKeyPrefix + strconv.Itoa(i)
}
