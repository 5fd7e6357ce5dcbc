// Package store provides the persistent settings store for locknode.
//
// The store is a small key/value table in SQLite. It holds the configuration
// assigned remotely by the backend (the module id and the locker id list)
// so it survives restarts and power loss. Static node settings (server URL,
// broker credentials) live in config.yaml instead; see
// internal/infrastructure/config.
//
// # Atomicity
//
// A configuration push must be applied all-or-nothing. SaveConfiguration
// writes every key in one transaction and then verifies by read-back before
// returning, so a caller never acknowledges a configuration that is not
// durably on disk.
//
// # Usage
//
//	st, err := store.Open(store.Config{Path: cfg.Store.Path, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	cfg, err := st.LoadConfiguration(ctx)
//	if cfg.IsConfigured() {
//	    // boot with the assigned locker set
//	}
//
// Factory reset clears every key (Reset) and restarts the device.
package store
