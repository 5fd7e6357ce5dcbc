// Package config handles loading and validating locknode configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Only static node settings live here (server endpoint, actuation link,
// broker credentials). The configuration assigned remotely by the backend
// (module id, locker set) is persisted separately in the settings store;
// see internal/infrastructure/store.
//
// Security Considerations:
//   - Sensitive values (broker passwords, tokens) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.URL)
package config
