// Package influxdb provides optional state-history storage for locknode.
//
// It wraps the official influxdb-client-go v2 library with locknode-specific
// patterns for connection management, point writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Locker state history (lock/unlock transitions, occupancy)
//   - Actuation command outcomes and latency
//   - Backend session connectivity events
//
// The backend controller holds the authoritative state; this history is
// for site-side diagnostics and is entirely optional. When disabled or
// unreachable the module operates normally without it.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "site",
//	    Bucket:  "lockers",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteLockerState("module-3", "locker-12", "locked", nil, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead without blocking the actuation path.
package influxdb
