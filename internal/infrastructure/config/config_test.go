package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
device:
  name: "bench module"
  max_lockers: 3
server:
  url: "ws://localhost:3000/socket"
  framing: "socketio"
  ping_interval: 60
store:
  path: "/tmp/locknode-test.db"
actuation:
  mode: "relayed"
  link: "tcp://localhost:5331"
  ack_timeout: 500
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "ws://localhost:3000/socket" {
		t.Errorf("Server.URL = %q, want %q", cfg.Server.URL, "ws://localhost:3000/socket")
	}
	if cfg.Actuation.Link != "tcp://localhost:5331" {
		t.Errorf("Actuation.Link = %q, want %q", cfg.Actuation.Link, "tcp://localhost:5331")
	}
	if cfg.Device.MaxLockers != 3 {
		t.Errorf("Device.MaxLockers = %d, want 3", cfg.Device.MaxLockers)
	}
	// Defaults fill unspecified values.
	if cfg.Status.ReportInterval != 30 {
		t.Errorf("Status.ReportInterval = %d, want default 30", cfg.Status.ReportInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing server url",
			mutate:  func(c *Config) { c.Server.URL = "" },
			wantErr: "server.url is required",
		},
		{
			name:    "non-websocket url",
			mutate:  func(c *Config) { c.Server.URL = "http://example.com" },
			wantErr: "ws:// or wss://",
		},
		{
			name:    "bad framing",
			mutate:  func(c *Config) { c.Server.Framing = "csv" },
			wantErr: "server.framing",
		},
		{
			name:    "relayed without link",
			mutate:  func(c *Config) { c.Actuation.Link = "" },
			wantErr: "actuation.link is required",
		},
		{
			name:    "bad actuation mode",
			mutate:  func(c *Config) { c.Actuation.Mode = "hydraulic" },
			wantErr: "actuation.mode",
		},
		{
			name:    "zero max lockers",
			mutate:  func(c *Config) { c.Device.MaxLockers = 0 },
			wantErr: "device.max_lockers",
		},
		{
			name: "influx enabled without token",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
			},
			wantErr: "influxdb.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Server.URL = "ws://localhost:3000/socket"
			cfg.Actuation.Link = "tcp://localhost:5331"
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOCKNODE_SERVER_URL", "wss://override.example.com/socket")
	t.Setenv("LOCKNODE_STORE_PATH", "/tmp/override.db")

	content := `
server:
  url: "ws://original.example.com/socket"
actuation:
  mode: "direct"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "wss://override.example.com/socket" {
		t.Errorf("Server.URL = %q, want env override", cfg.Server.URL)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("Store.Path = %q, want env override", cfg.Store.Path)
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetPingInterval().Seconds(); got != 60 {
		t.Errorf("GetPingInterval() = %vs, want 60s", got)
	}
	if got := cfg.GetAckTimeout().Milliseconds(); got != 1000 {
		t.Errorf("GetAckTimeout() = %vms, want 1000ms", got)
	}
	if got := cfg.GetReconnectMinInterval().Seconds(); got != 5 {
		t.Errorf("GetReconnectMinInterval() = %vs, want 5s", got)
	}
}
