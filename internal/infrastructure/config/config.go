package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for locknode.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Actuation ActuationConfig `yaml:"actuation"`
	Status    StatusConfig    `yaml:"status"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig describes the physical module.
type DeviceConfig struct {
	// Name is the human-readable product name sent in availability broadcasts.
	Name string `yaml:"name"`

	// MaxLockers bounds the locker set a configuration push may assign.
	MaxLockers int `yaml:"max_lockers"`

	// HardwareID overrides the MAC-derived hardware identity.
	// Leave empty in production; intended for bench setups and tests.
	HardwareID string `yaml:"hardware_id,omitempty"`
}

// ServerConfig contains backend session settings.
type ServerConfig struct {
	// URL is the websocket endpoint of the backend controller
	// (e.g. "ws://lockers.example.com:3000/socket").
	URL string `yaml:"url"`

	// Framing selects the wire framing: "flat" or "socketio".
	Framing string `yaml:"framing"`

	// PingInterval is the heartbeat interval while registered (seconds).
	PingInterval int `yaml:"ping_interval"`

	// AvailableBroadcastInterval is how often an unclaimed device
	// advertises itself (seconds).
	AvailableBroadcastInterval int `yaml:"available_broadcast_interval"`

	// ReconnectMinInterval is the floor between connection attempts (seconds).
	ReconnectMinInterval int `yaml:"reconnect_min_interval"`
}

// StoreConfig contains settings for the persistent configuration store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file.
	Path string `yaml:"path"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// ActuationConfig selects and tunes the lock actuation channel.
type ActuationConfig struct {
	// Mode is "direct" (local actuation) or "relayed" (secondary controller
	// behind a byte-oriented link).
	Mode string `yaml:"mode"`

	// Link is the secondary-controller link URL, relayed mode only.
	// Supported formats:
	//   - "tcp://localhost:5331" (serial-over-TCP bridge)
	//   - "file:///dev/ttyUSB0" (local serial device)
	Link string `yaml:"link,omitempty"`

	// AckTimeout is how long to wait for a command acknowledgment (milliseconds).
	AckTimeout int `yaml:"ack_timeout"`

	// StatusRequestInterval is how often to poll the secondary controller
	// for all-locker status (seconds). 0 disables polling.
	StatusRequestInterval int `yaml:"status_request_interval"`
}

// StatusConfig contains upstream state reporting settings.
type StatusConfig struct {
	// ReportInterval is the periodic re-emission interval (seconds).
	// Lockers whose state is older than this are re-reported.
	ReportInterval int `yaml:"report_interval"`
}

// MQTTConfig contains settings for the optional site-integration broker.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains settings for the optional state history sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Actuation mode values.
const (
	ActuationModeDirect  = "direct"
	ActuationModeRelayed = "relayed"
)

// Framing values.
const (
	FramingFlat     = "flat"
	FramingSocketIO = "socketio"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LOCKNODE_SECTION_KEY
// For example: LOCKNODE_SERVER_URL, LOCKNODE_STORE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:       "locknode module",
			MaxLockers: 3,
		},
		Server: ServerConfig{
			Framing:                    FramingSocketIO,
			PingInterval:               60,
			AvailableBroadcastInterval: 15,
			ReconnectMinInterval:       5,
		},
		Store: StoreConfig{
			Path:        "./data/locknode.db",
			BusyTimeout: 5,
		},
		Actuation: ActuationConfig{
			Mode:                  ActuationModeRelayed,
			AckTimeout:            1000,
			StatusRequestInterval: 2,
		},
		Status: StatusConfig{
			ReportInterval: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "locknode",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LOCKNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOCKNODE_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("LOCKNODE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("LOCKNODE_ACTUATION_LINK"); v != "" {
		cfg.Actuation.Link = v
	}
	if v := os.Getenv("LOCKNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LOCKNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LOCKNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("LOCKNODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.URL == "" {
		errs = append(errs, "server.url is required")
	} else if u, err := url.Parse(c.Server.URL); err != nil {
		errs = append(errs, fmt.Sprintf("server.url is not a valid URL: %v", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, "server.url must use ws:// or wss://")
	}

	if c.Server.Framing != FramingFlat && c.Server.Framing != FramingSocketIO {
		errs = append(errs, `server.framing must be "flat" or "socketio"`)
	}

	if c.Server.ReconnectMinInterval < 1 {
		errs = append(errs, "server.reconnect_min_interval must be at least 1 second")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	switch c.Actuation.Mode {
	case ActuationModeDirect:
	case ActuationModeRelayed:
		if c.Actuation.Link == "" {
			errs = append(errs, "actuation.link is required in relayed mode")
		}
	default:
		errs = append(errs, `actuation.mode must be "direct" or "relayed"`)
	}

	if c.Device.MaxLockers < 1 {
		errs = append(errs, "device.max_lockers must be at least 1")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set LOCKNODE_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPingInterval returns the heartbeat interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.Server.PingInterval) * time.Second
}

// GetAvailableBroadcastInterval returns the availability broadcast interval as a Duration.
func (c *Config) GetAvailableBroadcastInterval() time.Duration {
	return time.Duration(c.Server.AvailableBroadcastInterval) * time.Second
}

// GetReconnectMinInterval returns the reconnect floor as a Duration.
func (c *Config) GetReconnectMinInterval() time.Duration {
	return time.Duration(c.Server.ReconnectMinInterval) * time.Second
}

// GetAckTimeout returns the secondary-controller acknowledgment timeout as a Duration.
func (c *Config) GetAckTimeout() time.Duration {
	return time.Duration(c.Actuation.AckTimeout) * time.Millisecond
}

// GetStatusRequestInterval returns the secondary-controller poll interval as a Duration.
func (c *Config) GetStatusRequestInterval() time.Duration {
	return time.Duration(c.Actuation.StatusRequestInterval) * time.Second
}

// GetReportInterval returns the periodic status report interval as a Duration.
func (c *Config) GetReportInterval() time.Duration {
	return time.Duration(c.Status.ReportInterval) * time.Second
}
