// locknode - networked locker access controller
//
// This is the main entry point for the locknode firmware. A module
// drives a bank of electronic lockers, holds a persistent session to
// the backend controller, and relays lock/unlock commands to either
// local hardware or a secondary controller behind a byte-oriented link.
//
// The backend is authoritative: the module carries no business logic,
// it actuates, observes, and reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferndale-systems/locknode/internal/actuation"
	"github.com/ferndale-systems/locknode/internal/handshake"
	"github.com/ferndale-systems/locknode/internal/identity"
	"github.com/ferndale-systems/locknode/internal/infrastructure/config"
	"github.com/ferndale-systems/locknode/internal/infrastructure/influxdb"
	"github.com/ferndale-systems/locknode/internal/infrastructure/logging"
	"github.com/ferndale-systems/locknode/internal/infrastructure/mqtt"
	"github.com/ferndale-systems/locknode/internal/infrastructure/store"
	"github.com/ferndale-systems/locknode/internal/locker"
	"github.com/ferndale-systems/locknode/internal/relay"
	"github.com/ferndale-systems/locknode/internal/session"
	"github.com/ferndale-systems/locknode/internal/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errRestartRequested signals that run returned deliberately and the
// process should re-initialise from persisted state instead of exiting.
// On real hardware the service manager restarts the binary; in-process
// restart keeps bench behaviour identical.
var errRestartRequested = errors.New("restart requested")

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for {
		err := run(ctx)
		if errors.Is(err, errRestartRequested) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
}

// run is one full lifecycle of the module: initialise from persisted
// state, serve until shutdown or a restart request, tear down.
// Separated from main for testability and so a configuration push can
// trigger a clean re-initialisation.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, errRestartRequested to re-run,
//     or error describing a startup failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting locknode",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the persistent configuration store
	st, err := store.Open(store.Config{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "path", cfg.Store.Path)

	// Load the backend-assigned configuration, if any
	persisted, err := st.LoadConfiguration(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorruptConfiguration) {
			// A half-written configuration cannot be trusted. Drop it and
			// run unconfigured; the backend will re-provision.
			log.Warn("persisted configuration corrupt, resetting", "error", err)
			if resetErr := st.Reset(ctx); resetErr != nil {
				return fmt.Errorf("resetting corrupt store: %w", resetErr)
			}
			persisted = store.Configuration{}
		} else {
			return fmt.Errorf("loading persisted configuration: %w", err)
		}
	}

	// Resolve hardware identity
	hardwareID, err := identity.Detect(cfg.Device.HardwareID)
	if err != nil {
		return fmt.Errorf("detecting hardware identity: %w", err)
	}
	id := identity.New(hardwareID, persisted.ModuleID)
	log.Info("identity resolved",
		"hardware_id", id.HardwareID(),
		"module_id", id.ModuleID(),
		"configured", id.IsConfigured(),
	)

	// Restart plumbing: a configuration push (or factory reset) asks for
	// a clean re-initialisation after teardown.
	restartCh := make(chan string, 1)
	restarter := handshake.RestarterFunc(func(reason string) {
		select {
		case restartCh <- reason:
		default:
		}
	})

	// Factory reset on SIGUSR1: wipe the store and re-run unconfigured.
	resetCh := make(chan os.Signal, 1)
	signal.Notify(resetCh, syscall.SIGUSR1)
	defer signal.Stop(resetCh)

	// Connect to the site MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, id.HardwareID())
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Backend session
	sess := session.New(session.Config{
		URL:                  cfg.Server.URL,
		Framing:              cfg.Server.Framing,
		DeviceInfo:           cfg.Device.Name,
		Version:              version,
		Capabilities:         cfg.Device.MaxLockers,
		PingInterval:         cfg.GetPingInterval(),
		AvailableInterval:    cfg.GetAvailableBroadcastInterval(),
		ReconnectMinInterval: cfg.GetReconnectMinInterval(),
	}, id)
	sess.SetLogger(log.With("component", "session"))
	defer func() {
		log.Info("closing backend session")
		if closeErr := sess.Close(); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()

	// Configuration handshake (always wired; rejects re-provisioning by
	// policy once configured)
	hs := handshake.New(handshake.Config{
		MaxLockers: cfg.Device.MaxLockers,
	}, st, id, sess, restarter)
	hs.SetLogger(log.With("component", "handshake"))

	sess.SetOnConfigure(func(push session.ConfigPush) {
		if handleErr := hs.Handle(ctx, push); handleErr != nil {
			log.Warn("configuration push rejected", "error", handleErr)
		}
	})

	// The actuation pipeline only exists once the backend has assigned a
	// locker set. An unconfigured module just broadcasts availability.
	var (
		registry       *locker.Registry
		channel        actuation.Channel
		relayedChannel *actuation.Relayed
		commands       *relay.CommandRelay
		reporter       *status.Reporter
	)

	if persisted.IsConfigured() {
		registry, err = locker.NewRegistry(persisted.LockerIDs)
		if err != nil {
			return fmt.Errorf("initialising locker registry: %w", err)
		}
		log.Info("locker registry initialised", "lockers", registry.Count())

		channel, relayedChannel, err = openChannel(ctx, cfg, registry.Count(), log)
		if err != nil {
			return fmt.Errorf("opening actuation channel: %w", err)
		}
		defer func() {
			log.Info("closing actuation channel")
			if relayedChannel != nil {
				// Best effort offline notice before dropping the link
				if offErr := relayedChannel.NotifyOnline(false); offErr != nil {
					log.Warn("offline notice failed", "error", offErr)
				}
			}
			if closeErr := channel.Close(); closeErr != nil {
				log.Error("error closing actuation channel", "error", closeErr)
			}
		}()

		commands = relay.New(registry, channel)
		commands.SetLogger(log.With("component", "relay"))
		defer func() {
			if closeErr := commands.Close(); closeErr != nil {
				log.Error("error closing command relay", "error", closeErr)
			}
		}()

		// Status reporting: the backend session is the primary sink;
		// MQTT and InfluxDB mirror state for site-side consumers.
		sinks := []status.Sink{status.SinkFunc(func(u status.Update) error {
			return sess.SendStatus(session.StatusUpdate{
				ModuleID:  u.ModuleID,
				LockerID:  u.LockerID,
				Status:    u.Status,
				Occupied:  u.Occupied,
				Timestamp: u.Timestamp,
			})
		})}
		if mqttClient != nil {
			sinks = append(sinks, status.SinkFunc(func(u status.Update) error {
				return mqttClient.PublishLockerState(u.LockerID, u.Status, u.Occupied, u.Timestamp)
			}))
		}
		if influxClient != nil {
			sinks = append(sinks, status.SinkFunc(func(u status.Update) error {
				influxClient.WriteLockerState(u.ModuleID, u.LockerID, u.Status, u.Occupied, u.Timestamp)
				return nil
			}))
		}

		reporter = status.New(registry, id, cfg.GetReportInterval(), sinks...)
		reporter.SetLogger(log.With("component", "status"))
		defer func() {
			if closeErr := reporter.Close(); closeErr != nil {
				log.Error("error closing status reporter", "error", closeErr)
			}
		}()

		wirePipeline(sess, commands, reporter, relayedChannel, influxClient, id, log)

		if mqttClient != nil {
			if subErr := mqttClient.SubscribeCommands(func(lockerID, action string) error {
				log.Info("site maintenance command", "locker_id", lockerID, "action", action)
				var cmdErr error
				if action == mqtt.ActionLock {
					_, cmdErr = commands.Lock(lockerID)
				} else {
					_, cmdErr = commands.Unlock(lockerID)
				}
				return cmdErr
			}); subErr != nil {
				log.Warn("subscribing to maintenance commands failed", "error", subErr)
			}
		}

		reporter.Start()
	} else {
		log.Info("module unconfigured, awaiting provisioning")
		sess.SetOnCommand(func(kind, lockerID string) {
			log.Warn("dropping command while unconfigured", "kind", kind, "locker_id", lockerID)
		})
	}

	sess.Start()

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, st, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown, restart request, or factory reset
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
		log.Info("locknode stopped")
		return nil

	case reason := <-restartCh:
		log.Info("restart requested", "reason", reason)
		return errRestartRequested

	case <-resetCh:
		log.Warn("factory reset requested, wiping persisted configuration")
		if resetErr := st.Reset(ctx); resetErr != nil {
			return fmt.Errorf("factory reset: %w", resetErr)
		}
		return errRestartRequested
	}
}

// openChannel builds the configured actuation channel.
//
// Returns the channel, plus the concrete *actuation.Relayed when in
// relayed mode (nil in direct mode) so callers can wire link-specific
// behaviour (status callbacks, online notifications).
func openChannel(ctx context.Context, cfg *config.Config, lockers int, log *logging.Logger) (actuation.Channel, *actuation.Relayed, error) {
	switch cfg.Actuation.Mode {
	case config.ActuationModeDirect:
		// Direct mode drives lock hardware through the DirectDriver seam.
		// Board support is injected here; the default driver only logs,
		// which is what bench rigs without lock hardware want.
		driver := actuation.DirectDriverFunc(func(index int, engage bool) error {
			log.Info("direct actuation", "index", index, "engage", engage)
			return nil
		})
		d := actuation.NewDirect(lockers, driver)
		d.SetLogger(log.With("component", "actuation"))
		return d, nil, nil

	case config.ActuationModeRelayed:
		statusInterval := cfg.GetStatusRequestInterval()
		if statusInterval == 0 {
			statusInterval = -1 // config 0 means polling off
		}
		r, err := actuation.OpenRelayed(ctx, actuation.RelayedConfig{
			Link:           cfg.Actuation.Link,
			Lockers:        lockers,
			AckTimeout:     cfg.GetAckTimeout(),
			StatusInterval: statusInterval,
		})
		if err != nil {
			return nil, nil, err
		}
		r.SetLogger(log.With("component", "actuation"))
		log.Info("secondary controller link open", "link", cfg.Actuation.Link)
		return r, r, nil

	default:
		return nil, nil, fmt.Errorf("unknown actuation mode %q", cfg.Actuation.Mode)
	}
}

// wirePipeline connects the session, command relay, actuation channel
// and status reporter into the running pipeline.
func wirePipeline(
	sess *session.Client,
	commands *relay.CommandRelay,
	reporter *status.Reporter,
	relayedChannel *actuation.Relayed,
	influxClient *influxdb.Client,
	id *identity.Identity,
	log *logging.Logger,
) {
	// Backend commands drive the relay
	sess.SetOnCommand(func(kind, lockerID string) {
		var err error
		if kind == session.KindLock {
			_, err = commands.Lock(lockerID)
		} else {
			_, err = commands.Unlock(lockerID)
		}
		if err != nil {
			log.Warn("command rejected", "kind", kind, "locker_id", lockerID, "error", err)
		}
	})

	// A valid NFC credential toggles its locker (tap to open, tap to close)
	sess.SetOnNFCResult(func(result session.NFCValidationResult) {
		if !result.Valid || result.LockerID == "" {
			log.Info("nfc credential rejected", "nfc_code", result.NFCCode)
			return
		}
		if _, err := commands.Toggle(result.LockerID); err != nil {
			log.Warn("nfc toggle rejected", "locker_id", result.LockerID, "error", err)
		}
	})

	// Session lifecycle drives the secondary controller's online state
	// and fails commands stranded by a transport loss.
	sess.SetOnConnect(func(registered bool) {
		if influxClient != nil {
			influxClient.WriteSessionEvent(id.ModuleID(), "connected")
		}
		if relayedChannel != nil {
			if err := relayedChannel.NotifyOnline(true); err != nil {
				log.Warn("notifying controller online failed", "error", err)
			}
		}
	})
	sess.SetOnDisconnect(func() {
		if influxClient != nil {
			influxClient.WriteSessionEvent(id.ModuleID(), "disconnected")
		}
		commands.FailAllPending()
		if relayedChannel != nil {
			if err := relayedChannel.NotifyOnline(false); err != nil {
				log.Warn("notifying controller offline failed", "error", err)
			}
		}
	})

	// Unsolicited controller status flows through the relay into the registry
	if relayedChannel != nil {
		relayedChannel.SetOnStatus(commands.HandleChannelStatus)
	}

	// Command outcomes and observed changes are reported upstream
	commands.SetOnResult(func(cmd relay.Command, l locker.Locker, err error) {
		reporter.ReportResult(cmd, l, err)
		if influxClient != nil {
			action := "unlock"
			if cmd.Target == locker.StateLocked {
				action = "lock"
			}
			influxClient.WriteCommandResult(id.ModuleID(), cmd.LockerID, action, err == nil, time.Since(cmd.IssuedAt))
		}
	})
	commands.SetOnStatus(reporter.ReportChange)
}

// getConfigPath returns the configuration file path.
// Uses LOCKNODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LOCKNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// The backend session is deliberately excluded: the module is expected
// to start and run while the backend is unreachable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - st: Configuration store to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, st *store.Store, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := st.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
