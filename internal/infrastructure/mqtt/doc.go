// Package mqtt provides optional site-broker connectivity for locknode.
//
// This package manages:
//   - Connection to a site MQTT broker with auto-reconnect
//   - Retained locker state publishing for site integrations
//   - Maintenance command subscriptions (lock/unlock per locker)
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The backend websocket session is the primary control path; MQTT is a
// read-mostly mirror for site systems (building management, dashboards,
// kiosk displays) that should not depend on the backend being reachable.
// When the broker is down the module operates normally without it.
//
//	locknode module → MQTT broker → site integrations
//
// Topic hierarchy is scoped by the module's hardware identity:
//
//	locknode/{hardware_id}/status                        module online/offline (retained, LWT)
//	locknode/{hardware_id}/locker/{locker_id}/state      locker state (retained)
//	locknode/{hardware_id}/locker/{locker_id}/command    inbound maintenance commands
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for bench setups
//   - Command topics should be ACL-restricted to trusted site systems
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, hardwareID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Mirror a locker state change
//	client.PublishLockerState("locker-12", "locked", nil, time.Now())
//
//	// Accept site-issued maintenance commands
//	err = client.SubscribeCommands(func(lockerID, action string) error {
//	    log.Printf("site command: %s %s", action, lockerID)
//	    return nil
//	})
package mqtt
