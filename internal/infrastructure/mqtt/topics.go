package mqtt

import "fmt"

// TopicPrefix is the base for all locknode site-integration topics.
//
// Every module publishes under its own hardware identity:
//
//	locknode/{hardware_id}/status
//	locknode/{hardware_id}/locker/{locker_id}/state
//	locknode/{hardware_id}/locker/{locker_id}/command
const TopicPrefix = "locknode"

// Topics builds the MQTT topics published and consumed by a module.
// Using these helpers keeps topic naming consistent across the codebase
// and with site-side subscribers.
//
//	topics := mqtt.Topics{HardwareID: "a1b2c3d4e5f6"}
//	stateTopic := topics.LockerState("locker-12")
//	// Returns: "locknode/a1b2c3d4e5f6/locker/locker-12/state"
type Topics struct {
	// HardwareID is the module's stable hardware identity.
	HardwareID string
}

// ModuleStatus returns the module availability topic.
//
// Published retained on connect ("online"), on graceful shutdown
// ("offline") and by the broker via LWT on unexpected disconnect.
//
// Example: locknode/a1b2c3d4e5f6/status
func (t Topics) ModuleStatus() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, t.HardwareID)
}

// LockerState returns the retained state topic for a single locker.
//
// Example: locknode/a1b2c3d4e5f6/locker/locker-12/state
func (t Topics) LockerState(lockerID string) string {
	return fmt.Sprintf("%s/%s/locker/%s/state", TopicPrefix, t.HardwareID, lockerID)
}

// LockerCommand returns the inbound command topic for a single locker.
//
// Site integrations publish maintenance commands here; the module
// subscribes via AllLockerCommands.
//
// Example: locknode/a1b2c3d4e5f6/locker/locker-12/command
func (t Topics) LockerCommand(lockerID string) string {
	return fmt.Sprintf("%s/%s/locker/%s/command", TopicPrefix, t.HardwareID, lockerID)
}

// AllLockerCommands returns a pattern matching commands for every locker
// assigned to this module.
//
// Pattern: locknode/a1b2c3d4e5f6/locker/+/command
func (t Topics) AllLockerCommands() string {
	return fmt.Sprintf("%s/%s/locker/+/command", TopicPrefix, t.HardwareID)
}

// AllModuleTopics returns a pattern matching every topic this module owns.
//
// Pattern: locknode/a1b2c3d4e5f6/#
func (t Topics) AllModuleTopics() string {
	return fmt.Sprintf("%s/%s/#", TopicPrefix, t.HardwareID)
}

// LockerIDFromTopic extracts the locker identifier from a locker-scoped
// topic (state or command). It returns "" when the topic does not match
// this module's locker topic shape.
func (t Topics) LockerIDFromTopic(topic string) string {
	prefix := fmt.Sprintf("%s/%s/locker/", TopicPrefix, t.HardwareID)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	rest := topic[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return ""
}
