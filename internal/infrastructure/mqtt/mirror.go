package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Site-issued command actions accepted on locker command topics.
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
)

// lockerStatePayload is the JSON body published retained to locker state topics.
type lockerStatePayload struct {
	Status    string `json:"status"`
	Occupied  *bool  `json:"occupied,omitempty"`
	Timestamp string `json:"timestamp"`
}

// lockerCommandPayload is the JSON body accepted on locker command topics.
type lockerCommandPayload struct {
	Action string `json:"action"`
}

// PublishLockerState publishes a locker's current state to its retained
// state topic. New subscribers receive the last published state immediately.
//
// Parameters:
//   - lockerID: The backend-assigned locker identifier
//   - status: State string ("locked", "unlocked", "unknown", "error")
//   - occupied: Occupancy flag, nil when unknown
//   - at: Time the state was observed
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) PublishLockerState(lockerID, status string, occupied *bool, at time.Time) error {
	payload, err := json.Marshal(lockerStatePayload{
		Status:    status,
		Occupied:  occupied,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return c.PublishRetained(c.topics.LockerState(lockerID), payload)
}

// SubscribeCommands registers a handler for site-issued maintenance
// commands on this module's locker command topics.
//
// Command payloads are JSON objects of the form {"action":"lock"} or
// {"action":"unlock"}. Malformed payloads and unsupported actions are
// rejected before the handler runs; the rejection is logged (via the
// client logger) and the message is otherwise ignored.
//
// Parameters:
//   - handler: Invoked with the locker identifier and validated action
//
// Returns:
//   - error: nil on success, or wrapped error if the subscription fails
func (c *Client) SubscribeCommands(handler func(lockerID, action string) error) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	return c.Subscribe(c.topics.AllLockerCommands(), byte(c.cfg.QoS),
		func(topic string, payload []byte) error {
			lockerID := c.topics.LockerIDFromTopic(topic)
			if lockerID == "" {
				return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
			}

			var cmd lockerCommandPayload
			if err := json.Unmarshal(payload, &cmd); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
			}
			if cmd.Action != ActionLock && cmd.Action != ActionUnlock {
				return fmt.Errorf("%w: unsupported action %q", ErrInvalidCommand, cmd.Action)
			}

			return handler(lockerID, cmd.Action)
		})
}
