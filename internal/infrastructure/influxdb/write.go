package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLockerState records a locker state observation.
//
// This is the primary method for building locker state history.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - moduleID: Backend-assigned module identifier ("" while unconfigured)
//   - lockerID: Backend-assigned locker identifier
//   - status: State string ("locked", "unlocked", "unknown", "error")
//   - occupied: Occupancy flag, nil when not sensed
//   - at: Time the state was observed
//
// Example:
//
//	client.WriteLockerState("module-3", "locker-12", "locked", nil, time.Now())
func (c *Client) WriteLockerState(moduleID, lockerID, status string, occupied *bool, at time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"status": status,
	}
	if occupied != nil {
		fields["occupied"] = *occupied
	}

	point := write.NewPoint(
		"locker_state",
		map[string]string{
			"module_id": moduleID,
			"locker_id": lockerID,
		},
		fields,
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteCommandResult records the outcome of an actuation command.
//
// Used for auditing lock/unlock activity and spotting failing hardware
// (rising failure rates or ack latency on a single locker).
//
// Parameters:
//   - moduleID: Backend-assigned module identifier
//   - lockerID: Backend-assigned locker identifier
//   - action: The commanded action ("lock" or "unlock")
//   - success: Whether the command was acknowledged
//   - latency: Time from dispatch to acknowledgment (or failure)
func (c *Client) WriteCommandResult(moduleID, lockerID, action string, success bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"locker_command",
		map[string]string{
			"module_id": moduleID,
			"locker_id": lockerID,
			"action":    action,
		},
		map[string]interface{}{
			"success":    success,
			"latency_ms": float64(latency.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSessionEvent records a backend session lifecycle event.
//
// Used for tracking connectivity quality over time.
//
// Parameters:
//   - moduleID: Backend-assigned module identifier ("" while unconfigured)
//   - event: Event name (e.g. "connected", "disconnected", "registered")
func (c *Client) WriteSessionEvent(moduleID, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"session_event",
		map[string]string{
			"module_id": moduleID,
		},
		map[string]interface{}{
			"event": event,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("link_stats",
//	    map[string]string{"link": "tcp://bridge:5331"},
//	    map[string]interface{}{"frames_received": 1042, "reconnects": 2})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
