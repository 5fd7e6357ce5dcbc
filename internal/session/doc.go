// Package session owns the control-plane connection to the backend.
//
// The Client is the sole owner of the transport: it dials, frames and
// parses protocol envelopes, reconnects with a minimum-interval floor,
// and dispatches inbound messages to the command relay and the
// configuration handshake. Nothing else in the system touches the wire.
//
// # State Machine
//
//	Disconnected --connect--> Connecting --opened--> Connected --register--> Registered
//
// A transport close from any state returns to Disconnected. There is no
// terminal state: the client works back towards Registered for its
// whole lifetime.
//
// While Connected with no module identity, the client broadcasts
// module-available at a fixed interval so the backend can claim it.
// While Registered, it heartbeats with ping at a fixed interval.
// Inbound silence alone is never fatal; the transport's own close
// signal is authoritative, and LastContact is exposed for observability.
//
// # Wire Framings
//
// Two framings carry the same message catalogue: a flat JSON object
// with the kind in a "type" field, and an array-style frame where a
// small event code prefixes a JSON array of kind and payload. Outbound
// framing is configured; inbound frames are auto-detected. The rest of
// the system only ever sees Envelope values and never branches on
// framing.
//
// # Dispatch
//
// Unknown kinds are logged and dropped so newer backends can speak to
// older firmware. Malformed frames are counted, logged and dropped
// without touching the session.
package session
