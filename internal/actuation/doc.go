// Package actuation drives the physical lock hardware.
//
// A Channel abstracts a single actuation operation: drive one locker to
// a target position and report the applied state. Two strategies exist,
// selected at construction time from configuration:
//
//   - Direct: the lock mechanism is attached to this device and driven
//     synchronously through a DirectDriver. SetState returns the new
//     physical position immediately; failure occurs only on invalid
//     input or a driver fault.
//
//   - Relayed: the lock mechanism sits behind an isolated secondary
//     controller reached over a byte-oriented link (serial bridge or
//     character device). Commands and responses travel as fixed 3-byte
//     frames; each lock or unlock blocks with a bounded timeout until
//     the controller acknowledges it.
//
// # Frame Protocol
//
// Every frame is 3 bytes: command code, ASCII locker index, response
// code. Commands are Lock, Unlock, StatusRequest, Online and Offline;
// responses are Locked, Unlocked, Ack and Error. Index 0 addresses all
// lockers and is valid only for status requests and online/offline
// notices.
//
// # Timeout Semantics
//
// A command that is not acknowledged within the timeout is abandoned
// without retry: retrying here could double-actuate a lock that acted
// on the original command late. The caller records the locker as
// unknown until the controller's next status frame disambiguates it.
//
// # Asynchronous Status
//
// The controller pushes status frames independently of acknowledgments,
// both in answer to the periodic status poll and on its own. These are
// delivered through the status callback from a dedicated goroutine and
// never from the synchronous acknowledgment wait.
package actuation
