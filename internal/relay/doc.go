// Package relay executes validated actuation requests.
//
// CommandRelay sits between the backend session and the actuation
// channel. It enforces the at-most-one-pending-command-per-locker
// invariant, runs each accepted command off the dispatch path, and on
// completion updates the locker registry and notifies the status
// reporter through the on-change callback.
//
// # Command Lifecycle
//
//  1. Validate: reject ErrUnknownLocker if the locker is not configured,
//     ErrAlreadyPending if one is still in flight for it.
//  2. Record: a Command with a unique id enters the pending set.
//  3. Actuate: the channel drives the hardware; for relayed hardware
//     this includes the bounded acknowledgment wait.
//  4. Complete: the pending entry is cleared, the registry updated
//     (target state on success, unknown on failure), and the result
//     callback invoked.
//
// There are no retries at this layer. A timed-out command may still act
// late on the controller, so retrying here risks double actuation;
// retry is a caller policy.
//
// # Asynchronous Status
//
// The relayed channel pushes status frames independently of commands.
// HandleChannelStatus folds them into the registry and forwards them to
// the status callback so the backend sees position changes that no
// command caused (a manually closed door, a controller-side action).
package relay
