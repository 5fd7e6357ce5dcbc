// Package handshake applies the one-time configuration push.
//
// An unconfigured device broadcasts its availability until the backend
// claims it with a module-configured push carrying the target hardware
// identity, the assigned module id and the locker id list. This package
// validates the push, persists it with read-back verification,
// acknowledges the result upstream, and triggers the restart that
// rebinds every channel from the freshly persisted state.
//
// Apply is all-or-nothing: any rejected push leaves the persisted
// configuration and the in-memory identity byte-for-byte unchanged.
package handshake
