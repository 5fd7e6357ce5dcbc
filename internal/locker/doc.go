// Package locker provides the locker registry for locknode.
//
// The registry is the in-memory catalogue of the compartments this module
// controls. The set of lockers is fixed at configuration time (the backend
// assigns the id list during the configuration handshake) and loaded from
// the settings store at every boot; only state, occupancy and timestamps
// change at runtime.
//
// # Key Types
//
//   - Locker: one compartment with its backend id, controller index, lock
//     state, occupancy observation and last-update timestamp
//   - State: locked, unlocked, or unknown
//   - Registry: thread-safe lookup and mutation, copies out, never pointers
//
// # Mutation Discipline
//
// Lock state is written by the command relay on command completion and by
// the relayed actuation channel's asynchronous status path. Occupancy is
// written by the sensor collaborator. Nothing else mutates the registry.
package locker
