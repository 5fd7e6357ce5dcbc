package locker

import (
	"fmt"
	"sync"
	"time"
)

// Registry holds the configured set of lockers and their last-known state.
//
// The set is fixed at configuration time and loaded at boot; only state,
// occupancy and timestamps mutate afterwards. Lock state is mutated by the
// command relay (on command completion) and by the relayed channel's
// asynchronous status path; occupancy by the sensor collaborator.
//
// All public methods are thread-safe. Accessors return copies so callers
// can never mutate registry internals.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Locker
	ordered []*Locker // configuration order, index i holds Index i+1
}

// NewRegistry builds a registry from the configured locker id list.
//
// Indexes are assigned 1..len(ids) in list order, matching the secondary
// controller's numbering.
//
// Returns:
//   - *Registry: Registry with every locker in StateUnknown
//   - error: If ids is empty or contains duplicates
func NewRegistry(ids []string) (*Registry, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyConfiguration
	}

	r := &Registry{
		byID:    make(map[string]*Locker, len(ids)),
		ordered: make([]*Locker, 0, len(ids)),
	}
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: empty id at index %d", ErrInvalidLockerID, i)
		}
		if _, exists := r.byID[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLockerID, id)
		}
		l := &Locker{
			ID:    id,
			Index: i + 1,
			State: StateUnknown,
		}
		r.byID[id] = l
		r.ordered = append(r.ordered, l)
	}
	return r, nil
}

// Get returns a copy of the locker with the given id.
func (r *Registry) Get(id string) (Locker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byID[id]
	if !ok {
		return Locker{}, fmt.Errorf("%w: %s", ErrLockerNotFound, id)
	}
	return l.Copy(), nil
}

// GetByIndex returns a copy of the locker with the given 1-based index.
func (r *Registry) GetByIndex(index int) (Locker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 1 || index > len(r.ordered) {
		return Locker{}, fmt.Errorf("%w: index %d", ErrLockerNotFound, index)
	}
	return r.ordered[index-1].Copy(), nil
}

// Has reports whether a locker id is configured.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// List returns copies of all lockers in configuration order.
func (r *Registry) List() []Locker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Locker, 0, len(r.ordered))
	for _, l := range r.ordered {
		out = append(out, l.Copy())
	}
	return out
}

// Count returns the number of configured lockers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// SetState records a new lock state and returns a copy of the updated locker.
func (r *Registry) SetState(id string, state State) (Locker, error) {
	if !state.Valid() {
		return Locker{}, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.byID[id]
	if !ok {
		return Locker{}, fmt.Errorf("%w: %s", ErrLockerNotFound, id)
	}
	l.State = state
	l.LastUpdate = time.Now().UTC()
	return l.Copy(), nil
}

// SetStateByIndex records a new lock state by 1-based index.
// Used by the relayed channel's asynchronous status path, which only
// knows controller indexes.
func (r *Registry) SetStateByIndex(index int, state State) (Locker, error) {
	r.mu.RLock()
	var id string
	if index >= 1 && index <= len(r.ordered) {
		id = r.ordered[index-1].ID
	}
	r.mu.RUnlock()

	if id == "" {
		return Locker{}, fmt.Errorf("%w: index %d", ErrLockerNotFound, index)
	}
	return r.SetState(id, state)
}

// SetOccupied records an occupancy observation from the sensor collaborator
// and returns a copy of the updated locker.
func (r *Registry) SetOccupied(id string, occupied bool) (Locker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.byID[id]
	if !ok {
		return Locker{}, fmt.Errorf("%w: %s", ErrLockerNotFound, id)
	}
	v := occupied
	l.Occupied = &v
	l.LastUpdate = time.Now().UTC()
	return l.Copy(), nil
}

// MarkUnknown downgrades a locker's state to unknown without touching
// occupancy. Used after an actuation timeout, when the physical position
// can no longer be asserted.
func (r *Registry) MarkUnknown(id string) (Locker, error) {
	return r.SetState(id, StateUnknown)
}

// StaleSince returns copies of lockers whose LastUpdate is before cutoff.
// The periodic reporter uses this to re-emit state the backend may have missed.
func (r *Registry) StaleSince(cutoff time.Time) []Locker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Locker
	for _, l := range r.ordered {
		if l.LastUpdate.Before(cutoff) {
			out = append(out, l.Copy())
		}
	}
	return out
}
