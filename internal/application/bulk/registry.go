package bulk

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry tracks the live state of every operation the process knows about.
type Registry interface {
	Create(st State) error
	Get(id string) (State, bool)
	Update(id string, fn func(*State)) error
	List(vendorID int64) []State
	Range(fn func(State) bool)
	Evict(olderThan time.Duration) int
}

// Archive keeps terminal states after they are evicted from memory.
// Load returns ErrOperationNotFound for unknown or expired ids.
type Archive interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context, id string) (*State, error)
}

// ArchiveLister is implemented by archives that can enumerate a vendor's operations.
type ArchiveLister interface {
	ListByVendor(ctx context.Context, vendorID int64, limit int) ([]State, error)
}

// ArchivePurger is implemented by archives that expire entries on demand
// rather than natively.
type ArchivePurger interface {
	Purge(ctx context.Context) (int64, error)
}

type entry struct {
	mu    sync.RWMutex
	state State
}

// MemoryRegistry is a Registry backed by sync.Map. Each entry carries its own
// lock, so updating one operation never blocks readers of another.
type MemoryRegistry struct {
	entries sync.Map // operation id -> *entry
}

// Compile-time check that MemoryRegistry implements Registry
var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// Create inserts a new entry. Ids are unique; a duplicate is rejected.
func (r *MemoryRegistry) Create(st State) error {
	if _, loaded := r.entries.LoadOrStore(st.OperationID, &entry{state: st.Clone()}); loaded {
		return fmt.Errorf("operation %s already registered", st.OperationID)
	}
	return nil
}

// Get returns a copy of the entry.
func (r *MemoryRegistry) Get(id string) (State, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return State{}, false
	}
	e := v.(*entry)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone(), true
}

// Update applies fn to the entry under its lock. Terminal entries are frozen.
func (r *MemoryRegistry) Update(id string, fn func(*State)) error {
	v, ok := r.entries.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrOperationFinalized, id, e.state.Status)
	}
	fn(&e.state)
	return nil
}

// List returns a vendor's entries, newest first.
func (r *MemoryRegistry) List(vendorID int64) []State {
	var out []State
	r.Range(func(st State) bool {
		if st.VendorID == vendorID {
			out = append(out, st)
		}
		return true
	})
	sortNewestFirst(out)
	return out
}

// Range calls fn with a copy of each entry until fn returns false.
func (r *MemoryRegistry) Range(fn func(State) bool) {
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.RLock()
		st := e.state.Clone()
		e.mu.RUnlock()
		return fn(st)
	})
}

// Evict removes terminal entries that ended more than olderThan ago.
func (r *MemoryRegistry) Evict(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	r.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.RLock()
		expired := e.state.Status.IsTerminal() && e.state.EndTime != nil && e.state.EndTime.Before(cutoff)
		e.mu.RUnlock()
		if expired {
			r.entries.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

func sortNewestFirst(states []State) {
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].StartTime.After(states[j].StartTime)
	})
}
