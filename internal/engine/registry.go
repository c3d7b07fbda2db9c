package engine

import (
	"sort"
	"sync"

	"github.com/weftworks/weft/internal/ir"
)

// Registry holds validated sync definitions indexed by the (concept,
// action) trigger keys appearing in their when clauses.
//
// Read-mostly after startup: candidate lookups take a read lock, so
// concurrent completions never serialize on the registry. Register and
// Unregister take the write lock.
type Registry struct {
	mu        sync.RWMutex
	syncs     map[string]*registered
	byTrigger map[string][]*registered
	nextOrder int
}

// registered pairs a sync with its registration order, which breaks ties
// between candidates of the same priority class.
type registered struct {
	sync  *ir.Sync
	order int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		syncs:     make(map[string]*registered),
		byTrigger: make(map[string][]*registered),
	}
}

// Register validates and indexes a sync. Registration is all-or-nothing:
// on any SpecError the registry is unchanged. A name already present is
// rejected, not replaced, because replacement would race in-flight
// partial matches.
func (r *Registry) Register(s ir.Sync) error {
	if issues := s.Validate(); len(issues) > 0 {
		return &SpecError{SyncName: s.Name, Issues: issues}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.syncs[s.Name]; exists {
		return duplicateSyncError(s.Name)
	}

	reg := &registered{sync: &s, order: r.nextOrder}
	r.nextOrder++
	r.syncs[s.Name] = reg

	// Index once per distinct trigger key; a sync with two when clauses
	// on the same (concept, action) must not appear twice in one bucket.
	seen := make(map[string]bool, len(s.When))
	for _, w := range s.When {
		key := w.TriggerKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		r.byTrigger[key] = append(r.byTrigger[key], reg)
	}
	return nil
}

// Unregister removes the sync and its index entries. Unknown names are a
// no-op. The caller is responsible for dropping the sync's in-flight
// partial matches.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.syncs[name]
	if !ok {
		return
	}
	delete(r.syncs, name)

	seen := make(map[string]bool, len(reg.sync.When))
	for _, w := range reg.sync.When {
		key := w.TriggerKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		bucket := r.byTrigger[key]
		for i, cand := range bucket {
			if cand == reg {
				r.byTrigger[key] = append(bucket[:i:i], bucket[i+1:]...)
				break
			}
		}
		if len(r.byTrigger[key]) == 0 {
			delete(r.byTrigger, key)
		}
	}
}

// Lookup returns the sync registered under name, or nil.
func (r *Registry) Lookup(name string) *ir.Sync {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg, ok := r.syncs[name]; ok {
		return reg.sync
	}
	return nil
}

// CandidatesFor returns the syncs whose when clauses reference the given
// trigger key, eager syncs first, registration order within each class.
// The returned slice is the caller's to keep.
func (r *Registry) CandidatesFor(triggerKey string) []*ir.Sync {
	r.mu.RLock()
	bucket := r.byTrigger[triggerKey]
	regs := make([]*registered, len(bucket))
	copy(regs, bucket)
	r.mu.RUnlock()

	sort.SliceStable(regs, func(i, j int) bool {
		ei, ej := regs[i].sync.Eager(), regs[j].sync.Eager()
		if ei != ej {
			return ei
		}
		return regs[i].order < regs[j].order
	})

	out := make([]*ir.Sync, len(regs))
	for i, reg := range regs {
		out[i] = reg.sync
	}
	return out
}

// Len returns the number of registered syncs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.syncs)
}
