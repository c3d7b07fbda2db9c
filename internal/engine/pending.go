package engine

import (
	"sync"

	"github.com/weftworks/weft/internal/ir"
)

// PendingQueue tracks per-concept availability and holds invocations whose
// target was unavailable at dispatch time. Entries drain in FIFO order,
// destructively, when the concept transitions back to available.
//
// State is keyed per concept with one lock per entry, so a drain of one
// concept never blocks enqueues for another. Concepts are available until
// marked otherwise.
type PendingQueue struct {
	mu       sync.RWMutex
	concepts map[string]*conceptQueue
}

type conceptQueue struct {
	mu          sync.Mutex
	unavailable bool
	items       []ir.PendingInvocation
}

// NewPendingQueue creates an empty queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{concepts: make(map[string]*conceptQueue)}
}

func (p *PendingQueue) queueFor(concept string) *conceptQueue {
	p.mu.RLock()
	q := p.concepts[concept]
	p.mu.RUnlock()
	if q != nil {
		return q
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if q = p.concepts[concept]; q == nil {
		q = &conceptQueue{}
		p.concepts[concept] = q
	}
	return q
}

// Available reports whether the concept is currently marked available.
func (p *PendingQueue) Available(concept string) bool {
	p.mu.RLock()
	q := p.concepts[concept]
	p.mu.RUnlock()
	if q == nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.unavailable
}

// Enqueue parks an invocation for the concept it targets.
func (p *PendingQueue) Enqueue(pi ir.PendingInvocation) {
	q := p.queueFor(pi.Invocation.Concept)
	q.mu.Lock()
	q.items = append(q.items, pi)
	q.mu.Unlock()
}

// SetAvailability updates a concept's availability. On a transition (or
// re-assertion) to available it drains and returns the concept's pending
// invocations in the FIFO order they were queued. Drain is destructive:
// a second toggle without new queuing events returns nothing.
func (p *PendingQueue) SetAvailability(concept string, available bool) []ir.PendingInvocation {
	q := p.queueFor(concept)
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unavailable = !available
	if !available {
		return nil
	}
	drained := q.items
	q.items = nil
	return drained
}

// Snapshot returns a copy of every queued invocation, for conflict
// scanning. The queue is unchanged.
func (p *PendingQueue) Snapshot() []ir.PendingInvocation {
	p.mu.RLock()
	queues := make([]*conceptQueue, 0, len(p.concepts))
	for _, q := range p.concepts {
		queues = append(queues, q)
	}
	p.mu.RUnlock()

	var out []ir.PendingInvocation
	for _, q := range queues {
		q.mu.Lock()
		out = append(out, q.items...)
		q.mu.Unlock()
	}
	return out
}

// Len returns the total number of queued invocations.
func (p *PendingQueue) Len() int {
	return len(p.Snapshot())
}
