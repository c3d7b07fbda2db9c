package engine

import "sync"

// CycleDetector refuses a firing when the same (sync, binding hash) pair
// has already fired within a flow. Chained syncs can loop: A's then
// triggers B, whose then triggers A with the same bindings, forever.
//
// This check is distinct from firing idempotency. Idempotency asks "has
// this (sync, flow, completion, binding) fired?" against the persistent
// ledger and absorbs redelivery; the cycle guard asks "has this (sync,
// binding) fired anywhere in this flow?" in memory and breaks loops where
// each iteration arrives via a fresh completion.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // flow -> sync \x00 binding hash
}

// NewCycleDetector creates an empty detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{history: make(map[string]map[string]bool)}
}

func cycleKey(syncName, bindingHash string) string {
	return syncName + "\x00" + bindingHash
}

// WouldCycle reports whether firing (sync, binding hash) again in this
// flow would loop.
func (c *CycleDetector) WouldCycle(flow, syncName, bindingHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history[flow][cycleKey(syncName, bindingHash)]
}

// Record marks the pair as fired in this flow. Call after WouldCycle
// returns false, before dispatching.
func (c *CycleDetector) Record(flow, syncName, bindingHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[flow] == nil {
		c.history[flow] = make(map[string]bool)
	}
	c.history[flow][cycleKey(syncName, bindingHash)] = true
}

// Clear drops all history for a flow once it completes or is abandoned.
func (c *CycleDetector) Clear(flow string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, flow)
}
