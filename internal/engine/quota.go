package engine

import "sync"

// DefaultMaxSteps is the default per-flow firing quota.
const DefaultMaxSteps = 1000

// stepQuota counts sync firings per flow and terminates flows that exceed
// the limit. The cycle guard catches recursive patterns; the quota catches
// linear explosions where many distinct syncs chain without repeating.
type stepQuota struct {
	mu       sync.Mutex
	maxSteps int
	counts   map[string]int
}

func newStepQuota(maxSteps int) *stepQuota {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &stepQuota{maxSteps: maxSteps, counts: make(map[string]int)}
}

// step charges one firing against the flow's quota. Returns a
// StepsExceededError once the limit is passed.
func (q *stepQuota) step(flow string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.counts[flow]++
	if q.counts[flow] > q.maxSteps {
		return &StepsExceededError{Flow: flow, Steps: q.counts[flow], Limit: q.maxSteps}
	}
	return nil
}

// clear forgets a flow's count.
func (q *stepQuota) clear(flow string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.counts, flow)
}
