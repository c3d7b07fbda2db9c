package engine

import (
	"sort"
	"strconv"
	"sync"

	"github.com/weftworks/weft/internal/ir"
)

// DefaultConflictWindow is how many recently dispatched invocations the
// detector retains for scanning alongside the pending queue.
const DefaultConflictWindow = 256

// ConflictDetector surfaces concurrent, potentially incompatible effects:
// two or more queued or recently dispatched invocations targeting the
// same (concept, entity) from distinct flows. It reports, never resolves;
// conflict policy belongs to the caller.
type ConflictDetector struct {
	mu        sync.Mutex
	window    int
	recent    []ir.Invocation
	entityKey func(concept string) string
}

// NewConflictDetector creates a detector with the given recency window.
// entityKey maps a concept URI to the input field identifying the entity
// an invocation mutates; nil uses ir.DefaultEntityKey for every concept.
func NewConflictDetector(window int, entityKey func(concept string) string) *ConflictDetector {
	if window <= 0 {
		window = DefaultConflictWindow
	}
	if entityKey == nil {
		entityKey = func(string) string { return ir.DefaultEntityKey }
	}
	return &ConflictDetector{window: window, entityKey: entityKey}
}

// Observe records a dispatched invocation into the recency window.
func (d *ConflictDetector) Observe(inv ir.Invocation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recent = append(d.recent, inv)
	if excess := len(d.recent) - d.window; excess > 0 {
		d.recent = append(d.recent[:0:0], d.recent[excess:]...)
	}
}

// Drain scans the given pending invocations plus the recency window for
// (concept, entity) pairs targeted from two or more distinct flows, and
// clears the window. Records are ordered by concept then entity; the
// invocations within a record keep observation order.
func (d *ConflictDetector) Drain(pending []ir.PendingInvocation) []ir.ConflictRecord {
	d.mu.Lock()
	recent := d.recent
	d.recent = nil
	d.mu.Unlock()

	invs := make([]ir.Invocation, 0, len(recent)+len(pending))
	invs = append(invs, recent...)
	for _, pi := range pending {
		invs = append(invs, pi.Invocation)
	}

	type group struct {
		concept, entity string
		flows           map[string]bool
		invocations     []ir.Invocation
	}
	groups := make(map[string]*group)
	for _, inv := range invs {
		entity, ok := d.entityOf(inv)
		if !ok {
			continue
		}
		key := inv.Concept + "\x00" + entity
		g := groups[key]
		if g == nil {
			g = &group{concept: inv.Concept, entity: entity, flows: make(map[string]bool)}
			groups[key] = g
		}
		g.flows[inv.Flow] = true
		g.invocations = append(g.invocations, inv)
	}

	var records []ir.ConflictRecord
	for _, g := range groups {
		if len(g.flows) < 2 {
			continue
		}
		flows := make([]string, 0, len(g.flows))
		for f := range g.flows {
			flows = append(flows, f)
		}
		sort.Strings(flows)
		records = append(records, ir.ConflictRecord{
			Concept:     g.concept,
			Entity:      g.entity,
			Flows:       flows,
			Invocations: g.invocations,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Concept != records[j].Concept {
			return records[i].Concept < records[j].Concept
		}
		return records[i].Entity < records[j].Entity
	})
	return records
}

// entityOf extracts the entity identifier from the invocation's input.
// Invocations without the entity field carry no entity to conflict on.
func (d *ConflictDetector) entityOf(inv ir.Invocation) (string, bool) {
	v, ok := inv.Input[d.entityKey(inv.Concept)]
	if !ok {
		return "", false
	}
	switch id := v.(type) {
	case ir.String:
		return string(id), true
	case ir.Int:
		return strconv.FormatInt(int64(id), 10), true
	default:
		return "", false
	}
}
