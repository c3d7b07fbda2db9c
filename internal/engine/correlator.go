package engine

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/weftworks/weft/internal/ir"
)

// DefaultMatchTTL is the inactivity window after which a partial match is
// discarded. Expiry is not an error: the flow simply can no longer
// trigger that sync.
const DefaultMatchTTL = 10 * time.Minute

const correlatorShards = 16

// Correlator maintains partial-match state per (flow, sync) pair: which
// when clauses have been satisfied so far, and with what bindings.
//
// The table is sharded by a hash of the flow token with one mutex per
// shard, so unrelated flows never serialize against each other. Records
// idle longer than the TTL are discarded lazily on access and eagerly by
// Sweep.
type Correlator struct {
	ttl    time.Duration
	now    func() time.Time
	shards [correlatorShards]correlatorShard
}

type correlatorShard struct {
	mu      sync.Mutex
	partial map[string]*partialMatch
}

type partialMatch struct {
	matched  []bool
	bindings ir.Record
	lastSeen time.Time
}

// NewCorrelator creates a correlator with the given inactivity window.
// A non-positive ttl falls back to DefaultMatchTTL.
func NewCorrelator(ttl time.Duration) *Correlator {
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	c := &Correlator{ttl: ttl, now: time.Now}
	for i := range c.shards {
		c.shards[i].partial = make(map[string]*partialMatch)
	}
	return c
}

const partialKeySep = "\x00"

func partialKey(flow, syncName string) string {
	return flow + partialKeySep + syncName
}

func (c *Correlator) shardFor(flow string) *correlatorShard {
	h := fnv.New32a()
	h.Write([]byte(flow))
	return &c.shards[h.Sum32()%correlatorShards]
}

// Apply records that clauseIdx of the sync matched within the flow with
// the given bindings, merging them into the flow's partial record.
//
// Returns the full binding environment with complete=true once every when
// clause of the sync has matched; the partial record is consumed at that
// point. ok=false means the bindings disagreed with a variable already
// bound in this flow: the candidate is unsatisfiable and the partial
// record has been discarded.
func (c *Correlator) Apply(flow string, s *ir.Sync, clauseIdx int, bindings ir.Record) (env ir.Record, complete, ok bool) {
	shard := c.shardFor(flow)
	key := partialKey(flow, s.Name)
	now := c.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec := shard.partial[key]
	if rec != nil && now.Sub(rec.lastSeen) > c.ttl {
		delete(shard.partial, key)
		rec = nil
	}
	if rec == nil {
		rec = &partialMatch{
			matched:  make([]bool, len(s.When)),
			bindings: ir.Record{},
		}
		shard.partial[key] = rec
	}

	merged, agree := mergeBindings(rec.bindings, bindings)
	if !agree {
		delete(shard.partial, key)
		return nil, false, false
	}
	rec.bindings = merged
	rec.matched[clauseIdx] = true
	rec.lastSeen = now

	for _, m := range rec.matched {
		if !m {
			return nil, false, true
		}
	}

	// Every clause has matched: the environment is handed to where
	// evaluation and the partial record is spent.
	delete(shard.partial, key)
	return rec.bindings, true, true
}

// DropSync abandons all partial matches for the named sync, across every
// flow. Called on unregistration; best-effort, never an error.
func (c *Correlator) DropSync(name string) {
	suffix := partialKeySep + name
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		for key := range shard.partial {
			if strings.HasSuffix(key, suffix) {
				delete(shard.partial, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Sweep discards every partial match idle longer than the TTL and returns
// how many were removed.
func (c *Correlator) Sweep() int {
	now := c.now()
	removed := 0
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		for key, rec := range shard.partial {
			if now.Sub(rec.lastSeen) > c.ttl {
				delete(shard.partial, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// PartialCount returns the number of live partial-match records.
func (c *Correlator) PartialCount() int {
	n := 0
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		n += len(shard.partial)
		shard.mu.Unlock()
	}
	return n
}
