package engine

import (
	"sync"

	"github.com/google/uuid"
)

// FlowGenerator mints flow tokens for root triggers, completions that
// arrive without a flow of their own. Invocations produced by a firing
// always inherit the triggering completion's flow.
type FlowGenerator interface {
	NewFlow() string
}

// UUIDv7Generator mints time-sortable UUIDv7 flow tokens. The embedded
// timestamp makes flows sort by creation time in traces.
//
// Stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewFlow returns a fresh hyphenated UUIDv7 string.
func (UUIDv7Generator) NewFlow() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out a predetermined token sequence, for tests that
// compare traces against golden files.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
// It panics once the sequence is exhausted, which catches tests that
// create more flows than they declared.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// NewFlow returns the next predetermined token.
func (g *FixedGenerator) NewFlow() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all flow tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}
