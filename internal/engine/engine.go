package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weftworks/weft/internal/ir"
	"github.com/weftworks/weft/internal/store"
)

// Engine glues the registry, matcher, correlator, where evaluator,
// dispatcher, pending queue, and conflict detector behind the external
// operations. Safe for concurrent use; see the package comment for the
// locking discipline.
type Engine struct {
	store     *store.Store
	log       *slog.Logger
	clock     *Clock
	flowGen   FlowGenerator
	registry  *Registry
	correlate *Correlator
	pending   *PendingQueue
	conflicts *ConflictDetector
	cycles    *CycleDetector
	quota     *stepQuota
	queriers  QuerierResolver
	catalog   map[string]*ir.ConceptSpec

	queryTimeout time.Duration
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	log            *slog.Logger
	flowGen        FlowGenerator
	clock          *Clock
	queriers       QuerierResolver
	catalog        map[string]*ir.ConceptSpec
	matchTTL       time.Duration
	queryTimeout   time.Duration
	maxSteps       int
	conflictWindow int
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithFlowGenerator sets the flow token source. Defaults to UUIDv7.
func WithFlowGenerator(g FlowGenerator) Option {
	return func(o *options) { o.flowGen = g }
}

// WithClock sets the logical clock, e.g. resumed from a ledger position.
func WithClock(c *Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithQueriers injects the per-concept query capability used by where
// evaluation. Without it every where clause fails with a QueryError.
func WithQueriers(r QuerierResolver) Option {
	return func(o *options) { o.queriers = r }
}

// WithCatalog supplies concept specs. When set, then targets are checked
// against it and conflict detection uses each concept's entity key.
func WithCatalog(specs []ir.ConceptSpec) Option {
	return func(o *options) {
		o.catalog = make(map[string]*ir.ConceptSpec, len(specs))
		for i := range specs {
			o.catalog[specs[i].URI] = &specs[i]
		}
	}
}

// WithMatchTTL sets the partial-match inactivity window.
func WithMatchTTL(ttl time.Duration) Option {
	return func(o *options) { o.matchTTL = ttl }
}

// WithQueryTimeout bounds each where-clause query call.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) { o.queryTimeout = d }
}

// WithMaxSteps sets the per-flow firing quota.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithConflictWindow sets how many dispatched invocations the conflict
// detector retains.
func WithConflictWindow(n int) Option {
	return func(o *options) { o.conflictWindow = n }
}

// New creates an engine backed by the given ledger.
func New(st *store.Store, opts ...Option) *Engine {
	o := &options{
		log:          slog.Default(),
		flowGen:      UUIDv7Generator{},
		clock:        NewClock(),
		matchTTL:     DefaultMatchTTL,
		queryTimeout: DefaultQueryTimeout,
		maxSteps:     DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.queryTimeout <= 0 {
		o.queryTimeout = DefaultQueryTimeout
	}

	entityKey := func(string) string { return ir.DefaultEntityKey }
	if o.catalog != nil {
		catalog := o.catalog
		entityKey = func(concept string) string {
			return catalog[concept].Entity()
		}
	}

	return &Engine{
		store:        st,
		log:          o.log,
		clock:        o.clock,
		flowGen:      o.flowGen,
		registry:     NewRegistry(),
		correlate:    NewCorrelator(o.matchTTL),
		pending:      NewPendingQueue(),
		conflicts:    NewConflictDetector(o.conflictWindow, entityKey),
		cycles:       NewCycleDetector(),
		quota:        newStepQuota(o.maxSteps),
		queriers:     o.queriers,
		catalog:      o.catalog,
		queryTimeout: o.queryTimeout,
	}
}

// RegisterSync validates and registers a sync. Returns a SpecError when
// the definition is malformed or the name is taken; registration is never
// partially applied.
func (e *Engine) RegisterSync(s ir.Sync) error {
	if err := e.registry.Register(s); err != nil {
		return err
	}
	e.log.Info("sync registered", "sync", s.Name, "when", len(s.When), "where", len(s.Where), "then", len(s.Then))
	return nil
}

// UnregisterSync removes a sync by name. In-flight partial matches for it
// are abandoned best-effort.
func (e *Engine) UnregisterSync(name string) {
	e.registry.Unregister(name)
	e.correlate.DropSync(name)
	e.log.Info("sync unregistered", "sync", name)
}

// OnCompletion feeds one action completion through the engine and returns
// the invocations the caller should dispatch. Completions without a flow
// are root triggers and receive a fresh flow token. Duplicate deliveries
// of the same completion return no invocations.
//
// Candidate-scoped failures (query errors, cycles, unsatisfiable
// bindings) are logged and skipped; they never fail the call. The
// returned error is reserved for ledger failures and flow termination by
// quota.
func (e *Engine) OnCompletion(ctx context.Context, comp ir.Completion) ([]ir.Invocation, error) {
	c := comp
	if c.Flow == "" {
		c.Flow = e.flowGen.NewFlow()
	}
	// Identity is derived from the completion as delivered, before the
	// engine stamps its own seq: an identical redelivery must produce the
	// identical ID or at-most-once firing cannot hold.
	if c.ID == "" {
		id, err := ir.CompletionID(c.Concept, c.Action, c.Variant, c.Output, c.Flow, c.Seq)
		if err != nil {
			return nil, fmt.Errorf("completion id: %w", err)
		}
		c.ID = id
	}
	if c.Seq == 0 {
		c.Seq = e.clock.Next()
	}

	if err := e.store.WriteCompletion(ctx, c); err != nil {
		return nil, fmt.Errorf("write completion: %w", err)
	}

	emitted := []ir.Invocation{}
	for _, s := range e.registry.CandidatesFor(c.TriggerKey()) {
		envs := e.collectMatches(s, &c)
		for _, env := range envs {
			extended, err := e.evaluateWhere(ctx, s.Name, s.Where, env)
			if err != nil {
				e.log.Warn("candidate dropped", "error", err)
				continue
			}
			for _, final := range extended {
				invs, err := e.fire(ctx, s, final, &c)
				if err == nil {
					emitted = append(emitted, invs...)
					continue
				}
				var cycleErr *CycleError
				if errors.As(err, &cycleErr) {
					e.log.Warn("firing refused", "error", err)
					continue
				}
				var stepsErr *StepsExceededError
				if errors.As(err, &stepsErr) {
					e.log.Error("flow terminated", "error", err)
					return emitted, err
				}
				return emitted, err
			}
		}
	}
	return emitted, nil
}

// collectMatches matches the completion against the sync's when clauses
// and returns the complete binding environments ready for where
// evaluation. Zero environments means the candidate did not (yet) match.
func (e *Engine) collectMatches(s *ir.Sync, c *ir.Completion) []ir.Record {
	if len(s.When) == 1 {
		if bindings, ok := matchClause(s.When[0], c); ok {
			return []ir.Record{bindings}
		}
		return nil
	}

	var envs []ir.Record
	for i, clause := range s.When {
		bindings, ok := matchClause(clause, c)
		if !ok {
			continue
		}
		env, complete, agree := e.correlate.Apply(c.Flow, s, i, bindings)
		if !agree {
			e.log.Warn("candidate unsatisfiable, bindings disagree",
				"sync", s.Name, "flow", c.Flow, "clause", i)
			break
		}
		if complete {
			envs = append(envs, env)
			break
		}
	}
	return envs
}

// EvaluateWhere runs where clauses over a binding environment in
// isolation, for tooling and debugging of a sync definition.
func (e *Engine) EvaluateWhere(ctx context.Context, bindings ir.Record, clauses []ir.WhereClause) ([]ir.Record, error) {
	return e.evaluateWhere(ctx, "(adhoc)", clauses, bindings)
}

// QueueSync renders a sync's then clauses against the given bindings and
// parks every resulting invocation on the pending queue, for callers that
// know the targets are unavailable ahead of dispatch. Returns the pending
// id shared by the queued batch.
func (e *Engine) QueueSync(s ir.Sync, bindings ir.Record, flow string) (string, error) {
	if issues := s.Validate(); len(issues) > 0 {
		return "", &SpecError{SyncName: s.Name, Issues: issues}
	}
	if flow == "" {
		flow = e.flowGen.NewFlow()
	}

	invs, dispErrs := e.renderThen(&s, bindings, flow)
	for _, derr := range dispErrs {
		e.log.Warn("then clause dropped", "error", derr)
	}
	if len(invs) == 0 {
		if len(dispErrs) > 0 {
			return "", dispErrs[0]
		}
		return "", fmt.Errorf("sync %q rendered no invocations", s.Name)
	}

	pendingID := uuid.Must(uuid.NewV7()).String()
	for _, inv := range invs {
		e.pending.Enqueue(ir.PendingInvocation{
			PendingID:  pendingID,
			Invocation: inv,
			SyncName:   s.Name,
			Flow:       flow,
			Seq:        inv.Seq,
		})
	}
	e.log.Info("sync queued", "sync", s.Name, "flow", flow, "pending_id", pendingID, "invocations", len(invs))
	return pendingID, nil
}

// OnAvailabilityChange updates a concept's availability. A transition to
// available drains and returns that concept's pending invocations in FIFO
// order, exactly once.
func (e *Engine) OnAvailabilityChange(conceptURI string, available bool) []ir.Invocation {
	drained := e.pending.SetAvailability(conceptURI, available)
	invs := make([]ir.Invocation, len(drained))
	for i, pi := range drained {
		invs[i] = pi.Invocation
		e.conflicts.Observe(pi.Invocation)
	}
	e.log.Info("availability changed", "concept", conceptURI, "available", available, "drained", len(invs))
	return invs
}

// DrainConflicts scans pending and recently dispatched invocations for
// distinct flows targeting the same (concept, entity) and returns them as
// advisory records. The recency window is consumed by the scan.
func (e *Engine) DrainConflicts() []ir.ConflictRecord {
	return e.conflicts.Drain(e.pending.Snapshot())
}

// SweepPartialMatches discards expired partial matches and returns how
// many were removed. Call periodically from the hosting process.
func (e *Engine) SweepPartialMatches() int {
	return e.correlate.Sweep()
}

// ReleaseFlow drops the in-memory cycle history and step quota of a flow
// the caller knows has finished.
func (e *Engine) ReleaseFlow(flow string) {
	e.cycles.Clear(flow)
	e.quota.clear(flow)
}

// NewFlow mints a flow token for a root trigger the caller constructs
// itself.
func (e *Engine) NewFlow() string {
	return e.flowGen.NewFlow()
}
