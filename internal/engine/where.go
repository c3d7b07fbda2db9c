package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/ir"
)

// DefaultQueryTimeout bounds each where-clause query call. A timed-out
// candidate is dropped with a QueryError instead of blocking the matcher.
const DefaultQueryTimeout = 5 * time.Second

// Querier is the opaque query capability of one concept, supplied by the
// caller at engine construction. The engine never touches concept storage
// directly.
type Querier interface {
	Query(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error)
}

// QuerierFunc adapts a function to the Querier interface.
type QuerierFunc func(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error)

func (f QuerierFunc) Query(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error) {
	return f(ctx, relation, args)
}

// QuerierResolver maps a concept URI to its query capability. Returning
// nil means the concept has no querier, which surfaces as a QueryError
// for any candidate whose where clauses need it.
type QuerierResolver func(conceptURI string) Querier

// evaluateWhere runs the sync's where clauses over the initial binding
// environment with relational join semantics. Each clause queries once
// per current environment; every returned row extends that environment,
// so N rows produce up to N extensions. Zero rows yields zero candidates,
// not an error.
//
// The caller must not hold any correlator or queue lock: bindings are
// captured before this call and query results are reapplied after it.
func (e *Engine) evaluateWhere(ctx context.Context, syncName string, clauses []ir.WhereClause, initial ir.Record) ([]ir.Record, error) {
	envs := []ir.Record{initial}

	for _, clause := range clauses {
		if len(envs) == 0 {
			return nil, nil
		}

		querier := e.resolveQuerier(clause.Concept)
		if querier == nil {
			return nil, &QueryError{
				SyncName: syncName,
				Concept:  clause.Concept,
				Relation: clause.Relation,
				Err:      fmt.Errorf("no query capability for concept %q", clause.Concept),
			}
		}

		var next []ir.Record
		for _, env := range envs {
			args, err := renderArgs(clause.Args, env)
			if err != nil {
				return nil, &QueryError{SyncName: syncName, Concept: clause.Concept, Relation: clause.Relation, Err: err}
			}

			rows, err := e.runQuery(ctx, querier, clause.Relation, args)
			if err != nil {
				return nil, &QueryError{SyncName: syncName, Concept: clause.Concept, Relation: clause.Relation, Err: err}
			}

			for _, row := range rows {
				if ext, ok := extendEnv(env, clause.Bindings, row); ok {
					next = append(next, ext)
				}
			}
		}
		envs = next
	}
	return envs, nil
}

func (e *Engine) resolveQuerier(concept string) Querier {
	if e.queriers == nil {
		return nil
	}
	return e.queriers(concept)
}

// runQuery executes one capability call under the per-query timeout.
func (e *Engine) runQuery(ctx context.Context, q Querier, relation string, args ir.Record) ([]ir.Record, error) {
	qctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()
	return q.Query(qctx, relation, args)
}

// renderArgs resolves a clause's argument expressions against the binding
// environment: "bound.x" references take the bound value, anything else
// passes through as a string literal.
func renderArgs(args map[string]string, env ir.Record) (ir.Record, error) {
	out := make(ir.Record, len(args))
	for name, expr := range args {
		if variable, ok := ir.BoundVar(expr); ok {
			v, bound := env[variable]
			if !bound {
				return nil, fmt.Errorf("argument %q references unbound variable %q", name, variable)
			}
			out[name] = v
			continue
		}
		out[name] = ir.String(expr)
	}
	return out, nil
}

// extendEnv extends env with the row fields the clause binds. A row field
// missing from the result, or a value disagreeing with an already-bound
// variable, drops this extension (unsatisfiable, not an error).
func extendEnv(env ir.Record, bindings map[string]string, row ir.Record) (ir.Record, bool) {
	ext := make(ir.Record, len(env)+len(bindings))
	for k, v := range env {
		ext[k] = v
	}
	for variable, field := range bindings {
		v, ok := row[field]
		if !ok {
			return nil, false
		}
		if existing, bound := ext[variable]; bound && !ir.Equal(existing, v) {
			return nil, false
		}
		ext[variable] = v
	}
	return ext, true
}
