// Package relsql backs the engine's opaque query capability with SQLite:
// each relation is a table, and a (relation, args) query compiles to a
// parameterized SELECT. The harness uses it to simulate concept state, so
// where-clause evaluation is exercised against real SQL rather than
// canned rows.
package relsql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/weftworks/weft/internal/ir"
)

// identRe constrains relation and field names to plain identifiers.
// Identifiers end up in SQL text, so anything else is rejected outright;
// values always travel as ? parameters.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}

// Compile turns a (relation, args) query into a parameterized SELECT.
// Args become equality predicates, conjoined, in sorted key order so the
// same query always compiles to the same SQL. Rows come back in rowid
// order, which is deterministic for a fixed insertion history.
func Compile(relation string, args ir.Record) (string, []any, error) {
	if err := checkIdent("relation", relation); err != nil {
		return "", nil, err
	}

	var (
		sb     strings.Builder
		params []any
	)
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(relation)

	if len(args) > 0 {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" WHERE ")
		for i, k := range keys {
			if err := checkIdent("field", k); err != nil {
				return "", nil, err
			}
			p, err := Param(args[k])
			if err != nil {
				return "", nil, fmt.Errorf("argument %q: %w", k, err)
			}
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(k)
			sb.WriteString(" = ?")
			params = append(params, p)
		}
	}

	sb.WriteString(" ORDER BY rowid ASC")
	return sb.String(), params, nil
}

// Param converts a payload value to a driver-compatible SQL parameter.
// Lists and records have no SQL scalar form.
func Param(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("value of type %T cannot be a SQL parameter", v)
	}
}

// Querier answers (relation, args) queries from a SQL database. It
// satisfies the engine's query capability interface.
type Querier struct {
	db *sql.DB
}

// NewQuerier wraps a database. The caller owns the connection.
func NewQuerier(db *sql.DB) *Querier {
	return &Querier{db: db}
}

// Query compiles and executes the relation query, converting each row to
// a Record. SQL NULLs are omitted from the row rather than decoded, since
// payloads carry no nulls.
func (q *Querier) Query(ctx context.Context, relation string, args ir.Record) ([]ir.Record, error) {
	query, params, err := Compile(relation, args)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", relation, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []ir.Record
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", relation, err)
		}

		rec := make(ir.Record, len(cols))
		for i, col := range cols {
			v, err := fromSQL(raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			if v != nil {
				rec[col] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// fromSQL converts a scanned SQL value to a payload value. nil maps to a
// nil Value, meaning the field is absent.
func fromSQL(v any) (ir.Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return ir.Int(val), nil
	case string:
		return ir.String(val), nil
	case []byte:
		return ir.String(val), nil
	case bool:
		return ir.Bool(val), nil
	case float64:
		return nil, fmt.Errorf("floats are forbidden in payloads: %v", val)
	default:
		return nil, fmt.Errorf("unsupported SQL value type %T", v)
	}
}

// CreateRelation creates a relation table with the given columns. Used by
// the harness to seed simulated concept state.
func CreateRelation(db *sql.DB, relation string, columns []string) error {
	if err := checkIdent("relation", relation); err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("relation %q needs at least one column", relation)
	}
	for _, c := range columns {
		if err := checkIdent("column", c); err != nil {
			return err
		}
	}
	_, err := db.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		relation, strings.Join(columns, ", ")))
	return err
}

// Insert adds one row to a relation table.
func Insert(db *sql.DB, relation string, row ir.Record) error {
	if err := checkIdent("relation", relation); err != nil {
		return err
	}
	if len(row) == 0 {
		return fmt.Errorf("empty row for relation %q", relation)
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]any, 0, len(keys))
	holders := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := checkIdent("column", k); err != nil {
			return err
		}
		p, err := Param(row[k])
		if err != nil {
			return fmt.Errorf("column %q: %w", k, err)
		}
		params = append(params, p)
		holders = append(holders, "?")
	}

	_, err := db.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		relation, strings.Join(keys, ", "), strings.Join(holders, ", ")), params...)
	return err
}
