// Package recordstore is a small table-oriented client: filtered select,
// insert, update and delete against named tables. Rows travel as maps so
// repositories can normalize whatever shape the backend returns.
package recordstore

import (
	"context"
	"fmt"
	"sort"
)

// Row is a single record keyed by column name.
type Row map[string]any

// Op is a comparison operator for Cond filters.
type Op string

const (
	OpEq   Op = "eq"
	OpNeq  Op = "neq"
	OpGt   Op = "gt"
	OpGte  Op = "gte"
	OpLt   Op = "lt"
	OpLte  Op = "lte"
	OpLike Op = "like"
)

// Cond is an explicit operator filter, e.g. {Op: OpLt, Value: cutoff}.
type Cond struct {
	Op    Op
	Value any
}

// Filters maps a column to its predicate:
//   - a scalar value means equality,
//   - a slice ([]string, []any, []int) means set membership,
//   - a Cond applies its operator.
type Filters map[string]any

// Query describes a select.
type Query struct {
	Fields  []string // empty selects every column
	Filters Filters
	OrderBy string
	Desc    bool
}

// Store is the record store contract used by the repositories.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)
	Update(ctx context.Context, table string, patch Row, filters Filters) ([]Row, error)
	Delete(ctx context.Context, table string, filters Filters) (int64, error)
}

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpLike:
		return true
	}
	return false
}

// sortedKeys gives filter and row columns a deterministic order so the
// generated SQL and its arguments are stable.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// asSlice reports whether v is a set-membership value and returns it as []any.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}

// String returns the column value as a string, or "" when absent or nil.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

// Bool returns the column value as a bool, false when absent.
func (r Row) Bool(col string) bool {
	b, _ := r[col].(bool)
	return b
}
