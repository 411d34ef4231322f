package recordstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and by the memory queue
// backend in development. Rows without an "id" get a fresh UUID on insert.
type Memory struct {
	mu      sync.RWMutex
	tables  map[string][]Row
	keyless map[string]bool

	// FailOn makes the named operation ("select", "insert", "update",
	// "delete") return an error. Tests use it to simulate store outages.
	FailOn map[string]error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tables:  make(map[string][]Row),
		keyless: make(map[string]bool),
		FailOn:  make(map[string]error),
	}
}

// Keyless marks tables whose rows have no id column (join tables).
func (m *Memory) Keyless(tables ...string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tables {
		m.keyless[t] = true
	}
	return m
}

// Seed replaces the contents of a table.
func (m *Memory) Seed(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Row, len(rows))
	for i, r := range rows {
		cp[i] = maps.Clone(r)
	}
	m.tables[table] = cp
}

// Rows returns a copy of a table's rows.
func (m *Memory) Rows(table string) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Row, len(m.tables[table]))
	for i, r := range m.tables[table] {
		out[i] = maps.Clone(r)
	}
	return out
}

func (m *Memory) fail(op string) error {
	if err, ok := m.FailOn[op]; ok && err != nil {
		return err
	}
	return nil
}

func (m *Memory) Select(_ context.Context, table string, q Query) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("select"); err != nil {
		return nil, err
	}

	var out []Row
	for _, r := range m.tables[table] {
		ok, err := matches(r, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, project(r, q.Fields))
		}
	}

	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b Row) int {
			c := compareValues(a[q.OrderBy], b[q.OrderBy])
			if q.Desc {
				return -c
			}
			return c
		})
	}
	return out, nil
}

func (m *Memory) Insert(_ context.Context, table string, rows []Row) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("insert"); err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		cp := maps.Clone(r)
		if cp == nil {
			cp = Row{}
		}
		if _, ok := cp["id"]; !ok && !m.keyless[table] {
			cp["id"] = uuid.NewString()
		}
		m.tables[table] = append(m.tables[table], cp)
		out = append(out, maps.Clone(cp))
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, table string, patch Row, filters Filters) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update"); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("update %s: refusing unfiltered update", table)
	}

	var out []Row
	for _, r := range m.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		maps.Copy(r, patch)
		out = append(out, maps.Clone(r))
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, table string, filters Filters) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete"); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete %s: refusing unfiltered delete", table)
	}

	// The table is only replaced once every row has been checked.
	kept := make([]Row, 0, len(m.tables[table]))
	var n int64
	for _, r := range m.tables[table] {
		ok, err := matches(r, filters)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	return n, nil
}

func project(r Row, fields []string) Row {
	if len(fields) == 0 {
		return maps.Clone(r)
	}
	out := make(Row, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

func matches(r Row, filters Filters) (bool, error) {
	for col, want := range filters {
		got := r[col]

		if cond, ok := want.(Cond); ok {
			if !cond.Op.valid() {
				return false, fmt.Errorf("filter %s: unknown operator %q", col, cond.Op)
			}
			if !applyOp(cond.Op, got, cond.Value) {
				return false, nil
			}
			continue
		}

		if set, ok := asSlice(want); ok {
			if !slices.ContainsFunc(set, func(v any) bool { return compareValues(got, v) == 0 && got != nil }) {
				return false, nil
			}
			continue
		}

		if want == nil {
			if got != nil {
				return false, nil
			}
			continue
		}
		if got == nil || compareValues(got, want) != 0 {
			return false, nil
		}
	}
	return true, nil
}

func applyOp(op Op, got, want any) bool {
	if got == nil {
		return op == OpNeq && want != nil
	}
	if op == OpLike {
		return likeMatch(fmt.Sprint(got), fmt.Sprint(want))
	}
	c := compareValues(got, want)
	switch op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

// likeMatch supports the % wildcard only.
func likeMatch(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

// compareValues orders two column values. Instants compare as instants
// even when one side is an RFC 3339 string; numbers compare numerically.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if p, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return p, true
		}
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
