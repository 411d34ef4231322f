package recordstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres-backed record store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Select runs SELECT <fields> FROM <table> WHERE <filters> [ORDER BY].
func (s *Postgres) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	sql, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return collect(rows)
}

// Insert inserts rows sharing the first row's column set and returns them.
func (s *Postgres) Insert(ctx context.Context, table string, rows []Row) ([]Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	sql, args := buildInsert(table, rows)
	res, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return collect(res)
}

// Update applies patch to every row matched by filters and returns them.
func (s *Postgres) Update(ctx context.Context, table string, patch Row, filters Filters) ([]Row, error) {
	sql, args, err := buildUpdate(table, patch, filters)
	if err != nil {
		return nil, err
	}
	res, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", table, err)
	}
	return collect(res)
}

// Delete removes every row matched by filters and reports how many went.
func (s *Postgres) Delete(ctx context.Context, table string, filters Filters) (int64, error) {
	sql, args, err := buildDelete(table, filters)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func collect(rows pgx.Rows) ([]Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func buildSelect(table string, q Query) (string, []any, error) {
	cols := "*"
	if len(q.Fields) > 0 {
		quoted := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			quoted[i] = ident(strings.TrimSpace(f))
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	b.WriteString("SELECT " + cols + " FROM " + ident(table))

	where, args, err := buildWhere(q.Filters, 1)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)

	if q.OrderBy != "" {
		b.WriteString(" ORDER BY " + ident(q.OrderBy))
		if q.Desc {
			b.WriteString(" DESC")
		}
	}
	return b.String(), args, nil
}

func buildInsert(table string, rows []Row) (string, []any) {
	cols := sortedKeys(rows[0])
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}

	args := make([]any, 0, len(rows)*len(cols))
	tuples := make([]string, 0, len(rows))
	for _, r := range rows {
		ph := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, r[c])
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}

	sql := "INSERT INTO " + ident(table) + " (" + strings.Join(quoted, ", ") + ") VALUES " +
		strings.Join(tuples, ", ") + " RETURNING *"
	return sql, args
}

func buildUpdate(table string, patch Row, filters Filters) (string, []any, error) {
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("update %s: empty patch", table)
	}
	if len(filters) == 0 {
		return "", nil, fmt.Errorf("update %s: refusing unfiltered update", table)
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+len(filters))
	for _, c := range sortedKeys(patch) {
		args = append(args, patch[c])
		sets = append(sets, ident(c)+" = $"+strconv.Itoa(len(args)))
	}

	where, wargs, err := buildWhere(filters, len(args)+1)
	if err != nil {
		return "", nil, err
	}
	args = append(args, wargs...)
	return "UPDATE " + ident(table) + " SET " + strings.Join(sets, ", ") + where + " RETURNING *", args, nil
}

func buildDelete(table string, filters Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, fmt.Errorf("delete %s: refusing unfiltered delete", table)
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + ident(table) + where, args, nil
}

// buildWhere renders filters as " WHERE ..." with placeholders numbered
// from start. Empty filters render as "".
func buildWhere(filters Filters, start int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	n := start
	clauses := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))

	for _, col := range sortedKeys(filters) {
		v := filters[col]
		c := ident(col)

		if cond, ok := v.(Cond); ok {
			if !cond.Op.valid() {
				return "", nil, fmt.Errorf("filter %s: unknown operator %q", col, cond.Op)
			}
			clauses = append(clauses, c+" "+sqlOp(cond.Op)+" $"+strconv.Itoa(n))
			args = append(args, cond.Value)
			n++
			continue
		}

		if set, ok := asSlice(v); ok {
			if len(set) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			ph := make([]string, len(set))
			for i, x := range set {
				ph[i] = "$" + strconv.Itoa(n)
				args = append(args, x)
				n++
			}
			clauses = append(clauses, c+" IN ("+strings.Join(ph, ", ")+")")
			continue
		}

		if v == nil {
			clauses = append(clauses, c+" IS NULL")
			continue
		}
		clauses = append(clauses, c+" = $"+strconv.Itoa(n))
		args = append(args, v)
		n++
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func sqlOp(o Op) string {
	switch o {
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpLike:
		return "LIKE"
	}
	return "="
}
