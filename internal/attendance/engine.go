package attendance

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/model"
)

// SortField names a log sort key.
type SortField string

const (
	SortTimestamp   SortField = "timestamp"
	SortLastName    SortField = "lastName"
	SortFirstName   SortField = "firstName"
	SortPerformedBy SortField = "performedBy"
	SortAction      SortField = "action"
)

// SortDir is a sort direction.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// fallbackChain is the tie-break order. The requested field moves to the
// front; the rest keep this order.
var fallbackChain = []SortField{SortTimestamp, SortLastName, SortFirstName, SortPerformedBy, SortAction}

var defaultDir = map[SortField]SortDir{
	SortTimestamp:   Desc,
	SortLastName:    Asc,
	SortFirstName:   Asc,
	SortPerformedBy: Asc,
	SortAction:      Asc,
}

// Criteria is a feed query.
//
// StartDate and EndDate accept a YYYY-MM-DD day or a full RFC 3339
// instant. A day bound covers the whole day: EndDate "2024-01-15"
// includes 2024-01-15T23:59:59.999Z.
type Criteria struct {
	Search    string
	StartDate string
	EndDate   string
	Action    model.Action
	SortField SortField
	SortDir   SortDir
}

// DefaultCriteria is the feed's initial state: newest first, no filters.
func DefaultCriteria() Criteria {
	return Criteria{SortField: SortTimestamp, SortDir: Desc}
}

// Field projects a row to a searchable string.
type Field func(model.LogRecord) string

// FieldMap lists the projections searched by the text filter, in order.
type FieldMap []Field

// DefaultFieldMap searches the student name, the action and the raw timestamp.
var DefaultFieldMap = FieldMap{
	func(r model.LogRecord) string { return r.StudentName() },
	func(r model.LogRecord) string { return string(r.Action) },
	func(r model.LogRecord) string { return r.Timestamp },
}

// Validate checks the bounds, sort field and direction.
func (c Criteria) Validate() error {
	if c.StartDate != "" {
		if _, ok := parseBound(c.StartDate, false); !ok {
			return apperror.Validation("start", "invalid start date %q", c.StartDate)
		}
	}
	if c.EndDate != "" {
		if _, ok := parseBound(c.EndDate, true); !ok {
			return apperror.Validation("end", "invalid end date %q", c.EndDate)
		}
	}
	if c.Action != "" && !model.Action(strings.ToLower(string(c.Action))).Valid() {
		return apperror.Validation("action", "invalid action %q", c.Action)
	}
	if c.SortField != "" && !slices.Contains(fallbackChain, c.SortField) {
		return apperror.Validation("sort", "invalid sort field %q", c.SortField)
	}
	if c.SortDir != "" && c.SortDir != Asc && c.SortDir != Desc {
		return apperror.Validation("dir", "invalid sort direction %q", c.SortDir)
	}
	return nil
}

// bound is one side of the date filter. Exclusive upper bounds come from
// day-granularity end dates (next midnight).
type bound struct {
	at        time.Time
	exclusive bool
}

func parseBound(s string, upper bool) (bound, bool) {
	if d, ok := ParseDate(s); ok {
		if upper {
			return bound{at: d.AddDate(0, 0, 1), exclusive: true}, true
		}
		return bound{at: d}, true
	}
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
		return bound{at: t.UTC()}, true
	}
	return bound{}, false
}

// ApplySortAndFilter filters rows by c and returns them in a stable total
// order. The input slice is not modified. A nil fields uses DefaultFieldMap.
func ApplySortAndFilter(rows []model.LogRecord, c Criteria, fields FieldMap) []model.LogRecord {
	if fields == nil {
		fields = DefaultFieldMap
	}

	var (
		search    = strings.ToLower(strings.TrimSpace(c.Search))
		action    = strings.ToLower(string(c.Action))
		lo, hasLo = optionalBound(c.StartDate, false)
		hi, hasHi = optionalBound(c.EndDate, true)
		dated     = hasLo || hasHi
	)

	out := make([]model.LogRecord, 0, len(rows))
	for _, r := range rows {
		if search != "" && !strings.Contains(project(r, fields), search) {
			continue
		}
		if dated {
			t, ok := ParseInstant(r.Timestamp)
			if !ok {
				continue
			}
			if hasLo && t.Before(lo.at) {
				continue
			}
			if hasHi && (t.After(hi.at) || (hi.exclusive && t.Equal(hi.at))) {
				continue
			}
		}
		if action != "" && strings.ToLower(string(r.Action)) != action {
			continue
		}
		out = append(out, r)
	}

	Sort(out, c.SortField, c.SortDir)
	return out
}

func optionalBound(s string, upper bool) (bound, bool) {
	if strings.TrimSpace(s) == "" {
		return bound{}, false
	}
	return parseBound(s, upper)
}

func project(r model.LogRecord, fields FieldMap) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f(r)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Sort orders rows in place by primary, then by the remaining fields of
// the fallback chain in their default directions. An empty primary means
// timestamp; an empty dir means the primary's default direction.
func Sort(rows []model.LogRecord, primary SortField, dir SortDir) {
	if primary == "" {
		primary = SortTimestamp
	}
	if dir == "" {
		dir = defaultDir[primary]
	}

	chain := make([]SortField, 0, len(fallbackChain))
	chain = append(chain, primary)
	for _, f := range fallbackChain {
		if f != primary {
			chain = append(chain, f)
		}
	}

	// collate.Collator keeps internal buffers, one per sort.
	cl := collate.New(language.English, collate.IgnoreCase)
	cache := newInstantCache(rows)

	slices.SortStableFunc(rows, func(a, b model.LogRecord) int {
		for _, f := range chain {
			d := defaultDir[f]
			if f == primary {
				d = dir
			}
			if c := compareField(cl, cache, f, d, a, b); c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareField(cl *collate.Collator, cache instantCache, f SortField, dir SortDir, a, b model.LogRecord) int {
	if f == SortTimestamp {
		return compareInstants(cache.get(a.Timestamp), cache.get(b.Timestamp), dir)
	}

	var c int
	switch f {
	case SortLastName:
		c = cl.CompareString(a.StudentLastName, b.StudentLastName)
	case SortFirstName:
		c = cl.CompareString(a.StudentFirstName, b.StudentFirstName)
	case SortPerformedBy:
		c = cl.CompareString(a.PerformerLastName, b.PerformerLastName)
		if c == 0 {
			c = cl.CompareString(a.PerformerFirstName, b.PerformerFirstName)
		}
	case SortAction:
		c = cl.CompareString(string(a.Action), string(b.Action))
	}
	if dir == Desc {
		return -c
	}
	return c
}

type parsedInstant struct {
	t  time.Time
	ok bool
}

// compareInstants places unparsable instants last in either direction.
func compareInstants(a, b parsedInstant, dir SortDir) int {
	switch {
	case !a.ok && !b.ok:
		return 0
	case !a.ok:
		return 1
	case !b.ok:
		return -1
	}
	c := a.t.Compare(b.t)
	if dir == Desc {
		return -c
	}
	return c
}

type instantCache map[string]parsedInstant

func newInstantCache(rows []model.LogRecord) instantCache {
	cache := make(instantCache, len(rows))
	for _, r := range rows {
		if _, seen := cache[r.Timestamp]; seen {
			continue
		}
		t, ok := ParseInstant(r.Timestamp)
		cache[r.Timestamp] = parsedInstant{t: t, ok: ok}
	}
	return cache
}

func (c instantCache) get(s string) parsedInstant {
	if p, ok := c[s]; ok {
		return p
	}
	t, ok := ParseInstant(s)
	return parsedInstant{t: t, ok: ok}
}

// SortOption is a parsed sort dropdown value.
type SortOption struct {
	Field  SortField
	Dir    SortDir
	Action model.Action // set by "action-in" / "action-out"
}

// ParseSortOption parses dropdown values such as "lastName-desc",
// "timestamp", "action-in" and "action-out". A bare field uses its
// default direction. ok is false for unknown fields.
func ParseSortOption(v string) (SortOption, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return SortOption{Field: SortTimestamp, Dir: Desc}, true
	}

	field, suffix, _ := strings.Cut(v, "-")
	f := SortField(field)
	if !slices.Contains(fallbackChain, f) {
		return SortOption{}, false
	}

	opt := SortOption{Field: f, Dir: defaultDir[f]}
	switch suffix {
	case "":
	case string(Asc), string(Desc):
		opt.Dir = SortDir(suffix)
	case string(model.ActionIn), string(model.ActionOut):
		if f != SortAction {
			return SortOption{}, false
		}
		opt.Action = model.Action(suffix)
	default:
		return SortOption{}, false
	}
	return opt, true
}
