package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/store"
)

// searchBatchSize is how many documents one FT.SEARCH page fetches.
const searchBatchSize = 256

// Execute runs a plan against the search index. The index query is a
// pruning superset: every fetched row is re-evaluated against the exact
// predicate tree, re-sorted with the full comparator, and seek-filtered.
// The index-side seek bound is deliberately weak (non-strict, primary field
// only) so rows tied on the primary sort value are never skipped.
func (s *Store) Execute(ctx context.Context, plan *query.Plan, seek []any) ([]*store.Record, bool, error) {
	matches, err := s.fetchMatches(ctx, plan, seek, plan.Limit+1)
	if err != nil {
		return nil, false, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return query.CompareKeys(matches[i].key, matches[j].key, plan.Sort) < 0
	})

	rows := make([]*store.Record, 0, plan.Limit)
	hasMore := false
	for _, m := range matches {
		if len(rows) == plan.Limit {
			hasMore = true
			break
		}
		rows = append(rows, m.rec)
	}
	return rows, hasMore, nil
}

// Count evaluates the plan's exact match count. The index total alone is an
// overcount, so every candidate is refined.
func (s *Store) Count(ctx context.Context, plan *query.Plan) (int, error) {
	matches, err := s.fetchMatches(ctx, plan, nil, 0)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

type match struct {
	rec *store.Record
	key []any
}

// fetchMatches pages through the index result set, refining rows against the
// exact predicate. With want > 0 it stops once want post-seek matches exist
// and the primary-sort tie-run containing the cutoff has been fully read;
// want == 0 reads everything.
func (s *Store) fetchMatches(ctx context.Context, plan *query.Plan, seek []any, want int) ([]match, error) {
	expr := compilePlan(plan, seek)
	sortField, sortable := primarySortField(plan)

	var idFilter map[string]struct{}
	if len(plan.IDs) > 0 {
		idFilter = make(map[string]struct{}, len(plan.IDs))
		for _, id := range plan.IDs {
			idFilter[id] = struct{}{}
		}
	}
	var collectionFilter map[string]struct{}
	if len(plan.Collections) > 0 {
		collectionFilter = make(map[string]struct{}, len(plan.Collections))
		for _, c := range plan.Collections {
			collectionFilter[c] = struct{}{}
		}
	}

	var matches []match
	var lastPrimary any
	offset := 0
	for {
		args := []string{s.indexName(), expr}
		if sortable {
			dir := "ASC"
			if plan.Sort[0].Descending {
				dir = "DESC"
			}
			args = append(args, "SORTBY", sortField, dir)
		}
		args = append(args,
			"LIMIT", strconv.Itoa(offset), strconv.Itoa(searchBatchSize),
			"DIALECT", "2",
		)

		cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
		raw, err := s.client.Do(ctx, cmd).ToArray()
		if err != nil {
			return nil, s.translate(ctx, err)
		}
		docs, total, err := parseSearchPage(raw)
		if err != nil {
			return nil, err
		}

		for _, docJSON := range docs {
			rec, err := decodeEnvelope([]byte(docJSON))
			if err != nil {
				return nil, err
			}
			if collectionFilter != nil {
				if _, ok := collectionFilter[rec.Item.Collection]; !ok {
					continue
				}
			}
			if idFilter != nil {
				if _, ok := idFilter[rec.Item.Id]; !ok {
					continue
				}
			}
			doc := rec.Doc()
			if !query.Matches(plan.Filter, doc) {
				continue
			}
			key := query.SortKey(doc, plan.Sort)
			if seek != nil && query.CompareKeys(key, seek, plan.Sort) <= 0 {
				continue
			}
			matches = append(matches, match{rec: rec, key: key})
			lastPrimary = key[0]
		}

		offset += len(docs)
		exhausted := len(docs) == 0 || int64(offset) >= total
		if exhausted {
			return matches, nil
		}
		if want > 0 && len(matches) >= want && sortable && tieRunClosed(matches, want, lastPrimary) {
			return matches, nil
		}
	}
}

// tieRunClosed reports whether rows beyond the last one fetched can still
// displace the first want matches: once the newest primary value differs
// from the cutoff match's, everything later sorts strictly after it.
func tieRunClosed(matches []match, want int, lastPrimary any) bool {
	cutoff := matches[want-1].key[0]
	return !primaryEqual(cutoff, lastPrimary)
}

func primaryEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// parseSearchPage unpacks one RESP2 FT.SEARCH reply over a JSON index:
// [total, key1, [path1, doc1], key2, [path2, doc2], ...].
func parseSearchPage(raw []rueidis.RedisMessage) (docs []string, total int64, err error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	total, err = raw[0].AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("parsing search total: %w", err)
	}
	for i := 1; i+1 < len(raw); i += 2 {
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		// 2-stride path/value pairs; the document rides under "$".
		for j := 0; j+1 < len(fields); j += 2 {
			path, err := fields[j].ToString()
			if err != nil || path != "$" {
				continue
			}
			doc, err := fields[j+1].ToString()
			if err != nil {
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs, total, nil
}

// --- plan compilation ---

// compilePlan renders a plan and seek position into a RediSearch query
// expression. Compilation prunes, it does not decide: clauses the index
// cannot express exactly are widened or dropped, never narrowed, so the
// exact evaluator downstream sees every possible match.
func compilePlan(plan *query.Plan, seek []any) string {
	var parts []string

	if len(plan.Collections) > 0 {
		parts = append(parts, tagClause(fieldCollection, plan.Collections))
	}
	if len(plan.IDs) > 0 {
		parts = append(parts, tagClause(fieldID, plan.IDs))
	}
	if expr, _ := compileFragment(plan.Filter); expr != "" {
		parts = append(parts, expr)
	}
	if bound := seekBound(plan, seek); bound != "" {
		parts = append(parts, bound)
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// compileFragment renders a predicate fragment. The empty string means "no
// index constraint". exact reports whether the rendered clause selects
// precisely the fragment's match set; only exact clauses may be negated,
// since negating an over-selection would drop valid rows.
func compileFragment(f *query.Fragment) (expr string, exact bool) {
	if f == nil {
		return "", true
	}
	switch f.Kind {
	case query.KindAnd:
		return compileChildren(f.Children, " ")
	case query.KindOr:
		return compileOr(f.Children)
	case query.KindNot:
		if len(f.Children) != 1 {
			return "", false
		}
		inner, innerExact := compileFragment(f.Children[0])
		if inner == "" || !innerExact {
			return "", false
		}
		return "(-" + inner + ")", true
	case query.KindCompare:
		return compileCompare(f)
	case query.KindSpatial:
		return compileSpatial(f), false
	case query.KindTemporal:
		return compileTemporal(f), false
	default:
		return "", false
	}
}

func compileChildren(children []*query.Fragment, sep string) (string, bool) {
	var parts []string
	exact := true
	for _, child := range children {
		expr, childExact := compileFragment(child)
		exact = exact && childExact
		if expr != "" {
			parts = append(parts, expr)
		}
	}
	exact = exact && len(parts) == len(children)
	if len(parts) == 0 {
		return "", exact
	}
	return "(" + strings.Join(parts, sep) + ")", exact
}

// compileOr prunes only when every branch contributes a clause; a branch
// with no index constraint can match anything, so the whole OR must widen.
func compileOr(children []*query.Fragment) (string, bool) {
	var parts []string
	exact := true
	for _, child := range children {
		expr, childExact := compileFragment(child)
		if expr == "" {
			return "", false
		}
		exact = exact && childExact
		parts = append(parts, expr)
	}
	return "(" + strings.Join(parts, " | ") + ")", exact
}

func compileCompare(f *query.Fragment) (string, bool) {
	field := envelopeField(f.Property.Name)

	switch f.Property.Type {
	case config.TypeNumber, config.TypeInteger:
		v, ok := numericOperand(f.Value)
		if !ok {
			return "", false
		}
		return numericCompare(field, f.Op, v, true)
	case config.TypeDatetime:
		// The core interval pair indexes under start/end. Bounds stay
		// non-strict: float seconds lose nanosecond resolution, and a
		// strict index bound at a rounded boundary could drop a row the
		// exact evaluator would keep.
		if field == "datetime" || field == "start_datetime" {
			field = fieldStart
		} else if field == "end_datetime" {
			field = fieldEnd
		}
		t, ok := f.Value.(time.Time)
		if !ok {
			return "", false
		}
		expr, _ := numericCompare(field, f.Op, epochSeconds(t), false)
		return expr, false
	case config.TypeString, config.TypeBoolean:
		return tagCompare(field, f)
	default:
		return "", false
	}
}

func numericCompare(field string, op query.Op, v float64, strictOK bool) (string, bool) {
	val := formatFloat(v)
	switch op {
	case query.OpEq:
		return fmt.Sprintf("@%s:[%s %s]", field, val, val), true
	case query.OpNeq:
		// The negation also matches rows without the field, which the
		// evaluator rejects; over-selection only.
		return fmt.Sprintf("(-@%s:[%s %s])", field, val, val), false
	case query.OpLt:
		if strictOK {
			return fmt.Sprintf("@%s:[-inf (%s]", field, val), true
		}
		return fmt.Sprintf("@%s:[-inf %s]", field, val), false
	case query.OpLte:
		return fmt.Sprintf("@%s:[-inf %s]", field, val), true
	case query.OpGt:
		if strictOK {
			return fmt.Sprintf("@%s:[(%s +inf]", field, val), true
		}
		return fmt.Sprintf("@%s:[%s +inf]", field, val), false
	case query.OpGte:
		return fmt.Sprintf("@%s:[%s +inf]", field, val), true
	default:
		return "", false
	}
}

func tagCompare(field string, f *query.Fragment) (string, bool) {
	switch f.Op {
	case query.OpEq:
		v, ok := tagOperand(f.Value)
		if !ok {
			return "", false
		}
		return tagClause(field, []string{v}), true
	case query.OpNeq:
		v, ok := tagOperand(f.Value)
		if !ok {
			return "", false
		}
		return "(-" + tagClause(field, []string{v}) + ")", false
	case query.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return "", false
		}
		tags := make([]string, 0, len(values))
		for _, raw := range values {
			v, ok := tagOperand(raw)
			if !ok {
				return "", false
			}
			tags = append(tags, v)
		}
		return tagClause(field, tags), true
	default:
		// like and isNull fall through to the exact evaluator.
		return "", false
	}
}

// compileSpatial renders envelope overlap: the item envelope intersects the
// query box when each side is within the opposing bound.
func compileSpatial(f *query.Fragment) string {
	bbox := f.BBox
	if len(bbox) != 4 {
		return ""
	}
	return fmt.Sprintf("(@%s:[-inf %s] @%s:[%s +inf] @%s:[-inf %s] @%s:[%s +inf])",
		fieldWest, formatFloat(bbox[2]),
		fieldEast, formatFloat(bbox[0]),
		fieldSouth, formatFloat(bbox[3]),
		fieldNorth, formatFloat(bbox[1]))
}

// compileTemporal renders interval overlap over the indexed nanos-as-seconds
// pair; open ends contribute no bound.
func compileTemporal(f *query.Fragment) string {
	var parts []string
	if f.End != nil {
		parts = append(parts, fmt.Sprintf("@%s:[-inf %s]", fieldStart, formatFloat(epochSeconds(*f.End))))
	}
	if f.Start != nil {
		parts = append(parts, fmt.Sprintf("@%s:[%s +inf]", fieldEnd, formatFloat(epochSeconds(*f.Start))))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// seekBound renders the weak index-side cursor bound: a non-strict range on
// the primary sort field. Rows at the boundary re-enter the candidate set
// and the exact seek filter discards the ones already served.
func seekBound(plan *query.Plan, seek []any) string {
	if len(seek) == 0 || seek[0] == nil {
		return ""
	}
	field, ok := primarySortField(plan)
	if !ok {
		return ""
	}
	var v float64
	switch s := seek[0].(type) {
	case int64:
		// Sort keys carry instants as nanos.
		if plan.Sort[0].Queryable.Type == config.TypeDatetime {
			v = float64(s) / 1e9
		} else {
			v = float64(s)
		}
	case float64:
		v = s
	default:
		return ""
	}
	if plan.Sort[0].Descending {
		return fmt.Sprintf("@%s:[-inf %s]", field, formatFloat(v))
	}
	return fmt.Sprintf("@%s:[%s +inf]", field, formatFloat(v))
}

// primarySortField maps the plan's primary sort onto a sortable numeric
// index attribute. String sorts fall back to engine-side ordering.
func primarySortField(plan *query.Plan) (string, bool) {
	if len(plan.Sort) == 0 {
		return "", false
	}
	q := plan.Sort[0].Queryable
	switch q.Type {
	case config.TypeDatetime:
		name := envelopeField(q.Name)
		if name == "datetime" || name == "start_datetime" {
			return fieldStart, true
		}
		if name == "end_datetime" {
			return fieldEnd, true
		}
		return name, true
	case config.TypeNumber, config.TypeInteger:
		return envelopeField(q.Name), true
	default:
		return "", false
	}
}

func tagClause(field string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escapeTag(v)
	}
	return "@" + field + ":{" + strings.Join(escaped, " | ") + "}"
}

// escapeTag backslash-escapes the characters the tag syntax reserves.
func escapeTag(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func numericOperand(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func tagOperand(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
