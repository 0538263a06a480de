package query

import (
	"strings"
	"time"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Doc is the evaluator's view of one stored item: identity, decoded
// properties, geometry and the derived temporal interval. Drivers build a Doc
// per row so that index compilation stays an optimization; the evaluator is
// the source of truth for match semantics.
type Doc struct {
	ID         string
	Collection string
	Properties map[string]any
	Geometry   *geojson.Geometry
	// BBox is the geometry's [west, south, east, north] envelope.
	BBox []float64
	// Start and End bound the item's temporal extent. Instant-valued items
	// have Start equal to End.
	Start time.Time
	End   time.Time
}

// Matches evaluates a full predicate tree against a document. A nil fragment
// matches everything.
func Matches(f *Fragment, doc *Doc) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case KindAnd:
		for _, child := range f.Children {
			if !Matches(child, doc) {
				return false
			}
		}
		return true
	case KindOr:
		for _, child := range f.Children {
			if Matches(child, doc) {
				return true
			}
		}
		return false
	case KindNot:
		return len(f.Children) == 1 && !Matches(f.Children[0], doc)
	case KindSpatial:
		return matchesSpatial(f, doc)
	case KindTemporal:
		return IntervalOverlaps(doc.Start, doc.End, f.Start, f.End)
	case KindCompare:
		return matchesCompare(f, doc)
	}
	return false
}

func matchesSpatial(f *Fragment, doc *Doc) bool {
	if doc.Geometry == nil {
		return false
	}
	region, err := spatialBBox(f)
	if err != nil {
		return false
	}
	if !geojson.BBoxesOverlap(region, doc.BBox) {
		return false
	}
	target := f.Geometry
	if target == nil {
		target, err = geojson.NewPolygonFromBBox(f.BBox)
		if err != nil {
			return false
		}
	}
	ok, err := geojson.Intersects(target, doc.Geometry)
	return err == nil && ok
}

// matchesCompare applies one comparison. A property path missing from the
// item evaluates as NULL: every comparison is false except isNull.
func matchesCompare(f *Fragment, doc *Doc) bool {
	value, present := doc.Lookup(f.Property)

	if f.Op == OpIsNull {
		return !present
	}
	if !present {
		return false
	}

	switch f.Op {
	case OpEq:
		eq, ok := valuesEqual(value, f.Value)
		return ok && eq
	case OpNeq:
		eq, ok := valuesEqual(value, f.Value)
		return ok && !eq
	case OpLt, OpLte, OpGt, OpGte:
		cmp, ok := valuesCompare(value, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpIn:
		list, ok := f.Value.([]any)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if eq, ok := valuesEqual(value, candidate); ok && eq {
				return true
			}
		}
		return false
	case OpLike:
		s, sok := value.(string)
		pattern, pok := f.Value.(string)
		return sok && pok && likeMatch(pattern, s)
	}
	return false
}

// Lookup resolves a queryable's path against the document and coerces the
// value to the queryable's type. Returns false when the path is absent, the
// value is JSON null, or it cannot represent the declared type.
func (d *Doc) Lookup(q *config.Queryable) (any, bool) {
	raw, present := d.lookupPath(q.Path)
	if !present || raw == nil {
		return nil, false
	}

	switch q.Type {
	case config.TypeString:
		s, ok := raw.(string)
		return s, ok
	case config.TypeNumber, config.TypeInteger:
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		default:
			return nil, false
		}
	case config.TypeBoolean:
		b, ok := raw.(bool)
		return b, ok
	case config.TypeDatetime:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), true
		case string:
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, false
			}
			return ts.UTC(), true
		default:
			return nil, false
		}
	}
	return nil, false
}

// lookupPath walks a dot path through the document. The first segment may be
// "id", "collection", "geometry" or "properties"; deeper segments descend
// through nested objects.
func (d *Doc) lookupPath(path string) (any, bool) {
	segments := strings.Split(path, ".")
	switch segments[0] {
	case "id":
		return d.ID, true
	case "collection":
		return d.Collection, true
	case "geometry":
		if d.Geometry == nil {
			return nil, false
		}
		return d.Geometry, true
	case "properties":
		if len(segments) == 1 {
			return d.Properties, true
		}
		return descend(d.Properties, segments[1:])
	default:
		return descend(d.Properties, segments)
	}
}

func descend(node map[string]any, segments []string) (any, bool) {
	var current any = node
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func valuesEqual(a, b any) (equal, comparable bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb), ok
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		return ok && va == vb, ok
	case float64:
		vb, ok := b.(float64)
		return ok && va == vb, ok
	case bool:
		vb, ok := b.(bool)
		return ok && va == vb, ok
	}
	return false, false
}

func valuesCompare(a, b any) (cmp int, comparable bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case float64:
		vb, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case va < vb:
			return -1, true
		case va > vb:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// likeMatch implements SQL LIKE semantics: '%' matches any run of characters,
// '_' matches exactly one, backslash escapes either.
func likeMatch(pattern, s string) bool {
	p := []rune(pattern)
	t := []rune(s)
	return likeMatchRunes(p, t)
}

func likeMatchRunes(p, t []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			// Collapse consecutive wildcards, then try every split point.
			for len(p) > 0 && p[0] == '%' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(t); i++ {
				if likeMatchRunes(p, t[i:]) {
					return true
				}
			}
			return false
		case '_':
			if len(t) == 0 {
				return false
			}
			p, t = p[1:], t[1:]
		case '\\':
			if len(p) > 1 {
				p = p[1:]
			}
			fallthrough
		default:
			if len(t) == 0 || p[0] != t[0] {
				return false
			}
			p, t = p[1:], t[1:]
		}
	}
	return len(t) == 0
}
