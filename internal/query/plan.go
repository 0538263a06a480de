package query

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// SortField is one resolved sort criterion.
type SortField struct {
	Queryable  *config.Queryable
	Descending bool
}

// SortSpec is a caller-supplied sort criterion, prior to registry resolution.
type SortSpec struct {
	Field      string
	Descending bool
}

// Plan is one executable query: scoping, a combined predicate tree, a sort
// order ending in a globally unique field, and a page size. Store drivers
// execute plans; fragment order is an index-friendliness hint, never a
// correctness dependency.
type Plan struct {
	// Collections scopes the search; empty means all collections.
	Collections []string
	// IDs restricts results to specific item ids; empty means no restriction.
	IDs []string
	// Filter is the combined predicate tree (logical AND at the top level
	// when multiple filters were supplied). Nil matches everything.
	Filter *Fragment
	// Sort is the resolved sort order. The final field is always a unique
	// tiebreaker (item id unless the caller already sorted on id).
	Sort []SortField
	// Limit is the validated page size.
	Limit int
}

// PlanInput carries the raw search parameters the planner composes.
type PlanInput struct {
	Collections []string
	IDs         []string
	BBox        []float64
	Intersects  *geojson.Geometry
	Datetime    string
	Filter      any
	Sort        []SortSpec
	// Limit of 0 selects the configured default.
	Limit int
}

// Planner composes predicate fragments, scoping and sort order into plans.
type Planner struct {
	registry     *config.QueryableRegistry
	filters      *FilterTranslator
	defaultLimit int
	maxLimit     int
}

// NewPlanner creates a planner with the given page size bounds.
func NewPlanner(registry *config.QueryableRegistry, defaultLimit, maxLimit int) *Planner {
	return &Planner{
		registry:     registry,
		filters:      NewFilterTranslator(registry),
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Build validates and composes a plan. Fragments are ordered most selective
// first (spatial, temporal, property) to favor index usage.
func (p *Planner) Build(in PlanInput) (*Plan, error) {
	limit := in.Limit
	if limit == 0 {
		limit = p.defaultLimit
	}
	if limit < 1 || limit > p.maxLimit {
		return nil, catalog.Errorf(catalog.KindInvalidPageSize,
			"page size must be between 1 and %d, got %d", p.maxLimit, in.Limit)
	}

	if len(in.BBox) > 0 && in.Intersects != nil {
		return nil, catalog.Errorf(catalog.KindInvalidFilterGeometry,
			"bbox and intersects are mutually exclusive")
	}

	var spatial *Fragment
	var err error
	if len(in.BBox) > 0 {
		spatial, err = BBoxFragment(in.BBox)
		if err != nil {
			return nil, err
		}
	} else if in.Intersects != nil {
		spatial, err = IntersectsFragment(in.Intersects)
		if err != nil {
			return nil, err
		}
	}

	var temporal *Fragment
	if in.Datetime != "" {
		temporal, err = TemporalFragment(in.Datetime)
		if err != nil {
			return nil, err
		}
	}

	property, err := p.filters.Translate(in.Filter)
	if err != nil {
		return nil, err
	}

	sortFields, err := p.resolveSort(in.Sort)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Collections: append([]string(nil), in.Collections...),
		IDs:         append([]string(nil), in.IDs...),
		Filter:      And(spatial, temporal, property),
		Sort:        sortFields,
		Limit:       limit,
	}, nil
}

// defaultSort is the order applied when the caller gives none.
var defaultSort = []SortSpec{{Field: "datetime", Descending: true}}

// resolveSort maps sort specs through the registry and appends the item id
// tiebreaker when the caller's sort is not already unique. A caller placing
// id anywhere in the sort keeps their direction.
func (p *Planner) resolveSort(specs []SortSpec) ([]SortField, error) {
	if len(specs) == 0 {
		specs = defaultSort
	}

	fields := make([]SortField, 0, len(specs)+1)
	hasID := false
	for _, spec := range specs {
		q := p.registry.Get(spec.Field)
		if q == nil {
			return nil, catalog.Errorf(catalog.KindUnknownProperty,
				"sort field %q is not queryable", spec.Field)
		}
		if !q.Sortable {
			return nil, catalog.Errorf(catalog.KindInvalidParameter,
				"field %q is not sortable", spec.Field)
		}
		if q.Name == "id" {
			hasID = true
		}
		fields = append(fields, SortField{Queryable: q, Descending: spec.Descending})
	}

	if !hasID {
		fields = append(fields, SortField{Queryable: p.registry.Get("id")})
	}

	return fields, nil
}

// Fingerprint returns a stable hash of the plan's filter and sort, used to
// bind cursor tokens to the query they were produced under. Page size is
// excluded so a client may change limits between pages.
func (p *Plan) Fingerprint() uint64 {
	h := xxhash.New()

	writeStrings := func(tag string, values []string) {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		h.WriteString(tag)
		for _, v := range sorted {
			h.WriteString(v)
			h.Write([]byte{0})
		}
	}

	writeStrings("c:", p.Collections)
	writeStrings("i:", p.IDs)

	h.WriteString("f:")
	writeFragment(h, p.Filter)

	h.WriteString("s:")
	for _, s := range p.Sort {
		h.WriteString(s.Queryable.Name)
		if s.Descending {
			h.WriteString("-")
		} else {
			h.WriteString("+")
		}
	}

	return h.Sum64()
}

// writeFragment encodes a fragment tree into the hash in construction order.
// Semantically equivalent but differently written filters hash differently;
// cursor reuse across rewritten queries is not supported.
func writeFragment(h *xxhash.Digest, f *Fragment) {
	if f == nil {
		h.WriteString("nil")
		return
	}
	h.WriteString(string(f.Kind))
	h.WriteString("(")
	switch f.Kind {
	case KindAnd, KindOr, KindNot:
		for _, child := range f.Children {
			writeFragment(h, child)
		}
	case KindCompare:
		h.WriteString(f.Property.Name)
		h.WriteString(string(f.Op))
		writeValue(h, f.Value)
	case KindSpatial:
		for _, v := range f.BBox {
			writeFloat(h, v)
		}
		if f.Geometry != nil {
			h.WriteString(f.Geometry.Type)
			h.Write(f.Geometry.Coordinates)
		}
	case KindTemporal:
		if f.Start != nil {
			h.WriteString(f.Start.Format(time.RFC3339Nano))
		}
		h.WriteString("/")
		if f.End != nil {
			h.WriteString(f.End.Format(time.RFC3339Nano))
		}
	}
	h.WriteString(")")
}

func writeValue(h *xxhash.Digest, v any) {
	switch val := v.(type) {
	case nil:
		h.WriteString("~")
	case string:
		h.WriteString(val)
	case float64:
		writeFloat(h, val)
	case bool:
		h.WriteString(fmt.Sprintf("%t", val))
	case time.Time:
		h.WriteString(val.Format(time.RFC3339Nano))
	case []any:
		for _, item := range val {
			writeValue(h, item)
			h.Write([]byte{0})
		}
	default:
		// Fall back to JSON for anything exotic; stability matters more
		// than speed here.
		raw, _ := json.Marshal(val)
		h.Write(raw)
	}
}

func writeFloat(h *xxhash.Digest, v float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	h.Write(buf[:])
}

// String renders a compact description of the plan for logging.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan{collections=%v limit=%d sort=", p.Collections, p.Limit)
	for i, s := range p.Sort {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(s.Queryable.Name)
		if s.Descending {
			b.WriteString(" desc")
		}
	}
	b.WriteString("}")
	return b.String()
}
