// Package query builds executable query plans from STAC search requests.
// Filters are translated into backend-neutral predicate fragments that store
// drivers either compile into index queries or evaluate row by row.
package query

import (
	"time"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// FragmentKind discriminates the predicate fragment variants.
type FragmentKind string

const (
	// KindAnd matches when every child fragment matches.
	KindAnd FragmentKind = "and"
	// KindOr matches when at least one child fragment matches.
	KindOr FragmentKind = "or"
	// KindNot inverts its single child fragment.
	KindNot FragmentKind = "not"
	// KindCompare applies an operator to a registered item property.
	KindCompare FragmentKind = "compare"
	// KindSpatial matches items whose geometry intersects a region.
	KindSpatial FragmentKind = "spatial"
	// KindTemporal matches items whose temporal extent overlaps an interval.
	KindTemporal FragmentKind = "temporal"
)

// Op is a comparison operator in a compare fragment.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpIn     Op = "in"
	OpLike   Op = "like"
	OpIsNull Op = "isNull"
)

// Fragment is one filter condition in backend-neutral form. Fragments compose
// via And/Or/Not and live only for the duration of a single search request.
type Fragment struct {
	Kind FragmentKind

	// And/Or children; Not uses exactly one.
	Children []*Fragment

	// Compare fields.
	Property *config.Queryable
	Op       Op
	// Value holds the operand: a scalar for comparison operators, a []any
	// for OpIn, nil for OpIsNull.
	Value any

	// Spatial fields. BBox is [west, south, east, north] when the region
	// came from a bounding box; Geometry is set for arbitrary regions. A
	// split antimeridian box arrives as two spatial fragments under an Or.
	BBox     []float64
	Geometry *geojson.Geometry

	// Temporal fields. A nil side means the interval is open on that end.
	Start *time.Time
	End   *time.Time
}

// And combines fragments with logical AND, flattening nils. Returns nil when
// nothing remains and the single fragment unchanged when only one does.
func And(fragments ...*Fragment) *Fragment {
	kept := make([]*Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Fragment{Kind: KindAnd, Children: kept}
}

// Or combines fragments with logical OR.
func Or(fragments ...*Fragment) *Fragment {
	kept := make([]*Fragment, 0, len(fragments))
	for _, f := range fragments {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Fragment{Kind: KindOr, Children: kept}
}

// Not inverts a fragment.
func Not(f *Fragment) *Fragment {
	if f == nil {
		return nil
	}
	return &Fragment{Kind: KindNot, Children: []*Fragment{f}}
}
