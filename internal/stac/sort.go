package stac

import (
	"github.com/rkm/stac-catalog/internal/query"
)

// SortDirection represents the sort direction.
type SortDirection string

const (
	// SortAsc represents ascending sort order.
	SortAsc SortDirection = "asc"
	// SortDesc represents descending sort order.
	SortDesc SortDirection = "desc"
)

// SortSpecs converts the request's sortby clauses into planner sort specs.
// Field names are passed through unresolved; the planner validates them
// against the queryable registry.
func (req *SearchRequest) SortSpecs() []query.SortSpec {
	if len(req.Sortby) == 0 {
		return nil
	}
	specs := make([]query.SortSpec, 0, len(req.Sortby))
	for _, item := range req.Sortby {
		specs = append(specs, query.SortSpec{
			Field:      item.Field,
			Descending: item.Direction == string(SortDesc),
		})
	}
	return specs
}
