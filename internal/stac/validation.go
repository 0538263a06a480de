package stac

import (
	"strings"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// ValidateSearchRequest checks the request-level constraints that do not need
// the queryable registry: bbox shape and ranges, spatial filter exclusivity,
// and non-blank scoping values. Datetime, filter and sort validation happen
// in the planner.
func ValidateSearchRequest(req *SearchRequest) error {
	if req == nil {
		return catalog.Errorf(catalog.KindInvalidParameter, "search request is empty")
	}

	if len(req.BBox) > 0 {
		if err := geojson.ValidateBBox(req.BBox); err != nil {
			return catalog.Wrap(catalog.KindInvalidFilterGeometry, err, "invalid bbox")
		}
	}

	// The STAC item-search contract treats bbox and intersects as mutually
	// exclusive spatial filters.
	if len(req.BBox) > 0 && len(req.Intersects) > 0 {
		return catalog.Errorf(catalog.KindInvalidFilterGeometry,
			"bbox and intersects are mutually exclusive")
	}

	if req.Limit < 0 {
		return catalog.Errorf(catalog.KindInvalidPageSize, "limit must be non-negative, got %d", req.Limit)
	}

	for i, coll := range req.Collections {
		if strings.TrimSpace(coll) == "" {
			return catalog.Errorf(catalog.KindInvalidParameter, "collection at index %d is blank", i)
		}
	}
	for i, id := range req.IDs {
		if strings.TrimSpace(id) == "" {
			return catalog.Errorf(catalog.KindInvalidParameter, "id at index %d is blank", i)
		}
	}

	if req.FilterLang != "" && req.FilterLang != "cql2-json" {
		return catalog.Errorf(catalog.KindInvalidParameter,
			"unsupported filter-lang %q, only cql2-json is supported", req.FilterLang)
	}

	return nil
}
