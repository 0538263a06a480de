package query

import (
	"fmt"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// BBoxFragment builds a spatial fragment from a [west, south, east, north]
// bounding box (optionally 3D with elevations at positions 2 and 5). A box
// whose west edge exceeds its east edge crosses the antimeridian and is split
// into two boxes combined with OR, so the match set is the union of the two
// half-box searches.
func BBoxFragment(bbox []float64) (*Fragment, error) {
	if len(bbox) != 4 && len(bbox) != 6 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterGeometry,
			"bbox must have 4 or 6 values, got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	if len(bbox) == 6 {
		west, south, east, north = bbox[0], bbox[1], bbox[3], bbox[4]
	}

	if west < -180 || west > 180 || east < -180 || east > 180 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterGeometry,
			"bbox longitude out of range [-180, 180]")
	}
	if south < -90 || south > 90 || north < -90 || north > 90 {
		return nil, catalog.Errorf(catalog.KindInvalidFilterGeometry,
			"bbox latitude out of range [-90, 90]")
	}
	if south > north {
		return nil, catalog.Errorf(catalog.KindInvalidFilterGeometry,
			"bbox south (%v) exceeds north (%v)", south, north)
	}

	if west > east {
		// Antimeridian crossing: [west, 180] OR [-180, east].
		return Or(
			&Fragment{Kind: KindSpatial, BBox: []float64{west, south, 180, north}},
			&Fragment{Kind: KindSpatial, BBox: []float64{-180, south, east, north}},
		), nil
	}

	return &Fragment{Kind: KindSpatial, BBox: []float64{west, south, east, north}}, nil
}

// IntersectsFragment builds a spatial fragment from an arbitrary GeoJSON
// geometry. The geometry is validated against simple-feature rules before any
// store access; malformed input fails with InvalidFilterGeometry.
func IntersectsFragment(g *geojson.Geometry) (*Fragment, error) {
	if g == nil {
		return nil, catalog.Errorf(catalog.KindInvalidFilterGeometry, "intersects geometry is empty")
	}
	if err := geojson.Validate(g); err != nil {
		return nil, catalog.Wrap(catalog.KindInvalidFilterGeometry, err, "invalid intersects geometry")
	}
	bbox, err := geojson.ComputeBBox(g)
	if err != nil {
		return nil, catalog.Wrap(catalog.KindInvalidFilterGeometry, err, "invalid intersects geometry")
	}
	return &Fragment{Kind: KindSpatial, Geometry: g, BBox: bbox}, nil
}

// spatialBBox returns the candidate bounding box of a spatial fragment.
func spatialBBox(f *Fragment) ([]float64, error) {
	if len(f.BBox) == 4 {
		return f.BBox, nil
	}
	if f.Geometry != nil {
		return geojson.ComputeBBox(f.Geometry)
	}
	return nil, fmt.Errorf("spatial fragment has no region")
}
