// Package geojson provides GeoJSON geometry types and the spatial predicates
// the catalog engine needs: bounding boxes, simple-feature validity and
// intersection tests.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Point returns the coordinates as a Point [lon, lat].
// Returns error if geometry is not a Point.
func (g *Geometry) Point() ([]float64, error) {
	if g.Type != "Point" {
		return nil, fmt.Errorf("geometry is not a Point, got %s", g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("invalid Point coordinates: expected at least 2 values, got %d", len(coords))
	}
	return coords, nil
}

// MultiPoint returns the coordinates as a MultiPoint [][lon, lat].
// Returns error if geometry is not a MultiPoint.
func (g *Geometry) MultiPoint() ([][]float64, error) {
	if g.Type != "MultiPoint" {
		return nil, fmt.Errorf("geometry is not a MultiPoint, got %s", g.Type)
	}
	var coords [][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPoint coordinates: %w", err)
	}
	return coords, nil
}

// LineString returns the coordinates as a LineString [][lon, lat].
// Returns error if geometry is not a LineString.
func (g *Geometry) LineString() ([][]float64, error) {
	if g.Type != "LineString" {
		return nil, fmt.Errorf("geometry is not a LineString, got %s", g.Type)
	}
	var coords [][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LineString coordinates: %w", err)
	}
	return coords, nil
}

// MultiLineString returns the coordinates as a MultiLineString [][][lon, lat].
// Returns error if geometry is not a MultiLineString.
func (g *Geometry) MultiLineString() ([][][]float64, error) {
	if g.Type != "MultiLineString" {
		return nil, fmt.Errorf("geometry is not a MultiLineString, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiLineString coordinates: %w", err)
	}
	return coords, nil
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// BBox computes the bounding box of the geometry.
// Returns [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes the bounding box of a geometry.
// Returns [west, south, east, north].
func ComputeBBox(g *Geometry) ([]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)

	accumulate := func(point []float64) {
		if len(point) < 2 {
			return
		}
		minLon = math.Min(minLon, point[0])
		maxLon = math.Max(maxLon, point[0])
		minLat = math.Min(minLat, point[1])
		maxLat = math.Max(maxLat, point[1])
	}

	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return nil, err
		}
		return []float64{coords[0], coords[1], coords[0], coords[1]}, nil

	case "MultiPoint":
		coords, err := g.MultiPoint()
		if err != nil {
			return nil, err
		}
		for _, point := range coords {
			accumulate(point)
		}

	case "LineString":
		coords, err := g.LineString()
		if err != nil {
			return nil, err
		}
		for _, point := range coords {
			accumulate(point)
		}

	case "MultiLineString":
		coords, err := g.MultiLineString()
		if err != nil {
			return nil, err
		}
		for _, line := range coords {
			for _, point := range line {
				accumulate(point)
			}
		}

	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		for _, ring := range coords {
			for _, point := range ring {
				accumulate(point)
			}
		}

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return nil, err
		}
		for _, polygon := range coords {
			for _, ring := range polygon {
				for _, point := range ring {
					accumulate(point)
				}
			}
		}

	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	if math.IsInf(minLon, 0) || math.IsInf(minLat, 0) {
		return nil, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
	}

	return []float64{minLon, minLat, maxLon, maxLat}, nil
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]

	coords := [][][]float64{
		{
			{west, south},
			{east, south},
			{east, north},
			{west, north},
			{west, south}, // Close the ring
		},
	}

	coordsJSON, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}

	return &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}, nil
}

// Decode parses the geometry into a go-geom value, rejecting structurally
// malformed coordinate arrays.
func Decode(g *Geometry) (geom.T, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geometry: %w", err)
	}
	var decoded geom.T
	if err := geomjson.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	return decoded, nil
}

// ToWKT converts a GeoJSON geometry to WKT format.
func ToWKT(g *Geometry) (string, error) {
	decoded, err := Decode(g)
	if err != nil {
		return "", err
	}
	out, err := wkt.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to encode WKT: %w", err)
	}
	return out, nil
}

// FromWKT parses a WKT string into a GeoJSON geometry. Type keywords are
// matched case-insensitively.
func FromWKT(s string) (*Geometry, error) {
	decoded, err := wkt.Unmarshal(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT: %w", err)
	}
	raw, err := geomjson.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	var g Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	return &g, nil
}
