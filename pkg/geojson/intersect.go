package geojson

import (
	"fmt"
	"math"
)

// BBoxesOverlap reports whether two [west, south, east, north] boxes overlap,
// boundaries included.
func BBoxesOverlap(a, b []float64) bool {
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	return a[0] <= b[2] && a[2] >= b[0] && a[1] <= b[3] && a[3] >= b[1]
}

// Intersects reports whether two geometries share at least one point.
// Boundary contact counts as intersection.
func Intersects(a, b *Geometry) (bool, error) {
	boxA, err := ComputeBBox(a)
	if err != nil {
		return false, fmt.Errorf("invalid first geometry: %w", err)
	}
	boxB, err := ComputeBBox(b)
	if err != nil {
		return false, fmt.Errorf("invalid second geometry: %w", err)
	}
	if !BBoxesOverlap(boxA, boxB) {
		return false, nil
	}

	sa, err := decompose(a)
	if err != nil {
		return false, err
	}
	sb, err := decompose(b)
	if err != nil {
		return false, err
	}

	// Any edge crossing settles it.
	for _, s1 := range sa.segs {
		for _, s2 := range sb.segs {
			if segmentsIntersect(s1[0], s1[1], s2[0], s2[1]) {
				return true, nil
			}
		}
	}

	// With no edge crossings, one shape can still sit entirely inside the
	// other; a single representative point per part decides that.
	for _, polygon := range sb.polygons {
		for _, p := range sa.reps {
			if pointInPolygon(p, polygon) {
				return true, nil
			}
		}
	}
	for _, polygon := range sa.polygons {
		for _, p := range sb.reps {
			if pointInPolygon(p, polygon) {
				return true, nil
			}
		}
	}

	for _, p := range sa.points {
		for _, q := range sb.points {
			if p[0] == q[0] && p[1] == q[1] {
				return true, nil
			}
		}
		for _, s := range sb.segs {
			if pointOnSegment(p, s[0], s[1]) {
				return true, nil
			}
		}
	}
	for _, p := range sb.points {
		for _, s := range sa.segs {
			if pointOnSegment(p, s[0], s[1]) {
				return true, nil
			}
		}
	}

	return false, nil
}

// shape is a geometry decomposed into primitives for pairwise testing.
type shape struct {
	points   [][]float64
	segs     [][2][]float64
	polygons [][][][]float64
	// reps holds one representative point per part, used for containment
	// tests once edge crossings have been ruled out.
	reps [][]float64
}

func decompose(g *Geometry) (*shape, error) {
	s := &shape{}

	addLine := func(line [][]float64) {
		if len(line) == 0 {
			return
		}
		s.reps = append(s.reps, line[0])
		for i := 0; i+1 < len(line); i++ {
			s.segs = append(s.segs, [2][]float64{line[i], line[i+1]})
		}
	}
	addPolygon := func(polygon [][][]float64) {
		if len(polygon) == 0 || len(polygon[0]) == 0 {
			return
		}
		s.polygons = append(s.polygons, polygon)
		s.reps = append(s.reps, polygon[0][0])
		for _, ring := range polygon {
			for i := 0; i+1 < len(ring); i++ {
				s.segs = append(s.segs, [2][]float64{ring[i], ring[i+1]})
			}
		}
	}

	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return nil, err
		}
		s.points = append(s.points, coords)
		s.reps = append(s.reps, coords)

	case "MultiPoint":
		coords, err := g.MultiPoint()
		if err != nil {
			return nil, err
		}
		for _, point := range coords {
			s.points = append(s.points, point)
			s.reps = append(s.reps, point)
		}

	case "LineString":
		coords, err := g.LineString()
		if err != nil {
			return nil, err
		}
		addLine(coords)

	case "MultiLineString":
		coords, err := g.MultiLineString()
		if err != nil {
			return nil, err
		}
		for _, line := range coords {
			addLine(line)
		}

	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		addPolygon(coords)

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return nil, err
		}
		for _, polygon := range coords {
			addPolygon(polygon)
		}

	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	return s, nil
}

// pointInPolygon reports whether p lies inside the polygon (shell minus
// holes), boundary included.
func pointInPolygon(p []float64, polygon [][][]float64) bool {
	if len(polygon) == 0 {
		return false
	}
	for _, ring := range polygon {
		for i := 0; i+1 < len(ring); i++ {
			if pointOnSegment(p, ring[i], ring[i+1]) {
				return true
			}
		}
	}
	if !pointInRing(p, polygon[0]) {
		return false
	}
	for _, hole := range polygon[1:] {
		if pointInRing(p, hole) {
			return false
		}
	}
	return true
}

// pointInRing is an even-odd ray cast. Boundary handling is the caller's
// concern.
func pointInRing(p []float64, ring [][]float64) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > p[1]) != (yj > p[1]) && p[0] < (xj-xi)*(p[1]-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// orientation returns the turn direction of the triplet (p, q, r):
// 0 collinear, 1 counterclockwise, -1 clockwise.
func orientation(p, q, r []float64) int {
	cross := (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether q, known collinear with segment pr, lies within
// its bounding interval.
func onSegment(p, q, r []float64) bool {
	return math.Min(p[0], r[0]) <= q[0] && q[0] <= math.Max(p[0], r[0]) &&
		math.Min(p[1], r[1]) <= q[1] && q[1] <= math.Max(p[1], r[1])
}

// segmentsIntersect reports whether segments p1q1 and p2q2 share any point.
func segmentsIntersect(p1, q1, p2, q2 []float64) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}
	if o1 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && onSegment(p1, q2, q1) {
		return true
	}
	if o3 == 0 && onSegment(p2, p1, q2) {
		return true
	}
	if o4 == 0 && onSegment(p2, q1, q2) {
		return true
	}
	return false
}

func pointOnSegment(p, a, b []float64) bool {
	return orientation(a, b, p) == 0 && onSegment(a, p, b)
}
