package geojson

import (
	"testing"
)

func TestBBoxesOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want bool
	}{
		{"overlapping", []float64{0, 0, 10, 10}, []float64{5, 5, 15, 15}, true},
		{"contained", []float64{0, 0, 10, 10}, []float64{2, 2, 4, 4}, true},
		{"edge touch", []float64{0, 0, 10, 10}, []float64{10, 0, 20, 10}, true},
		{"corner touch", []float64{0, 0, 10, 10}, []float64{10, 10, 20, 20}, true},
		{"disjoint east", []float64{0, 0, 10, 10}, []float64{11, 0, 20, 10}, false},
		{"disjoint north", []float64{0, 0, 10, 10}, []float64{0, 11, 10, 20}, false},
		{"too short", []float64{0, 0, 10}, []float64{0, 0, 10, 10}, false},
	}

	for _, tt := range tests {
		if got := BBoxesOverlap(tt.a, tt.b); got != tt.want {
			t.Errorf("%s: BBoxesOverlap(%v, %v) = %t, want %t", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIntersects_PointInPolygon(t *testing.T) {
	point := geomFromJSON(t, "Point", `[5, 5]`)
	polygon := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	hit, err := Intersects(point, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("point inside polygon should intersect")
	}
}

func TestIntersects_PointOutsidePolygon(t *testing.T) {
	point := geomFromJSON(t, "Point", `[15, 5]`)
	polygon := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	hit, err := Intersects(point, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if hit {
		t.Error("point outside polygon should not intersect")
	}
}

func TestIntersects_PointOnBoundary(t *testing.T) {
	point := geomFromJSON(t, "Point", `[10, 5]`)
	polygon := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	hit, err := Intersects(point, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("point on polygon boundary should intersect")
	}
}

func TestIntersects_PointInHole(t *testing.T) {
	point := geomFromJSON(t, "Point", `[3, 3]`)
	polygon := geomFromJSON(t, "Polygon",
		`[[[0,0],[10,0],[10,10],[0,10],[0,0]],[[2,2],[4,2],[4,4],[2,4],[2,2]]]`)

	hit, err := Intersects(point, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if hit {
		t.Error("point inside a hole should not intersect")
	}
}

func TestIntersects_PolygonsOverlapping(t *testing.T) {
	a := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)
	b := geomFromJSON(t, "Polygon", `[[[5,5],[15,5],[15,15],[5,15],[5,5]]]`)

	hit, err := Intersects(a, b)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("overlapping polygons should intersect")
	}
}

func TestIntersects_PolygonContained(t *testing.T) {
	outer := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)
	inner := geomFromJSON(t, "Polygon", `[[[2,2],[4,2],[4,4],[2,4],[2,2]]]`)

	hit, err := Intersects(outer, inner)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("contained polygon should intersect its container")
	}

	// Order must not matter.
	hit, err = Intersects(inner, outer)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("container should intersect the contained polygon")
	}
}

func TestIntersects_PolygonsDisjoint(t *testing.T) {
	a := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)
	b := geomFromJSON(t, "Polygon", `[[[20,20],[30,20],[30,30],[20,30],[20,20]]]`)

	hit, err := Intersects(a, b)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if hit {
		t.Error("disjoint polygons should not intersect")
	}
}

func TestIntersects_PolygonInsideHole(t *testing.T) {
	donut := geomFromJSON(t, "Polygon",
		`[[[0,0],[10,0],[10,10],[0,10],[0,0]],[[2,2],[8,2],[8,8],[2,8],[2,2]]]`)
	island := geomFromJSON(t, "Polygon", `[[[4,4],[6,4],[6,6],[4,6],[4,4]]]`)

	hit, err := Intersects(donut, island)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if hit {
		t.Error("polygon entirely inside a hole should not intersect")
	}
}

func TestIntersects_LineCrossesPolygon(t *testing.T) {
	line := geomFromJSON(t, "LineString", `[[-5,5],[15,5]]`)
	polygon := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	hit, err := Intersects(line, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("line crossing polygon should intersect")
	}
}

func TestIntersects_LineInsidePolygon(t *testing.T) {
	line := geomFromJSON(t, "LineString", `[[2,2],[8,8]]`)
	polygon := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	hit, err := Intersects(line, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("line inside polygon should intersect")
	}
}

func TestIntersects_LinesCrossing(t *testing.T) {
	a := geomFromJSON(t, "LineString", `[[0,0],[10,10]]`)
	b := geomFromJSON(t, "LineString", `[[0,10],[10,0]]`)

	hit, err := Intersects(a, b)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("crossing lines should intersect")
	}
}

func TestIntersects_LinesParallel(t *testing.T) {
	a := geomFromJSON(t, "LineString", `[[0,0],[10,0]]`)
	b := geomFromJSON(t, "LineString", `[[0,1],[10,1]]`)

	hit, err := Intersects(a, b)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if hit {
		t.Error("parallel separated lines should not intersect")
	}
}

func TestIntersects_Points(t *testing.T) {
	a := geomFromJSON(t, "Point", `[5, 5]`)
	b := geomFromJSON(t, "Point", `[5, 5]`)
	c := geomFromJSON(t, "Point", `[5, 6]`)

	hit, err := Intersects(a, b)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("identical points should intersect")
	}

	hit, err = Intersects(a, c)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if hit {
		t.Error("distinct points should not intersect")
	}
}

func TestIntersects_MultiPoint(t *testing.T) {
	points := geomFromJSON(t, "MultiPoint", `[[50,50],[5,5]]`)
	polygon := geomFromJSON(t, "Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	hit, err := Intersects(points, polygon)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("multipoint with one member inside should intersect")
	}
}

func TestIntersects_MultiPolygonPart(t *testing.T) {
	multi := geomFromJSON(t, "MultiPolygon",
		`[[[[20,20],[30,20],[30,30],[20,30],[20,20]]],[[[0,0],[10,0],[10,10],[0,10],[0,0]]]]`)
	probe := geomFromJSON(t, "Polygon", `[[[5,5],[6,5],[6,6],[5,6],[5,5]]]`)

	hit, err := Intersects(multi, probe)
	if err != nil {
		t.Fatalf("Intersects() error: %v", err)
	}
	if !hit {
		t.Error("probe inside one multipolygon part should intersect")
	}
}

func TestIntersects_UnsupportedType(t *testing.T) {
	bad := geomFromJSON(t, "Circle", `[]`)
	point := geomFromJSON(t, "Point", `[0, 0]`)

	if _, err := Intersects(bad, point); err == nil {
		t.Error("Intersects() should return error for unsupported type")
	}
}

func TestSegmentsIntersect(t *testing.T) {
	tests := []struct {
		name           string
		p1, q1, p2, q2 []float64
		want           bool
	}{
		{"crossing", []float64{0, 0}, []float64{10, 10}, []float64{0, 10}, []float64{10, 0}, true},
		{"shared endpoint", []float64{0, 0}, []float64{5, 5}, []float64{5, 5}, []float64{10, 0}, true},
		{"T contact", []float64{0, 0}, []float64{10, 0}, []float64{5, -5}, []float64{5, 0}, true},
		{"collinear overlap", []float64{0, 0}, []float64{10, 0}, []float64{5, 0}, []float64{15, 0}, true},
		{"collinear disjoint", []float64{0, 0}, []float64{4, 0}, []float64{5, 0}, []float64{10, 0}, false},
		{"parallel", []float64{0, 0}, []float64{10, 0}, []float64{0, 1}, []float64{10, 1}, false},
		{"disjoint", []float64{0, 0}, []float64{1, 1}, []float64{5, 5}, []float64{6, 5}, false},
	}

	for _, tt := range tests {
		if got := segmentsIntersect(tt.p1, tt.q1, tt.p2, tt.q2); got != tt.want {
			t.Errorf("%s: segmentsIntersect = %t, want %t", tt.name, got, tt.want)
		}
	}
}

func TestPointInPolygon_Holes(t *testing.T) {
	polygon := [][][]float64{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {4, 2}, {4, 4}, {2, 4}, {2, 2}},
	}

	tests := []struct {
		name  string
		point []float64
		want  bool
	}{
		{"inside shell", []float64{7, 7}, true},
		{"inside hole", []float64{3, 3}, false},
		{"on hole boundary", []float64{2, 3}, true},
		{"on shell boundary", []float64{0, 5}, true},
		{"outside", []float64{20, 20}, false},
	}

	for _, tt := range tests {
		if got := pointInPolygon(tt.point, polygon); got != tt.want {
			t.Errorf("%s: pointInPolygon(%v) = %t, want %t", tt.name, tt.point, got, tt.want)
		}
	}
}
