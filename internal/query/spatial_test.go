package query

import (
	"encoding/json"
	"testing"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

func TestBBoxFragment(t *testing.T) {
	f, err := BBoxFragment([]float64{-10, 35, 30, 60})
	if err != nil {
		t.Fatalf("BBoxFragment() error = %v", err)
	}
	if f.Kind != KindSpatial {
		t.Fatalf("expected spatial fragment, got %s", f.Kind)
	}
	want := []float64{-10, 35, 30, 60}
	for i, v := range want {
		if f.BBox[i] != v {
			t.Errorf("bbox[%d] = %v, want %v", i, f.BBox[i], v)
		}
	}
}

func TestBBoxFragment3D(t *testing.T) {
	f, err := BBoxFragment([]float64{-10, 35, 0, 30, 60, 1000})
	if err != nil {
		t.Fatalf("BBoxFragment() error = %v", err)
	}
	want := []float64{-10, 35, 30, 60}
	for i, v := range want {
		if f.BBox[i] != v {
			t.Errorf("bbox[%d] = %v, want %v (elevation must be dropped)", i, f.BBox[i], v)
		}
	}
}

func TestBBoxFragmentAntimeridianSplit(t *testing.T) {
	f, err := BBoxFragment([]float64{170, -10, -170, 10})
	if err != nil {
		t.Fatalf("BBoxFragment() error = %v", err)
	}
	if f.Kind != KindOr || len(f.Children) != 2 {
		t.Fatalf("expected OR of two half boxes, got %s with %d children", f.Kind, len(f.Children))
	}

	east := f.Children[0]
	if east.BBox[0] != 170 || east.BBox[2] != 180 {
		t.Errorf("eastern half = %v, want [170 .. 180]", east.BBox)
	}
	west := f.Children[1]
	if west.BBox[0] != -180 || west.BBox[2] != -170 {
		t.Errorf("western half = %v, want [-180 .. -170]", west.BBox)
	}
	for _, half := range f.Children {
		if half.BBox[1] != -10 || half.BBox[3] != 10 {
			t.Errorf("latitudes must carry over unchanged, got %v", half.BBox)
		}
	}
}

func TestBBoxFragmentInvalid(t *testing.T) {
	tests := []struct {
		name string
		bbox []float64
	}{
		{"too few values", []float64{1, 2, 3}},
		{"five values", []float64{1, 2, 3, 4, 5}},
		{"west out of range", []float64{-190, 0, 10, 10}},
		{"east out of range", []float64{0, 0, 190, 10}},
		{"south out of range", []float64{0, -91, 10, 10}},
		{"north out of range", []float64{0, 0, 10, 91}},
		{"south above north", []float64{0, 50, 10, 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BBoxFragment(tt.bbox)
			if !catalog.IsKind(err, catalog.KindInvalidFilterGeometry) {
				t.Errorf("expected InvalidFilterGeometry, got %v", err)
			}
		})
	}
}

func geomJSON(typ, coords string) *geojson.Geometry {
	return &geojson.Geometry{Type: typ, Coordinates: json.RawMessage(coords)}
}

func TestIntersectsFragment(t *testing.T) {
	g := geomJSON("Polygon", `[[[0,0],[10,0],[10,10],[0,10],[0,0]]]`)

	f, err := IntersectsFragment(g)
	if err != nil {
		t.Fatalf("IntersectsFragment() error = %v", err)
	}
	if f.Kind != KindSpatial || f.Geometry == nil {
		t.Fatal("expected spatial fragment carrying the geometry")
	}
	want := []float64{0, 0, 10, 10}
	for i, v := range want {
		if f.BBox[i] != v {
			t.Errorf("derived bbox[%d] = %v, want %v", i, f.BBox[i], v)
		}
	}
}

func TestIntersectsFragmentInvalid(t *testing.T) {
	if _, err := IntersectsFragment(nil); !catalog.IsKind(err, catalog.KindInvalidFilterGeometry) {
		t.Errorf("nil geometry: expected InvalidFilterGeometry, got %v", err)
	}

	unclosed := geomJSON("Polygon", `[[[0,0],[10,0],[10,10],[0,10]]]`)
	if _, err := IntersectsFragment(unclosed); !catalog.IsKind(err, catalog.KindInvalidFilterGeometry) {
		t.Errorf("unclosed ring: expected InvalidFilterGeometry, got %v", err)
	}

	bowtie := geomJSON("Polygon", `[[[0,0],[10,10],[10,0],[0,10],[0,0]]]`)
	if _, err := IntersectsFragment(bowtie); !catalog.IsKind(err, catalog.KindInvalidFilterGeometry) {
		t.Errorf("self-intersecting ring: expected InvalidFilterGeometry, got %v", err)
	}
}
