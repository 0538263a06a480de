package stac

import (
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/rkm/stac-catalog/internal/query"
)

func TestParseSortbyParam(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    []SortbyItem
		expectError bool
	}{
		{
			name:     "bare field defaults to ascending",
			input:    "datetime",
			expected: []SortbyItem{{Field: "datetime", Direction: "asc"}},
		},
		{
			name:     "explicit ascending",
			input:    "+datetime",
			expected: []SortbyItem{{Field: "datetime", Direction: "asc"}},
		},
		{
			name:     "descending",
			input:    "-datetime",
			expected: []SortbyItem{{Field: "datetime", Direction: "desc"}},
		},
		{
			name:  "multiple fields",
			input: "-datetime,+eo:cloud_cover,id",
			expected: []SortbyItem{
				{Field: "datetime", Direction: "desc"},
				{Field: "eo:cloud_cover", Direction: "asc"},
				{Field: "id", Direction: "asc"},
			},
		},
		{
			name:     "whitespace around fields",
			input:    " -datetime , +gsd ",
			expected: []SortbyItem{{Field: "datetime", Direction: "desc"}, {Field: "gsd", Direction: "asc"}},
		},
		{
			name:        "bare direction prefix",
			input:       "-",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseSortbyParam(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSortbyParam(%q) error = %v", tt.input, err)
			}
			if !reflect.DeepEqual(items, tt.expected) {
				t.Errorf("parseSortbyParam(%q) = %+v, want %+v", tt.input, items, tt.expected)
			}
		})
	}
}

func TestSortSpecs(t *testing.T) {
	req := &SearchRequest{
		Sortby: []SortbyItem{
			{Field: "datetime", Direction: "desc"},
			{Field: "eo:cloud_cover", Direction: "asc"},
		},
	}

	specs := req.SortSpecs()
	expected := []query.SortSpec{
		{Field: "datetime", Descending: true},
		{Field: "eo:cloud_cover", Descending: false},
	}
	if !reflect.DeepEqual(specs, expected) {
		t.Errorf("SortSpecs() = %+v, want %+v", specs, expected)
	}
}

func TestSortSpecsEmpty(t *testing.T) {
	req := &SearchRequest{}
	if specs := req.SortSpecs(); specs != nil {
		t.Errorf("expected nil specs for empty sortby, got %+v", specs)
	}
}

func TestParseSearchRequestSortby(t *testing.T) {
	r := httptest.NewRequest("GET", "/search?sortby=-datetime%2C%2Beo%3Acloud_cover", nil)
	req, err := ParseSearchRequest(r)
	if err != nil {
		t.Fatalf("ParseSearchRequest() error = %v", err)
	}
	if len(req.Sortby) != 2 {
		t.Fatalf("expected 2 sortby items, got %d", len(req.Sortby))
	}
	if req.Sortby[0].Field != "datetime" || req.Sortby[0].Direction != "desc" {
		t.Errorf("unexpected first sort item: %+v", req.Sortby[0])
	}
	if req.Sortby[1].Field != "eo:cloud_cover" || req.Sortby[1].Direction != "asc" {
		t.Errorf("unexpected second sort item: %+v", req.Sortby[1])
	}
}
