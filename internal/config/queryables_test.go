package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultQueryables(t *testing.T) {
	registry := DefaultQueryables()

	for _, name := range []string{"id", "collection", "geometry", "datetime", "eo:cloud_cover"} {
		if !registry.Has(name) {
			t.Errorf("default registry missing %q", name)
		}
	}

	q := registry.Get("eo:cloud_cover")
	if q == nil {
		t.Fatal("eo:cloud_cover not found")
	}
	if q.Path != "properties.eo:cloud_cover" {
		t.Errorf("expected path properties.eo:cloud_cover, got %s", q.Path)
	}
	if q.Type != TypeNumber {
		t.Errorf("expected type number, got %s", q.Type)
	}

	if !registry.Sortable("datetime") {
		t.Error("datetime should be sortable")
	}
	if registry.Sortable("platform") {
		t.Error("platform should not be sortable")
	}
	if registry.Sortable("no-such-field") {
		t.Error("unknown field should not be sortable")
	}
}

func TestLoadQueryables(t *testing.T) {
	tmpDir := t.TempDir()

	content := `queryables:
  - name: sar:polarizations
    type: string
    title: Polarizations
  - name: view:off_nadir
    path: properties.view:off_nadir
    type: number
    sortable: true
  - name: platform
    path: properties.platform
    type: string
    sortable: true
`
	path := filepath.Join(tmpDir, "queryables.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write queryables file: %v", err)
	}

	registry, err := LoadQueryables(path)
	if err != nil {
		t.Fatalf("LoadQueryables() failed: %v", err)
	}

	// Defaults are still present.
	if !registry.Has("datetime") {
		t.Error("defaults should survive loading a file")
	}

	// New entry with derived path.
	q := registry.Get("sar:polarizations")
	if q == nil {
		t.Fatal("sar:polarizations not found")
	}
	if q.Path != "properties.sar:polarizations" {
		t.Errorf("expected derived path, got %s", q.Path)
	}

	// New sortable entry.
	if !registry.Sortable("view:off_nadir") {
		t.Error("view:off_nadir should be sortable")
	}

	// File entry overrides the default definition.
	if !registry.Sortable("platform") {
		t.Error("platform override should be sortable")
	}

	defaults := DefaultQueryables()
	if registry.Count() != defaults.Count()+2 {
		t.Errorf("expected %d queryables, got %d", defaults.Count()+2, registry.Count())
	}
}

func TestLoadQueryablesEmptyPath(t *testing.T) {
	registry, err := LoadQueryables("")
	if err != nil {
		t.Fatalf("LoadQueryables(\"\") failed: %v", err)
	}

	if registry.Count() != DefaultQueryables().Count() {
		t.Error("empty path should return default registry")
	}
}

func TestLoadQueryablesMissingFile(t *testing.T) {
	_, err := LoadQueryables("/nonexistent/queryables.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadQueryablesEmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "queryables.yaml")
	if err := os.WriteFile(path, []byte("queryables: []\n"), 0644); err != nil {
		t.Fatalf("failed to write queryables file: %v", err)
	}

	_, err := LoadQueryables(path)
	if err == nil {
		t.Error("expected error for file without queryables")
	}
}

func TestValidateQueryable(t *testing.T) {
	tests := []struct {
		name      string
		queryable *Queryable
		wantError bool
	}{
		{
			name:      "valid",
			queryable: &Queryable{Name: "gsd", Path: "properties.gsd", Type: TypeNumber},
			wantError: false,
		},
		{
			name:      "missing name",
			queryable: &Queryable{Path: "properties.gsd", Type: TypeNumber},
			wantError: true,
		},
		{
			name:      "name with whitespace",
			queryable: &Queryable{Name: "cloud cover", Type: TypeNumber},
			wantError: true,
		},
		{
			name:      "missing type",
			queryable: &Queryable{Name: "gsd"},
			wantError: true,
		},
		{
			name:      "unknown type",
			queryable: &Queryable{Name: "gsd", Type: "float"},
			wantError: true,
		},
		{
			name:      "sortable geometry",
			queryable: &Queryable{Name: "footprint", Type: TypeGeometry, Sortable: true},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateQueryable(tt.queryable)
			if (err != nil) != tt.wantError {
				t.Errorf("validateQueryable() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestQueryableRegistryOrder(t *testing.T) {
	registry := NewQueryableRegistry()
	registry.Set(&Queryable{Name: "b", Path: "properties.b", Type: TypeString})
	registry.Set(&Queryable{Name: "a", Path: "properties.a", Type: TypeString})
	registry.Set(&Queryable{Name: "b", Path: "properties.b2", Type: TypeNumber})

	names := registry.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Errorf("expected registration order [b a], got %v", names)
	}

	// Replacement keeps position but updates the definition.
	if registry.Get("b").Path != "properties.b2" {
		t.Errorf("expected replaced path, got %s", registry.Get("b").Path)
	}
}

func TestJSONSchema(t *testing.T) {
	registry := DefaultQueryables()
	schema := registry.JSONSchema("https://stac.example.com/queryables")

	if schema["$id"] != "https://stac.example.com/queryables" {
		t.Errorf("unexpected $id: %v", schema["$id"])
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema properties missing")
	}

	if len(properties) != registry.Count() {
		t.Errorf("expected %d properties, got %d", registry.Count(), len(properties))
	}

	datetime, ok := properties["datetime"].(map[string]any)
	if !ok {
		t.Fatal("datetime property missing")
	}
	if datetime["type"] != "string" || datetime["format"] != "date-time" {
		t.Errorf("unexpected datetime fragment: %v", datetime)
	}

	geometry, ok := properties["geometry"].(map[string]any)
	if !ok {
		t.Fatal("geometry property missing")
	}
	if geometry["$ref"] != "https://geojson.org/schema/Geometry.json" {
		t.Errorf("unexpected geometry fragment: %v", geometry)
	}
}
