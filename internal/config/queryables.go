package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Queryable value types.
const (
	TypeString   = "string"
	TypeNumber   = "number"
	TypeInteger  = "integer"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
	TypeGeometry = "geometry"
)

// Queryable describes one filterable item property: the public name clients
// use in filters and sort clauses, the dot path into the item document where
// the value lives, and its type.
type Queryable struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	Type        string `yaml:"type"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Sortable    bool   `yaml:"sortable"`
}

// QueryableRegistry holds all queryable property definitions indexed by name.
// Ordering is preserved so rendered schemas stay stable.
type QueryableRegistry struct {
	queryables map[string]*Queryable
	order      []string
}

// NewQueryableRegistry creates a new empty queryable registry.
func NewQueryableRegistry() *QueryableRegistry {
	return &QueryableRegistry{
		queryables: make(map[string]*Queryable),
	}
}

// DefaultQueryables returns a registry preloaded with the core item properties
// every catalog exposes.
func DefaultQueryables() *QueryableRegistry {
	registry := NewQueryableRegistry()
	for _, q := range []*Queryable{
		{Name: "id", Path: "id", Type: TypeString, Title: "Item ID", Sortable: true},
		{Name: "collection", Path: "collection", Type: TypeString, Title: "Collection ID", Sortable: true},
		{Name: "geometry", Path: "geometry", Type: TypeGeometry, Title: "Geometry"},
		{Name: "datetime", Path: "properties.datetime", Type: TypeDatetime, Title: "Acquired", Sortable: true},
		{Name: "start_datetime", Path: "properties.start_datetime", Type: TypeDatetime, Title: "Start Datetime", Sortable: true},
		{Name: "end_datetime", Path: "properties.end_datetime", Type: TypeDatetime, Title: "End Datetime", Sortable: true},
		{Name: "created", Path: "properties.created", Type: TypeDatetime, Title: "Created", Sortable: true},
		{Name: "updated", Path: "properties.updated", Type: TypeDatetime, Title: "Updated", Sortable: true},
		{Name: "platform", Path: "properties.platform", Type: TypeString, Title: "Platform"},
		{Name: "constellation", Path: "properties.constellation", Type: TypeString, Title: "Constellation"},
		{Name: "instruments", Path: "properties.instruments", Type: TypeString, Title: "Instruments"},
		{Name: "gsd", Path: "properties.gsd", Type: TypeNumber, Title: "Ground Sample Distance", Sortable: true},
		{Name: "eo:cloud_cover", Path: "properties.eo:cloud_cover", Type: TypeNumber, Title: "Cloud Cover", Sortable: true},
	} {
		registry.Set(q)
	}
	return registry
}

// queryablesFile is the on-disk YAML document shape.
type queryablesFile struct {
	Queryables []*Queryable `yaml:"queryables"`
}

// LoadQueryables returns the default registry extended with definitions from
// the given YAML file. File entries replace defaults with the same name. An
// empty path returns the defaults unchanged.
func LoadQueryables(path string) (*QueryableRegistry, error) {
	registry := DefaultQueryables()
	if path == "" {
		return registry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queryables file %q: %w", path, err)
	}

	var file queryablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse queryables file %q: %w", path, err)
	}

	if len(file.Queryables) == 0 {
		return nil, fmt.Errorf("no queryables defined in %q", path)
	}

	for i, q := range file.Queryables {
		if err := validateQueryable(q); err != nil {
			return nil, fmt.Errorf("invalid queryable [%d] in %q: %w", i, path, err)
		}
		registry.Set(q)
	}

	return registry, nil
}

// validateQueryable checks that a queryable definition is usable, filling in
// the conventional properties path when none is given.
func validateQueryable(q *Queryable) error {
	if q == nil {
		return fmt.Errorf("queryable is empty")
	}

	if q.Name == "" {
		return fmt.Errorf("queryable name is required")
	}

	if strings.ContainsAny(q.Name, " \t\n") {
		return fmt.Errorf("queryable name %q must not contain whitespace", q.Name)
	}

	if q.Path == "" {
		q.Path = "properties." + q.Name
	}

	switch q.Type {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeDatetime, TypeGeometry:
	case "":
		return fmt.Errorf("queryable %q type is required", q.Name)
	default:
		return fmt.Errorf("queryable %q has unknown type %q", q.Name, q.Type)
	}

	if q.Type == TypeGeometry && q.Sortable {
		return fmt.Errorf("queryable %q: geometry is not sortable", q.Name)
	}

	return nil
}

// Set registers a queryable, replacing any existing definition with the same
// name while keeping its original position.
func (r *QueryableRegistry) Set(q *Queryable) {
	if q == nil {
		return
	}
	if _, exists := r.queryables[q.Name]; !exists {
		r.order = append(r.order, q.Name)
	}
	r.queryables[q.Name] = q
}

// Get retrieves a queryable by name.
// Returns nil if the queryable does not exist.
func (r *QueryableRegistry) Get(name string) *Queryable {
	return r.queryables[name]
}

// Has checks if a queryable with the given name exists in the registry.
func (r *QueryableRegistry) Has(name string) bool {
	_, exists := r.queryables[name]
	return exists
}

// All returns all queryables in registration order.
func (r *QueryableRegistry) All() []*Queryable {
	queryables := make([]*Queryable, 0, len(r.order))
	for _, name := range r.order {
		queryables = append(queryables, r.queryables[name])
	}
	return queryables
}

// Names returns all queryable names in registration order.
func (r *QueryableRegistry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of queryables in the registry.
func (r *QueryableRegistry) Count() int {
	return len(r.queryables)
}

// Sortable reports whether the named queryable exists and may appear in a
// sort clause.
func (r *QueryableRegistry) Sortable(name string) bool {
	q := r.Get(name)
	return q != nil && q.Sortable
}

// JSONSchema renders the registry as a JSON Schema document for the
// queryables endpoints.
func (r *QueryableRegistry) JSONSchema(id string) map[string]any {
	properties := make(map[string]any, len(r.order))
	for _, name := range r.order {
		properties[name] = r.queryables[name].schemaFragment()
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2019-09/schema",
		"$id":                  id,
		"type":                 "object",
		"title":                "Queryables",
		"properties":           properties,
		"additionalProperties": false,
	}
}

func (q *Queryable) schemaFragment() map[string]any {
	fragment := make(map[string]any)
	if q.Title != "" {
		fragment["title"] = q.Title
	}
	if q.Description != "" {
		fragment["description"] = q.Description
	}

	switch q.Type {
	case TypeDatetime:
		fragment["type"] = "string"
		fragment["format"] = "date-time"
	case TypeGeometry:
		fragment["$ref"] = "https://geojson.org/schema/Geometry.json"
	default:
		fragment["type"] = q.Type
	}

	return fragment
}
