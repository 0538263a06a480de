package redis

import (
	"context"
	"strings"

	"github.com/rkm/stac-catalog/internal/config"
)

// Reserved envelope field names produced for every item regardless of the
// registry: identity, the temporal interval in nanoseconds, and the envelope
// sides used for bbox-overlap queries.
const (
	fieldID         = "id"
	fieldCollection = "collection"
	fieldStart      = "start"
	fieldEnd        = "end"
	fieldWest       = "west"
	fieldSouth      = "south"
	fieldEast       = "east"
	fieldNorth      = "north"
)

// ensureIndex creates the search index over item envelopes. An existing
// index is left untouched.
func (s *Store) ensureIndex(ctx context.Context) error {
	args := []string{
		s.indexName(),
		"ON", "JSON",
		"PREFIX", "1", s.prefix + "item:",
		"SCHEMA",
	}
	args = append(args, indexSchema(s.registry)...)

	cmd := s.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return s.translate(ctx, err)
	}
	s.logger.Info("search index created", "index", s.indexName())
	return nil
}

// indexSchema renders the FT.CREATE SCHEMA arguments for a registry. Every
// queryable gets one field in the idx envelope; geometry contributes the four
// envelope sides instead of a field of its own.
func indexSchema(registry *config.QueryableRegistry) []string {
	var args []string
	field := func(name, ftType string, sortable bool) {
		args = append(args, "$.idx."+name, "AS", name, ftType)
		if sortable {
			args = append(args, "SORTABLE")
		}
	}

	field(fieldStart, "NUMERIC", true)
	field(fieldEnd, "NUMERIC", true)
	field(fieldWest, "NUMERIC", false)
	field(fieldSouth, "NUMERIC", false)
	field(fieldEast, "NUMERIC", false)
	field(fieldNorth, "NUMERIC", false)

	for _, q := range registry.All() {
		name := envelopeField(q.Name)
		switch q.Type {
		case config.TypeGeometry:
			// Covered by the envelope side fields.
		case config.TypeNumber, config.TypeInteger:
			field(name, "NUMERIC", q.Sortable)
		case config.TypeDatetime:
			// Datetime queryables index as interval nanos; the core
			// datetime pair is already covered by start and end.
			if name != "datetime" && name != "start_datetime" && name != "end_datetime" {
				field(name, "NUMERIC", q.Sortable)
			}
		case config.TypeBoolean, config.TypeString:
			field(name, "TAG", q.Sortable)
		}
	}
	return args
}

// envelopeField sanitizes a queryable name into a RediSearch attribute name.
// Extension prefixes use ":" which the query syntax reserves.
func envelopeField(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
