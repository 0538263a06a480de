package stac

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// ItemMeta holds the values derived from an item at write time: the decoded
// geometry with its envelope, and the temporal interval the search engine
// indexes on. Instant-valued items have Start equal to End.
type ItemMeta struct {
	Geometry *geojson.Geometry
	BBox     []float64
	Start    time.Time
	End      time.Time
}

// NormalizeItem validates an item for storage and derives its index metadata.
// Geometry is checked against simple-feature rules here, never assumed valid
// at read time. The item is patched in place: bbox is computed when absent
// and nil maps are initialized.
func NormalizeItem(item *Item) (*ItemMeta, error) {
	if item == nil {
		return nil, catalog.Errorf(catalog.KindInvalidItem, "item is empty")
	}
	if strings.TrimSpace(item.Id) == "" {
		return nil, catalog.Errorf(catalog.KindInvalidItem, "item id is required")
	}
	if strings.TrimSpace(item.Collection) == "" {
		return nil, catalog.Errorf(catalog.KindInvalidItem, "item collection is required")
	}

	geom, err := DecodeItemGeometry(item.Geometry)
	if err != nil {
		return nil, catalog.Wrap(catalog.KindInvalidGeometry, err, "item %q", item.Id)
	}
	if geom == nil {
		return nil, catalog.Errorf(catalog.KindInvalidGeometry, "item %q has no geometry", item.Id)
	}
	if err := geojson.Validate(geom); err != nil {
		return nil, catalog.Wrap(catalog.KindInvalidGeometry, err, "item %q", item.Id)
	}
	bbox, err := geojson.ComputeBBox(geom)
	if err != nil {
		return nil, catalog.Wrap(catalog.KindInvalidGeometry, err, "item %q", item.Id)
	}

	if item.Properties == nil {
		item.Properties = make(map[string]any)
	}
	if item.Assets == nil {
		item.Assets = make(map[string]*Asset)
	}
	if item.Links == nil {
		item.Links = make([]*Link, 0)
	}
	if len(item.Bbox) == 0 {
		item.Bbox = bbox
	}

	start, end, err := itemInterval(item.Properties)
	if err != nil {
		return nil, err
	}

	return &ItemMeta{Geometry: geom, BBox: bbox, Start: start, End: end}, nil
}

// itemInterval resolves an item's temporal extent from its properties: either
// an instant "datetime" or a "start_datetime"/"end_datetime" pair. One of the
// two forms is required; the engine indexes on it.
func itemInterval(props map[string]any) (start, end time.Time, err error) {
	startRaw, hasStart := timeProperty(props, "start_datetime")
	endRaw, hasEnd := timeProperty(props, "end_datetime")
	if hasStart || hasEnd {
		if !hasStart || !hasEnd {
			return start, end, catalog.Errorf(catalog.KindInvalidItem,
				"start_datetime and end_datetime must be set together")
		}
		if startRaw.After(endRaw) {
			return start, end, catalog.Errorf(catalog.KindInvalidItem,
				"start_datetime is after end_datetime")
		}
		return startRaw, endRaw, nil
	}

	instant, ok := timeProperty(props, "datetime")
	if !ok {
		return start, end, catalog.Errorf(catalog.KindInvalidItem,
			"item requires datetime or start_datetime/end_datetime")
	}
	return instant, instant, nil
}

func timeProperty(props map[string]any, name string) (time.Time, bool) {
	raw, ok := props[name]
	if !ok || raw == nil {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	}
	return time.Time{}, false
}

// DecodeItemGeometry converts the loosely typed geometry field of a go-stac
// item into a concrete Geometry. Accepts an already-decoded value, raw JSON,
// or a generic JSON object.
func DecodeItemGeometry(raw any) (*geojson.Geometry, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *geojson.Geometry:
		return v, nil
	case geojson.Geometry:
		return &v, nil
	case json.RawMessage:
		return unmarshalGeometry([]byte(v))
	case []byte:
		return unmarshalGeometry(v)
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return unmarshalGeometry(data)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return unmarshalGeometry(data)
}

func unmarshalGeometry(data []byte) (*geojson.Geometry, error) {
	var g geojson.Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	if g.Type == "" {
		return nil, catalog.Errorf(catalog.KindInvalidGeometry, "geometry has no type")
	}
	return &g, nil
}
