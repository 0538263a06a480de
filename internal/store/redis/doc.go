package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
)

// envelope is the stored document shape: the item verbatim, its revision,
// and a flattened index projection the search schema points into.
type envelope struct {
	Item json.RawMessage `json:"item"`
	Rev  string          `json:"rev"`
	Idx  map[string]any  `json:"idx"`
}

// buildEnvelope renders a record into its stored form.
func buildEnvelope(rec *store.Record, registry *config.QueryableRegistry) ([]byte, error) {
	itemJSON, err := json.Marshal(rec.Item)
	if err != nil {
		return nil, fmt.Errorf("encoding item %q: %w", rec.Item.Id, err)
	}

	idx := map[string]any{
		fieldID:         rec.Item.Id,
		fieldCollection: rec.Item.Collection,
	}
	idx[fieldStart] = epochSeconds(rec.Meta.Start)
	idx[fieldEnd] = epochSeconds(rec.Meta.End)
	if len(rec.Meta.BBox) == 4 {
		idx[fieldWest] = rec.Meta.BBox[0]
		idx[fieldSouth] = rec.Meta.BBox[1]
		idx[fieldEast] = rec.Meta.BBox[2]
		idx[fieldNorth] = rec.Meta.BBox[3]
	}

	doc := rec.Doc()
	for _, q := range registry.All() {
		name := envelopeField(q.Name)
		if _, reserved := idx[name]; reserved {
			continue
		}
		switch q.Type {
		case config.TypeGeometry:
			continue
		case config.TypeDatetime:
			// The core interval pair already indexes as start/end.
			if name == "datetime" || name == "start_datetime" || name == "end_datetime" {
				continue
			}
		}
		value, ok := doc.Lookup(q)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case time.Time:
			idx[name] = epochSeconds(v)
		case bool:
			// TAG fields index booleans as strings.
			if v {
				idx[name] = "true"
			} else {
				idx[name] = "false"
			}
		default:
			idx[name] = v
		}
	}

	return json.Marshal(envelope{Item: itemJSON, Rev: rec.Revision, Idx: idx})
}

// decodeEnvelope restores a record from its stored form, recomputing the
// derived metadata from the item itself.
func decodeEnvelope(data []byte) (*store.Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding item envelope: %w", err)
	}
	var item stac.Item
	if err := json.Unmarshal(env.Item, &item); err != nil {
		return nil, fmt.Errorf("decoding enveloped item: %w", err)
	}
	rec, err := store.NewRecord(&item)
	if err != nil {
		return nil, fmt.Errorf("restoring item %q: %w", item.Id, err)
	}
	rec.Revision = env.Rev
	return rec, nil
}

// epochSeconds indexes instants as float seconds. Sub-microsecond precision
// at current epochs, which is plenty for pruning; exact comparisons run on
// the decoded record.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
