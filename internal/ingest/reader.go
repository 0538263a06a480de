package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rkm/stac-catalog/internal/stac"
)

// ReadItems reads STAC items from r. It accepts three layouts: a GeoJSON
// FeatureCollection, a single Feature, or newline-delimited Features
// (one JSON object per line).
func ReadItems(r io.Reader) ([]*stac.Item, error) {
	dec := json.NewDecoder(r)

	var first json.RawMessage
	if err := dec.Decode(&first); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(first, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	if probe.Type == "FeatureCollection" {
		var fc stac.ItemCollection
		if err := json.Unmarshal(first, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		return fc.Features, nil
	}

	// Single feature, possibly followed by more (ndjson).
	items := make([]*stac.Item, 0, 1)
	raw := first
	for {
		var item stac.Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to parse item %d: %w", len(items)+1, err)
		}
		items = append(items, &item)

		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return items, nil
			}
			return nil, fmt.Errorf("failed to parse item %d: %w", len(items)+1, err)
		}
	}
}
