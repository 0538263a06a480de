package redis

import (
	"encoding/json"
	"testing"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
)

func envelopeRecord(t *testing.T) *store.Record {
	t.Helper()
	rec, err := store.NewRecord(&stac.Item{
		Id:         "i1",
		Collection: "c1",
		Geometry: map[string]any{
			"type":        "Point",
			"coordinates": []any{10.0, 40.0},
		},
		Properties: map[string]any{
			"datetime":       "2024-03-01T10:00:00Z",
			"eo:cloud_cover": 12.5,
		},
	})
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	rec.Revision = store.NewRevision()
	return rec
}

func TestBuildEnvelopeIndexesTemporalExtent(t *testing.T) {
	rec := envelopeRecord(t)

	data, err := buildEnvelope(rec, config.DefaultQueryables())
	if err != nil {
		t.Fatalf("buildEnvelope() error = %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}

	// Every stored item carries a temporal extent, so the interval fields
	// must always be in the index projection.
	want := epochSeconds(rec.Meta.Start)
	for _, field := range []string{fieldStart, fieldEnd} {
		got, ok := env.Idx[field].(float64)
		if !ok {
			t.Fatalf("idx[%q] = %v (%T), want numeric", field, env.Idx[field], env.Idx[field])
		}
		if got != want {
			t.Errorf("idx[%q] = %v, want %v", field, got, want)
		}
	}
	if env.Idx[fieldID] != "i1" || env.Idx[fieldCollection] != "c1" {
		t.Errorf("identity fields = %v / %v", env.Idx[fieldID], env.Idx[fieldCollection])
	}
	if env.Idx[envelopeField("eo:cloud_cover")] != 12.5 {
		t.Errorf("idx[eo_cloud_cover] = %v, want 12.5", env.Idx[envelopeField("eo:cloud_cover")])
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	rec := envelopeRecord(t)

	data, err := buildEnvelope(rec, config.DefaultQueryables())
	if err != nil {
		t.Fatalf("buildEnvelope() error = %v", err)
	}
	got, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decodeEnvelope() error = %v", err)
	}
	if got.Item.Id != rec.Item.Id || got.Revision != rec.Revision {
		t.Errorf("restored = %s@%s, want %s@%s", got.Item.Id, got.Revision, rec.Item.Id, rec.Revision)
	}
	if !got.Meta.Start.Equal(rec.Meta.Start) || !got.Meta.End.Equal(rec.Meta.End) {
		t.Errorf("restored interval = [%v, %v], want [%v, %v]",
			got.Meta.Start, got.Meta.End, rec.Meta.Start, rec.Meta.End)
	}
}
