package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/internal/stac"
)

func pageItem(id string) *stac.Item {
	return &stac.Item{
		Id:         id,
		Collection: "sentinel-2",
		Geometry:   map[string]any{"type": "Point", "coordinates": []any{10.0, 20.0}},
		Properties: map[string]any{"datetime": "2024-01-01T00:00:00Z"},
	}
}

func TestHarvestFollowsNextLinks(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/collections/sentinel-2/items") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit=2, got %q", r.URL.Query().Get("limit"))
		}

		page := stac.NewItemCollection(nil)
		switch r.URL.Query().Get("token") {
		case "":
			page.Features = []*stac.Item{pageItem("a"), pageItem("b")}
			page.AddLink("next", server.URL+"/collections/sentinel-2/items?limit=2&token=p2", "application/geo+json")
		case "p2":
			page.Features = []*stac.Item{pageItem("c")}
		default:
			t.Errorf("unexpected token %q", r.URL.Query().Get("token"))
		}
		page.NumberReturned = len(page.Features)

		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)

	var ids []string
	total, err := client.Harvest(context.Background(), "sentinel-2", 2, func(item *stac.Item) error {
		ids = append(ids, item.Id)
		return nil
	})
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 items, got %d", total)
	}
	if got := strings.Join(ids, ","); got != "a,b,c" {
		t.Errorf("expected a,b,c, got %s", got)
	}
}

func TestHarvestStopsOnCallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := stac.NewItemCollection([]*stac.Item{pageItem("a"), pageItem("b")})
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)

	calls := 0
	_, err := client.Harvest(context.Background(), "sentinel-2", 10, func(item *stac.Item) error {
		calls++
		return fmt.Errorf("sink full")
	})
	if err == nil || !strings.Contains(err.Error(), "sink full") {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected harvest to stop after first callback, got %d calls", calls)
	}
}

func TestHarvestNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.Harvest(context.Background(), "sentinel-2", 10, func(*stac.Item) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFetchCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/landsat-8" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"type":        "Collection",
			"id":          "landsat-8",
			"description": "Landsat 8 scenes",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	coll, err := client.FetchCollection(context.Background(), "landsat-8")
	if err != nil {
		t.Fatalf("FetchCollection failed: %v", err)
	}
	if coll.Id != "landsat-8" {
		t.Errorf("expected id landsat-8, got %s", coll.Id)
	}
}

func TestReadItemsFeatureCollection(t *testing.T) {
	input := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"a","collection":"c1","geometry":null,"properties":{}},
		{"type":"Feature","id":"b","collection":"c1","geometry":null,"properties":{}}
	]}`

	items, err := ReadItems(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadItems failed: %v", err)
	}
	if len(items) != 2 || items[0].Id != "a" || items[1].Id != "b" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestReadItemsNDJSON(t *testing.T) {
	input := `{"type":"Feature","id":"a","collection":"c1","geometry":null,"properties":{}}
{"type":"Feature","id":"b","collection":"c1","geometry":null,"properties":{}}
{"type":"Feature","id":"c","collection":"c1","geometry":null,"properties":{}}`

	items, err := ReadItems(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadItems failed: %v", err)
	}
	if len(items) != 3 || items[2].Id != "c" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestReadItemsEmpty(t *testing.T) {
	items, err := ReadItems(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}
