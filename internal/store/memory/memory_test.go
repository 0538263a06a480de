package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCollection(id string) *stac.Collection {
	return &stac.Collection{
		Id:          id,
		Description: "test collection " + id,
		License:     "proprietary",
	}
}

func testItem(collection, id string, lon, lat float64, datetime string) *stac.Item {
	return &stac.Item{
		Id:         id,
		Collection: collection,
		Geometry: map[string]any{
			"type":        "Point",
			"coordinates": []any{lon, lat},
		},
		Properties: map[string]any{
			"datetime": datetime,
		},
	}
}

func mustRecord(t *testing.T, item *stac.Item) *store.Record {
	t.Helper()
	rec, err := store.NewRecord(item)
	if err != nil {
		t.Fatalf("NewRecord(%s) error = %v", item.Id, err)
	}
	return rec
}

func seedItem(t *testing.T, s *Store, item *stac.Item) *store.Record {
	t.Helper()
	rec := mustRecord(t, item)
	if err := s.CreateItem(context.Background(), rec); err != nil {
		t.Fatalf("CreateItem(%s) error = %v", item.Id, err)
	}
	return rec
}

func buildPlan(t *testing.T, in query.PlanInput) *query.Plan {
	t.Helper()
	planner := query.NewPlanner(config.DefaultQueryables(), 10, 10000)
	plan, err := planner.Build(in)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return plan
}

func TestCollectionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, testCollection("sentinel-2")); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	if err := s.CreateCollection(ctx, testCollection("sentinel-2")); !catalog.IsKind(err, catalog.KindDuplicateCollection) {
		t.Errorf("duplicate CreateCollection() error = %v, want KindDuplicateCollection", err)
	}

	got, err := s.GetCollection(ctx, "sentinel-2")
	if err != nil {
		t.Fatalf("GetCollection() error = %v", err)
	}
	if got.Description != "test collection sentinel-2" {
		t.Errorf("GetCollection() description = %q", got.Description)
	}

	updated := testCollection("sentinel-2")
	updated.Description = "updated"
	if err := s.UpdateCollection(ctx, updated); err != nil {
		t.Fatalf("UpdateCollection() error = %v", err)
	}
	got, _ = s.GetCollection(ctx, "sentinel-2")
	if got.Description != "updated" {
		t.Errorf("description after update = %q, want %q", got.Description, "updated")
	}

	if err := s.CreateCollection(ctx, testCollection("landsat-8")); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections() error = %v", err)
	}
	if len(list) != 2 || list[0].Id != "landsat-8" || list[1].Id != "sentinel-2" {
		t.Errorf("ListCollections() order wrong: %v, %v", list[0].Id, list[1].Id)
	}

	if err := s.DeleteCollection(ctx, "landsat-8", false); err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if _, err := s.GetCollection(ctx, "landsat-8"); !catalog.IsKind(err, catalog.KindNotFound) {
		t.Errorf("GetCollection() after delete error = %v, want KindNotFound", err)
	}
	if err := s.UpdateCollection(ctx, testCollection("landsat-8")); !catalog.IsKind(err, catalog.KindNotFound) {
		t.Errorf("UpdateCollection() on missing collection error = %v, want KindNotFound", err)
	}
}

func TestDeleteCollectionWithItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	seedItem(t, s, testItem("c1", "i1", 10, 50, "2024-01-01T00:00:00Z"))

	if err := s.DeleteCollection(ctx, "c1", false); !catalog.IsKind(err, catalog.KindCollectionNotEmpty) {
		t.Fatalf("DeleteCollection() error = %v, want KindCollectionNotEmpty", err)
	}

	n, err := s.CollectionItemCount(ctx, "c1")
	if err != nil || n != 1 {
		t.Fatalf("CollectionItemCount() = %d, %v, want 1", n, err)
	}

	if err := s.DeleteCollection(ctx, "c1", true); err != nil {
		t.Fatalf("DeleteCollection(force) error = %v", err)
	}
	if _, err := s.GetItem(ctx, "c1", "i1"); !catalog.IsKind(err, catalog.KindCollectionNotFound) {
		t.Errorf("GetItem() after cascade error = %v, want KindCollectionNotFound", err)
	}
}

func TestItemLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := mustRecord(t, testItem("c1", "i1", 10, 50, "2024-01-01T00:00:00Z"))
	if err := s.CreateItem(ctx, rec); !catalog.IsKind(err, catalog.KindCollectionNotFound) {
		t.Fatalf("CreateItem() without collection error = %v, want KindCollectionNotFound", err)
	}

	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateItem(ctx, rec); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if rec.Revision == "" {
		t.Fatal("CreateItem() did not assign a revision")
	}

	dup := mustRecord(t, testItem("c1", "i1", 10, 50, "2024-01-01T00:00:00Z"))
	if err := s.CreateItem(ctx, dup); !catalog.IsKind(err, catalog.KindDuplicateItem) {
		t.Errorf("duplicate CreateItem() error = %v, want KindDuplicateItem", err)
	}

	got, err := s.GetItem(ctx, "c1", "i1")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.Revision != rec.Revision {
		t.Errorf("GetItem() revision = %q, want %q", got.Revision, rec.Revision)
	}

	next := mustRecord(t, testItem("c1", "i1", 11, 51, "2024-02-01T00:00:00Z"))
	if err := s.UpdateItem(ctx, next, "bogus"); !catalog.IsKind(err, catalog.KindRevisionConflict) {
		t.Fatalf("UpdateItem() with stale revision error = %v, want KindRevisionConflict", err)
	}
	if err := s.UpdateItem(ctx, next, rec.Revision); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if next.Revision == rec.Revision {
		t.Error("UpdateItem() did not rotate the revision")
	}

	if err := s.DeleteItem(ctx, "c1", "i1", rec.Revision); !catalog.IsKind(err, catalog.KindRevisionConflict) {
		t.Fatalf("DeleteItem() with stale revision error = %v, want KindRevisionConflict", err)
	}
	if err := s.DeleteItem(ctx, "c1", "i1", next.Revision); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if _, err := s.GetItem(ctx, "c1", "i1"); !catalog.IsKind(err, catalog.KindNotFound) {
		t.Errorf("GetItem() after delete error = %v, want KindNotFound", err)
	}
	if err := s.DeleteItem(ctx, "c1", "i1", ""); !catalog.IsKind(err, catalog.KindNotFound) {
		t.Errorf("DeleteItem() on missing item error = %v, want KindNotFound", err)
	}
}

func TestConcurrentUpdateOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	base := seedItem(t, s, testItem("c1", "i1", 10, 50, "2024-01-01T00:00:00Z"))

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := mustRecord(t, testItem("c1", "i1", float64(i), 40, "2024-03-01T00:00:00Z"))
			results[i] = s.UpdateItem(ctx, rec, base.Revision)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case catalog.IsKind(err, catalog.KindRevisionConflict):
		default:
			t.Errorf("unexpected UpdateItem() error = %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("concurrent updates: %d winners, want exactly 1", winners)
	}
}

func TestExecuteFiltersAndSort(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCollection(ctx, testCollection("c2")); err != nil {
		t.Fatal(err)
	}
	seedItem(t, s, testItem("c1", "a", 10, 50, "2024-01-01T00:00:00Z"))
	seedItem(t, s, testItem("c1", "b", 20, 55, "2024-02-01T00:00:00Z"))
	seedItem(t, s, testItem("c1", "c", 120, -30, "2024-03-01T00:00:00Z"))
	seedItem(t, s, testItem("c2", "d", 10, 50, "2024-04-01T00:00:00Z"))

	t.Run("bbox scopes spatially", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{BBox: []float64{0, 40, 30, 60}})
		rows, hasMore, err := s.Execute(ctx, plan, nil)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if hasMore {
			t.Error("hasMore = true, want false")
		}
		if gotIDs(rows) != "d,b,a" {
			t.Errorf("rows = %s, want d,b,a (datetime desc)", gotIDs(rows))
		}
	})

	t.Run("collection scope", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{Collections: []string{"c2"}})
		rows, _, err := s.Execute(ctx, plan, nil)
		if err != nil {
			t.Fatal(err)
		}
		if gotIDs(rows) != "d" {
			t.Errorf("rows = %s, want d", gotIDs(rows))
		}
	})

	t.Run("datetime interval", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{Datetime: "2024-01-15T00:00:00Z/2024-03-15T00:00:00Z"})
		rows, _, err := s.Execute(ctx, plan, nil)
		if err != nil {
			t.Fatal(err)
		}
		if gotIDs(rows) != "c,b" {
			t.Errorf("rows = %s, want c,b", gotIDs(rows))
		}
	})

	t.Run("ids filter", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{IDs: []string{"a", "d"}})
		rows, _, err := s.Execute(ctx, plan, nil)
		if err != nil {
			t.Fatal(err)
		}
		if gotIDs(rows) != "d,a" {
			t.Errorf("rows = %s, want d,a", gotIDs(rows))
		}
	})

	t.Run("unknown scoped collection matches nothing", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{Collections: []string{"nope"}})
		rows, hasMore, err := s.Execute(ctx, plan, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 0 || hasMore {
			t.Errorf("rows = %d, hasMore = %v, want empty", len(rows), hasMore)
		}
	})

	t.Run("count", func(t *testing.T) {
		plan := buildPlan(t, query.PlanInput{})
		n, err := s.Count(ctx, plan)
		if err != nil || n != 4 {
			t.Errorf("Count() = %d, %v, want 4", n, err)
		}
	})
}

func TestExecutePaginationWalk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	// Duplicate timestamps force the id tiebreaker to carry the walk.
	const total = 23
	for i := 0; i < total; i++ {
		dt := fmt.Sprintf("2024-01-%02dT00:00:00Z", i%5+1)
		seedItem(t, s, testItem("c1", fmt.Sprintf("item-%03d", i), 10, 50, dt))
	}

	plan := buildPlan(t, query.PlanInput{Limit: 7})
	seen := make(map[string]bool)
	var seek []any
	pages := 0
	for {
		rows, hasMore, err := s.Execute(ctx, plan, seek)
		if err != nil {
			t.Fatalf("Execute() page %d error = %v", pages, err)
		}
		pages++
		for _, rec := range rows {
			if seen[rec.Item.Id] {
				t.Fatalf("item %s returned twice", rec.Item.Id)
			}
			seen[rec.Item.Id] = true
		}
		if !hasMore {
			if len(rows) == 0 && pages > 1 {
				t.Error("final page empty; probe should have ended the walk earlier")
			}
			break
		}
		if len(rows) != 7 {
			t.Fatalf("full page has %d rows, want 7", len(rows))
		}
		last := rows[len(rows)-1]
		seek = query.SortKey(last.Doc(), plan.Sort)
	}
	if len(seen) != total {
		t.Errorf("walk visited %d items, want %d", len(seen), total)
	}
	if pages != 4 {
		t.Errorf("walk took %d pages, want 4", pages)
	}
}

func TestExecuteContextCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := buildPlan(t, query.PlanInput{})
	if _, _, err := s.Execute(ctx, plan, nil); !catalog.IsKind(err, catalog.KindStoreUnavailable) {
		t.Errorf("Execute() on cancelled context error = %v, want KindStoreUnavailable", err)
	}

	timeoutCtx, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	time.Sleep(time.Millisecond)
	if err := s.Ping(timeoutCtx); err == nil {
		t.Error("Ping() on expired context = nil, want error")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.snap")
	ctx := context.Background()

	s, err := Open(Options{SnapshotPath: path, SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	rec := seedItem(t, s, testItem("c1", "i1", 120, -30, "2024-03-01T00:00:00Z"))
	seedItem(t, s, testItem("c1", "i2", 10, 50, "2024-01-01T00:00:00Z"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	restored, err := Open(Options{SnapshotPath: path, SnapshotInterval: time.Hour})
	if err != nil {
		t.Fatalf("Open() from snapshot error = %v", err)
	}
	defer restored.Close()

	got, err := restored.GetItem(ctx, "c1", "i1")
	if err != nil {
		t.Fatalf("GetItem() after restore error = %v", err)
	}
	if got.Revision != rec.Revision {
		t.Errorf("restored revision = %q, want %q", got.Revision, rec.Revision)
	}
	if !got.Meta.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("restored Meta.Start = %v, want 2024-03-01", got.Meta.Start)
	}

	// Indexes must be rebuilt, not just the maps.
	plan := buildPlan(t, query.PlanInput{BBox: []float64{115, -35, 125, -25}})
	rows, _, err := restored.Execute(ctx, plan, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotIDs(rows) != "i1" {
		t.Errorf("spatial query after restore = %s, want i1", gotIDs(rows))
	}
}

func TestAntimeridianQueryHitsBothSides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollection(ctx, testCollection("c1")); err != nil {
		t.Fatal(err)
	}
	seedItem(t, s, testItem("c1", "west-side", 179, 0, "2024-01-02T00:00:00Z"))
	seedItem(t, s, testItem("c1", "east-side", -179, 0, "2024-01-01T00:00:00Z"))
	seedItem(t, s, testItem("c1", "far-away", 0, 0, "2024-01-03T00:00:00Z"))

	plan := buildPlan(t, query.PlanInput{BBox: []float64{178, -5, -178, 5}})
	rows, _, err := s.Execute(ctx, plan, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotIDs(rows) != "west-side,east-side" {
		t.Errorf("rows = %s, want west-side,east-side", gotIDs(rows))
	}
}

func gotIDs(rows []*store.Record) string {
	out := ""
	for i, rec := range rows {
		if i > 0 {
			out += ","
		}
		out += rec.Item.Id
	}
	return out
}
