// Script to compare memory and redis driver results for identical queries.
// Seeds both stores with the same synthetic items, runs a fixed battery of
// plans against each, and reports mismatches. Requires a Redis Stack
// instance (default localhost:6379).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
	"github.com/rkm/stac-catalog/internal/store/memory"
	"github.com/rkm/stac-catalog/internal/store/redis"
)

func main() {
	var (
		redisAddr = flag.String("redis", "localhost:6379", "redis address")
		prefix    = flag.String("prefix", "cmp:", "redis key prefix (namespace for this run)")
		count     = flag.Int("count", 500, "synthetic items to seed")
	)
	flag.Parse()

	if err := run(*redisAddr, *prefix, *count); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(redisAddr, prefix string, count int) error {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	registry := config.DefaultQueryables()

	mem, err := memory.Open(memory.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer mem.Close()

	red, err := redis.Open(ctx, redis.Options{
		Addrs:    []string{redisAddr},
		Prefix:   prefix,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer red.Close()
	if err := red.WaitForReady(ctx, 10*time.Second); err != nil {
		return err
	}

	fmt.Printf("=== Driver Comparison: memory vs redis (%s) ===\n", redisAddr)
	fmt.Printf("Seeding %d items across 2 collections...\n\n", count)

	if err := seed(ctx, mem, red, count); err != nil {
		return err
	}

	planner := query.NewPlanner(registry, 10, 10000)
	battery := []struct {
		name  string
		input query.PlanInput
	}{
		{"all items", query.PlanInput{Limit: 10000}},
		{"one collection", query.PlanInput{Collections: []string{"alpha"}, Limit: 10000}},
		{"bbox europe", query.PlanInput{BBox: []float64{-10, 35, 30, 60}, Limit: 10000}},
		{"datetime window", query.PlanInput{Datetime: "2024-02-01T00:00:00Z/2024-04-01T00:00:00Z", Limit: 10000}},
		{"cloud cover filter", query.PlanInput{
			Filter: map[string]any{
				"op":   "<",
				"args": []any{map[string]any{"property": "eo:cloud_cover"}, 30.0},
			},
			Limit: 10000,
		}},
		{"sorted by cloud cover", query.PlanInput{
			Sort:  []query.SortSpec{{Field: "eo:cloud_cover", Descending: false}},
			Limit: 10000,
		}},
		{"paged walk", query.PlanInput{Limit: 7}},
	}

	failures := 0
	for _, tc := range battery {
		plan, err := planner.Build(tc.input)
		if err != nil {
			return fmt.Errorf("planning %q: %w", tc.name, err)
		}

		memIDs, err := drain(ctx, mem, plan)
		if err != nil {
			return fmt.Errorf("memory %q: %w", tc.name, err)
		}
		redIDs, err := drain(ctx, red, plan)
		if err != nil {
			return fmt.Errorf("redis %q: %w", tc.name, err)
		}

		if equal(memIDs, redIDs) {
			fmt.Printf("✓ %-22s %d items\n", tc.name, len(memIDs))
		} else {
			failures++
			fmt.Printf("✗ %-22s memory=%d redis=%d\n", tc.name, len(memIDs), len(redIDs))
			fmt.Printf("    memory: %s\n", preview(memIDs))
			fmt.Printf("    redis:  %s\n", preview(redIDs))
		}
	}

	fmt.Println()
	if failures > 0 {
		return fmt.Errorf("%d of %d queries disagreed", failures, len(battery))
	}
	fmt.Println("All queries agree.")
	return nil
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func preview(ids []string) string {
	if len(ids) > 8 {
		ids = ids[:8]
	}
	return strings.Join(ids, ",")
}

// drain walks a plan to exhaustion via seek pagination, returning item ids
// in result order.
func drain(ctx context.Context, st store.Store, plan *query.Plan) ([]string, error) {
	var ids []string
	var seek []any
	for {
		rows, hasMore, err := st.Execute(ctx, plan, seek)
		if err != nil {
			return nil, err
		}
		for _, rec := range rows {
			ids = append(ids, rec.Item.Id)
		}
		if !hasMore || len(rows) == 0 {
			return ids, nil
		}
		seek = query.SortKey(rows[len(rows)-1].Doc(), plan.Sort)
	}
}

func seed(ctx context.Context, mem *memory.Store, red *redis.Store, count int) error {
	collections := []string{"alpha", "beta"}
	for _, id := range collections {
		coll := &stac.Collection{Id: id, Description: "comparison seed"}
		for _, st := range []store.Store{mem, red} {
			if err := st.CreateCollection(ctx, coll); err != nil {
				return fmt.Errorf("creating collection %s: %w", id, err)
			}
		}
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		item := &stac.Item{
			Id:         fmt.Sprintf("item-%05d", i),
			Collection: collections[i%len(collections)],
			Geometry: map[string]any{
				"type":        "Point",
				"coordinates": []any{float64(i%72)*5 - 180, float64(i%36)*5 - 90},
			},
			Properties: map[string]any{
				"datetime":       base.Add(time.Duration(i) * 7 * time.Hour).Format(time.RFC3339),
				"eo:cloud_cover": float64(i % 101),
				"platform":       fmt.Sprintf("sat-%d", i%3),
			},
		}
		// Each store gets its own record so revisions stay independent.
		for _, st := range []store.Store{mem, red} {
			rec, err := store.NewRecord(item)
			if err != nil {
				return fmt.Errorf("building item %d: %w", i, err)
			}
			if err := st.CreateItem(ctx, rec); err != nil {
				return fmt.Errorf("inserting item %d: %w", i, err)
			}
		}
	}
	return nil
}
