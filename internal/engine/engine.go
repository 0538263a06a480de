// Package engine orchestrates catalog operations: it turns validated search
// requests into query plans, executes them against the configured store,
// assembles result pages with continuation tokens, and fronts the store's
// transactional item and collection operations.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/metrics"
	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Options configures an Engine.
type Options struct {
	Store    store.Store
	Registry *config.QueryableRegistry
	// Cursors backs continuation tokens too large to inline.
	Cursors      stac.CursorStore
	DefaultLimit int
	MaxLimit     int
	Logger       *slog.Logger
}

// Engine is the catalog's query and persistence front.
type Engine struct {
	store    store.Store
	planner  *query.Planner
	registry *config.QueryableRegistry
	cursors  stac.CursorStore
	logger   *slog.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    opts.Store,
		planner:  query.NewPlanner(opts.Registry, opts.DefaultLimit, opts.MaxLimit),
		registry: opts.Registry,
		cursors:  opts.Cursors,
		logger:   logger,
	}
}

// Registry exposes the queryable registry for schema rendering.
func (e *Engine) Registry() *config.QueryableRegistry {
	return e.registry
}

// SearchResult is one page of search results.
type SearchResult struct {
	Items []*stac.Item
	// NextToken continues the walk; empty on the final page.
	NextToken string
	// Matched is the total match count, present only when requested.
	Matched *int
	// Limit is the validated page size the plan ran with.
	Limit int
}

// Search executes one page of a search. The continuation token is only
// honored when its fingerprint matches the plan built from this request;
// changing any parameter besides the token invalidates the cursor.
func (e *Engine) Search(ctx context.Context, req *stac.SearchRequest) (*SearchResult, error) {
	started := time.Now()
	result, err := e.search(ctx, req)

	status := "ok"
	if err != nil {
		status = string(catalog.KindOf(err))
	}
	metrics.SearchDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	if result != nil {
		metrics.SearchResultsReturned.Observe(float64(len(result.Items)))
	}
	return result, err
}

func (e *Engine) search(ctx context.Context, req *stac.SearchRequest) (*SearchResult, error) {
	if err := stac.ValidateSearchRequest(req); err != nil {
		return nil, err
	}

	in := query.PlanInput{
		Collections: req.Collections,
		IDs:         req.IDs,
		BBox:        req.BBox,
		Datetime:    req.DateTime,
		Filter:      req.Filter,
		Sort:        req.SortSpecs(),
		Limit:       req.Limit,
	}
	if len(req.Intersects) > 0 {
		var g geojson.Geometry
		if err := json.Unmarshal(req.Intersects, &g); err != nil {
			return nil, catalog.Wrap(catalog.KindInvalidFilterGeometry, err, "intersects is not a GeoJSON geometry")
		}
		in.Intersects = &g
	}

	plan, err := e.planner.Build(in)
	if err != nil {
		return nil, err
	}
	fingerprint := plan.Fingerprint()

	var seek []any
	if req.Token != "" {
		cursor, err := stac.DecodeCursor(req.Token, fingerprint, e.cursors)
		if err != nil {
			return nil, err
		}
		seek = cursor.Key
	}

	execStart := time.Now()
	rows, hasMore, err := e.store.Execute(ctx, plan, seek)
	metrics.ObserveStoreOp("execute", execStart, errKind(err))
	if err != nil {
		return nil, err
	}

	items := make([]*stac.Item, 0, len(rows))
	for _, rec := range rows {
		items = append(items, rec.Item)
	}

	result := &SearchResult{Items: items, Limit: plan.Limit}

	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		token, err := stac.EncodeCursor(&stac.Cursor{
			Key:         query.SortKey(last.Doc(), plan.Sort),
			Fingerprint: fingerprint,
		}, e.cursors)
		if err != nil {
			return nil, err
		}
		result.NextToken = token
	}

	if req.Count {
		countStart := time.Now()
		n, err := e.matchCount(ctx, plan)
		metrics.ObserveStoreOp("count", countStart, errKind(err))
		if err != nil {
			return nil, err
		}
		result.Matched = &n
	}

	e.logger.Debug("search executed",
		"plan", plan.String(),
		"returned", len(items),
		"hasMore", hasMore,
		"duration", time.Since(execStart))
	return result, nil
}

// matchCount resolves the opt-in total. A plan that matches everything in one
// collection is answered by the membership count instead of a full count
// query; an unknown collection matches nothing.
func (e *Engine) matchCount(ctx context.Context, plan *query.Plan) (int, error) {
	if plan.Filter == nil && len(plan.IDs) == 0 && len(plan.Collections) == 1 {
		n, err := e.store.CollectionItemCount(ctx, plan.Collections[0])
		if catalog.IsKind(err, catalog.KindNotFound) {
			return 0, nil
		}
		return n, err
	}
	return e.store.Count(ctx, plan)
}

// --- Collections ---

func (e *Engine) CreateCollection(ctx context.Context, collection *stac.Collection) error {
	if collection.Id == "" {
		return catalog.Errorf(catalog.KindInvalidItem, "collection id is required")
	}
	return e.observed("create_collection", func() error {
		return e.store.CreateCollection(ctx, collection)
	})
}

func (e *Engine) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	return e.store.GetCollection(ctx, id)
}

func (e *Engine) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	return e.store.ListCollections(ctx)
}

func (e *Engine) UpdateCollection(ctx context.Context, collection *stac.Collection) error {
	if collection.Id == "" {
		return catalog.Errorf(catalog.KindInvalidItem, "collection id is required")
	}
	return e.observed("update_collection", func() error {
		return e.store.UpdateCollection(ctx, collection)
	})
}

func (e *Engine) DeleteCollection(ctx context.Context, id string, force bool) error {
	return e.observed("delete_collection", func() error {
		return e.store.DeleteCollection(ctx, id, force)
	})
}

// --- Items ---

// CreateItem normalizes and inserts one item. The item's collection field
// must name an existing collection.
func (e *Engine) CreateItem(ctx context.Context, item *stac.Item) (*store.Record, error) {
	rec, err := store.NewRecord(item)
	if err != nil {
		return nil, err
	}
	err = e.observed("create_item", func() error {
		return e.store.CreateItem(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateItems inserts a batch, stopping at the first failure. Returns the
// records created so far alongside any error.
func (e *Engine) CreateItems(ctx context.Context, items []*stac.Item) ([]*store.Record, error) {
	recs := make([]*store.Record, 0, len(items))
	for _, item := range items {
		rec, err := e.CreateItem(ctx, item)
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (e *Engine) GetItem(ctx context.Context, collection, id string) (*store.Record, error) {
	return e.store.GetItem(ctx, collection, id)
}

// UpdateItem replaces an item under optimistic concurrency: the write only
// lands when expectedRevision matches the stored revision.
func (e *Engine) UpdateItem(ctx context.Context, item *stac.Item, expectedRevision string) (*store.Record, error) {
	rec, err := store.NewRecord(item)
	if err != nil {
		return nil, err
	}
	err = e.observed("update_item", func() error {
		return e.store.UpdateItem(ctx, rec, expectedRevision)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteItem removes an item; with a non-empty expectedRevision the delete
// is conditional.
func (e *Engine) DeleteItem(ctx context.Context, collection, id, expectedRevision string) error {
	return e.observed("delete_item", func() error {
		return e.store.DeleteItem(ctx, collection, id, expectedRevision)
	})
}

// Healthy reports store reachability.
func (e *Engine) Healthy(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) observed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveStoreOp(op, start, errKind(err))
	return err
}

func errKind(err error) string {
	if err == nil {
		return ""
	}
	return string(catalog.KindOf(err))
}
