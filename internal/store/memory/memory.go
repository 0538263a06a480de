// Package memory is the embedded catalog store driver: collections and items
// in process memory behind an RWMutex, with secondary indexes for temporal
// and spatial candidate pruning and optional snapshot persistence.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store"
)

// ctxCheckStride is how many rows a scan examines between context checks.
const ctxCheckStride = 1024

// Options configures the memory driver.
type Options struct {
	// SnapshotPath enables snapshot persistence when non-empty.
	SnapshotPath string
	// SnapshotInterval is how often the background snapshot runs.
	SnapshotInterval time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the in-memory catalog store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collectionState

	snapshotPath string
	logger       *slog.Logger
	stopSnapshot chan struct{}
	snapshotDone chan struct{}
}

// collectionState holds one collection's metadata, items and indexes.
type collectionState struct {
	meta  *stac.Collection
	items map[string]*store.Record
	// byStart orders items by (start nanos, id) for temporal pruning.
	byStart []itemRef
	// grid maps coarse lon/lat cells to the ids of items whose envelope
	// touches the cell, for spatial candidate pruning.
	grid map[gridCell]map[string]struct{}
}

type itemRef struct {
	start int64
	id    string
}

// Open creates a memory store, loading a snapshot when one is configured and
// present, and starts the background snapshot loop.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		collections:  make(map[string]*collectionState),
		snapshotPath: opts.SnapshotPath,
		logger:       logger,
		stopSnapshot: make(chan struct{}),
		snapshotDone: make(chan struct{}),
	}

	if opts.SnapshotPath != "" {
		if err := s.loadSnapshot(opts.SnapshotPath); err != nil {
			return nil, err
		}
		interval := opts.SnapshotInterval
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go s.snapshotLoop(interval)
	} else {
		close(s.snapshotDone)
	}

	return s, nil
}

// Ping always succeeds for the embedded driver.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close stops the snapshot loop and writes a final snapshot.
func (s *Store) Close() error {
	if s.snapshotPath == "" {
		return nil
	}
	close(s.stopSnapshot)
	<-s.snapshotDone
	return s.writeSnapshot()
}

// --- Collections ---

// CreateCollection registers a new collection.
func (s *Store) CreateCollection(ctx context.Context, collection *stac.Collection) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[collection.Id]; exists {
		return catalog.Errorf(catalog.KindDuplicateCollection, "collection %q already exists", collection.Id)
	}
	s.collections[collection.Id] = newCollectionState(collection)
	return nil
}

// GetCollection returns a collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.collections[id]
	if !ok {
		return nil, catalog.Errorf(catalog.KindNotFound, "collection %q not found", id)
	}
	return state.meta, nil
}

// ListCollections returns all collections ordered by id.
func (s *Store) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.collections))
	for id := range s.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*stac.Collection, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.collections[id].meta)
	}
	return out, nil
}

// UpdateCollection replaces a collection's mutable fields.
func (s *Store) UpdateCollection(ctx context.Context, collection *stac.Collection) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.collections[collection.Id]
	if !ok {
		return catalog.Errorf(catalog.KindNotFound, "collection %q not found", collection.Id)
	}
	state.meta = collection
	return nil
}

// DeleteCollection removes a collection. Without force it fails when items
// remain; with force the items cascade inside the same critical section.
func (s *Store) DeleteCollection(ctx context.Context, id string, force bool) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.collections[id]
	if !ok {
		return catalog.Errorf(catalog.KindNotFound, "collection %q not found", id)
	}
	if len(state.items) > 0 && !force {
		return catalog.Errorf(catalog.KindCollectionNotEmpty,
			"collection %q still contains %d items", id, len(state.items))
	}
	delete(s.collections, id)
	return nil
}

// CollectionItemCount returns the number of items in a collection.
func (s *Store) CollectionItemCount(ctx context.Context, id string) (int, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.collections[id]
	if !ok {
		return 0, catalog.Errorf(catalog.KindNotFound, "collection %q not found", id)
	}
	return len(state.items), nil
}

// --- Items ---

// CreateItem inserts an item and assigns its initial revision.
func (s *Store) CreateItem(ctx context.Context, rec *Record) error {
	return s.createItem(ctx, rec)
}

// Record aliases the store record type for driver call sites.
type Record = store.Record

func (s *Store) createItem(ctx context.Context, rec *Record) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.collections[rec.Item.Collection]
	if !ok {
		return catalog.Errorf(catalog.KindCollectionNotFound,
			"collection %q not found", rec.Item.Collection)
	}
	if _, exists := state.items[rec.Item.Id]; exists {
		return catalog.Errorf(catalog.KindDuplicateItem,
			"item %q already exists in collection %q", rec.Item.Id, rec.Item.Collection)
	}

	rec.Revision = store.NewRevision()
	state.insert(rec)
	return nil
}

// GetItem returns one item by (collection, id).
func (s *Store) GetItem(ctx context.Context, collection, id string) (*Record, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.collections[collection]
	if !ok {
		return nil, catalog.Errorf(catalog.KindCollectionNotFound, "collection %q not found", collection)
	}
	rec, ok := state.items[id]
	if !ok {
		return nil, catalog.Errorf(catalog.KindNotFound,
			"item %q not found in collection %q", id, collection)
	}
	return rec, nil
}

// UpdateItem replaces an item when the expected revision matches the current
// one. The check-and-set happens under one lock acquisition, so no lock is
// held between a caller's read and its conditional write.
func (s *Store) UpdateItem(ctx context.Context, rec *Record, expectedRevision string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.collections[rec.Item.Collection]
	if !ok {
		return catalog.Errorf(catalog.KindCollectionNotFound,
			"collection %q not found", rec.Item.Collection)
	}
	current, ok := state.items[rec.Item.Id]
	if !ok {
		return catalog.Errorf(catalog.KindNotFound,
			"item %q not found in collection %q", rec.Item.Id, rec.Item.Collection)
	}
	if current.Revision != expectedRevision {
		return catalog.Errorf(catalog.KindRevisionConflict,
			"item %q revision mismatch: have %s, expected %s",
			rec.Item.Id, current.Revision, expectedRevision)
	}

	state.remove(current)
	rec.Revision = store.NewRevision()
	state.insert(rec)
	return nil
}

// DeleteItem removes an item, conditionally when a revision is supplied.
func (s *Store) DeleteItem(ctx context.Context, collection, id, expectedRevision string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.collections[collection]
	if !ok {
		return catalog.Errorf(catalog.KindCollectionNotFound, "collection %q not found", collection)
	}
	rec, ok := state.items[id]
	if !ok {
		return catalog.Errorf(catalog.KindNotFound,
			"item %q not found in collection %q", id, collection)
	}
	if expectedRevision != "" && rec.Revision != expectedRevision {
		return catalog.Errorf(catalog.KindRevisionConflict,
			"item %q revision mismatch: have %s, expected %s", id, rec.Revision, expectedRevision)
	}

	state.remove(rec)
	return nil
}

// --- Search ---

// Execute runs a plan: candidate selection via the narrowest applicable
// index, exact predicate evaluation per row, comparator sort, seek filter,
// and a one-row probe beyond the page for hasMore.
func (s *Store) Execute(ctx context.Context, plan *query.Plan, seek []any) ([]*Record, bool, error) {
	matches, err := s.matchingRecords(ctx, plan)
	if err != nil {
		return nil, false, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return query.CompareKeys(matches[i].key, matches[j].key, plan.Sort) < 0
	})

	rows := make([]*Record, 0, plan.Limit)
	hasMore := false
	for _, m := range matches {
		if seek != nil && query.CompareKeys(m.key, seek, plan.Sort) <= 0 {
			continue
		}
		if len(rows) == plan.Limit {
			hasMore = true
			break
		}
		rows = append(rows, m.rec)
	}
	return rows, hasMore, nil
}

// Count evaluates the plan's full match count.
func (s *Store) Count(ctx context.Context, plan *query.Plan) (int, error) {
	matches, err := s.matchingRecords(ctx, plan)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

type match struct {
	rec *Record
	key []any
}

func (s *Store) matchingRecords(ctx context.Context, plan *query.Plan) ([]match, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope, err := s.scopedCollections(plan)
	if err != nil {
		return nil, err
	}

	var idFilter map[string]struct{}
	if len(plan.IDs) > 0 {
		idFilter = make(map[string]struct{}, len(plan.IDs))
		for _, id := range plan.IDs {
			idFilter[id] = struct{}{}
		}
	}

	var matches []match
	scanned := 0
	for _, state := range scope {
		for _, rec := range state.candidates(plan.Filter) {
			scanned++
			if scanned%ctxCheckStride == 0 {
				if err := checkCtx(ctx); err != nil {
					return nil, err
				}
			}
			if idFilter != nil {
				if _, ok := idFilter[rec.Item.Id]; !ok {
					continue
				}
			}
			doc := rec.Doc()
			if !query.Matches(plan.Filter, doc) {
				continue
			}
			matches = append(matches, match{rec: rec, key: query.SortKey(doc, plan.Sort)})
		}
	}
	return matches, nil
}

// scopedCollections resolves the plan's collection scope; empty means all.
// Unknown scoped collections simply contribute nothing, matching the search
// contract (scoping filters, it does not assert existence).
func (s *Store) scopedCollections(plan *query.Plan) ([]*collectionState, error) {
	if len(plan.Collections) == 0 {
		out := make([]*collectionState, 0, len(s.collections))
		for _, state := range s.collections {
			out = append(out, state)
		}
		return out, nil
	}
	out := make([]*collectionState, 0, len(plan.Collections))
	for _, id := range plan.Collections {
		if state, ok := s.collections[id]; ok {
			out = append(out, state)
		}
	}
	return out, nil
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return store.TranslateContextError(ctx, err)
	}
	return nil
}
