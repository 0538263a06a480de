// Package store defines the catalog persistence contract. Drivers own
// persisted Collections and Items, execute planned queries, and enforce
// per-item optimistic concurrency without engine-level locks.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/query"
	"github.com/rkm/stac-catalog/internal/stac"
)

// Record is a stored item together with its revision token and derived index
// metadata. The revision changes on every successful mutation; a write
// carrying a stale revision is rejected with RevisionConflict.
type Record struct {
	Item     *stac.Item
	Revision string
	Meta     *stac.ItemMeta
}

// NewRecord normalizes an item into a storable record. The revision is
// assigned by the driver on create.
func NewRecord(item *stac.Item) (*Record, error) {
	meta, err := stac.NormalizeItem(item)
	if err != nil {
		return nil, err
	}
	return &Record{Item: item, Meta: meta}, nil
}

// Doc returns the evaluator's view of the record.
func (r *Record) Doc() *query.Doc {
	return &query.Doc{
		ID:         r.Item.Id,
		Collection: r.Item.Collection,
		Properties: r.Item.Properties,
		Geometry:   r.Meta.Geometry,
		BBox:       r.Meta.BBox,
		Start:      r.Meta.Start,
		End:        r.Meta.End,
	}
}

// Store is the catalog store contract. Every call takes a context whose
// cancellation or deadline aborts the in-flight operation; deadline expiry
// surfaces as StoreTimeout, distinct from NotFound and RevisionConflict, so
// callers can tell "definitely no conflict" from "unknown outcome".
type Store interface {
	// CreateCollection fails with DuplicateCollection if the id exists.
	CreateCollection(ctx context.Context, collection *stac.Collection) error
	// GetCollection fails with NotFound if the id is unknown.
	GetCollection(ctx context.Context, id string) (*stac.Collection, error)
	// ListCollections returns all collections ordered by id.
	ListCollections(ctx context.Context) ([]*stac.Collection, error)
	// UpdateCollection replaces mutable fields; the id is immutable.
	UpdateCollection(ctx context.Context, collection *stac.Collection) error
	// DeleteCollection fails with CollectionNotEmpty unless force is set,
	// in which case contained items are removed with the collection in one
	// atomic operation.
	DeleteCollection(ctx context.Context, id string, force bool) error
	// CollectionItemCount returns the number of items in a collection.
	CollectionItemCount(ctx context.Context, id string) (int, error)

	// CreateItem fails with DuplicateItem if (collection, id) exists and
	// CollectionNotFound if the parent is missing. It assigns the initial
	// revision to the record.
	CreateItem(ctx context.Context, rec *Record) error
	// GetItem fails with NotFound if the item is absent.
	GetItem(ctx context.Context, collection, id string) (*Record, error)
	// UpdateItem replaces the item if the current revision equals
	// expectedRevision, as a single atomic check-and-set. On success the
	// record carries a fresh revision distinct from the prior one.
	UpdateItem(ctx context.Context, rec *Record, expectedRevision string) error
	// DeleteItem removes the item. A non-empty expectedRevision makes the
	// delete conditional (RevisionConflict on mismatch); empty deletes
	// unconditionally.
	DeleteItem(ctx context.Context, collection, id, expectedRevision string) error

	// Execute runs a plan from the given seek position (nil for the first
	// page). It returns at most plan.Limit rows in plan sort order, each
	// satisfying every predicate fragment, and reports whether a strictly
	// subsequent matching row exists. Drivers probe one extra row for
	// hasMore rather than trusting row-count heuristics.
	Execute(ctx context.Context, plan *query.Plan, seek []any) (rows []*Record, hasMore bool, err error)
	// Count runs the plan's match count as a separate query.
	Count(ctx context.Context, plan *query.Plan) (int, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases driver resources.
	Close() error
}

// NewRevision generates a fresh revision token.
func NewRevision() string {
	return uuid.NewString()
}

// TranslateContextError maps context failures onto the store error taxonomy.
// Returns nil when err carries no context failure.
func TranslateContextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return catalog.Wrap(catalog.KindStoreTimeout, err, "store operation exceeded deadline")
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return catalog.Wrap(catalog.KindStoreUnavailable, err, "store operation canceled")
	}
	return nil
}
