package redis

import (
	"context"
	"strings"

	"github.com/redis/rueidis"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/store"
)

// createItemScript inserts an item when its collection exists and the id is
// free. KEYS[1] item doc, KEYS[2] collection doc, KEYS[3] items set;
// ARGV[1] envelope, ARGV[2] id.
var createItemScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then
  return 'NOCOLL'
end
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'DUP'
end
redis.call('JSON.SET', KEYS[1], '$', ARGV[1])
redis.call('SADD', KEYS[3], ARGV[2])
return 'OK'
`)

// updateItemScript is the optimistic check-and-set: the stored revision must
// equal the expected one for the write to land. Returns the revision that
// was found on conflict so the error can report it.
// KEYS[1] item doc; ARGV[1] envelope, ARGV[2] expected revision.
var updateItemScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'MISSING'
end
local rev = cjson.decode(redis.call('JSON.GET', KEYS[1], '$.rev'))[1]
if rev ~= ARGV[2] then
  return 'CONFLICT:' .. rev
end
redis.call('JSON.SET', KEYS[1], '$', ARGV[1])
return 'OK'
`)

// deleteItemScript removes an item, conditionally on revision when one is
// supplied. KEYS[1] item doc, KEYS[2] items set; ARGV[1] id, ARGV[2]
// expected revision or "".
var deleteItemScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'MISSING'
end
if ARGV[2] ~= '' then
  local rev = cjson.decode(redis.call('JSON.GET', KEYS[1], '$.rev'))[1]
  if rev ~= ARGV[2] then
    return 'CONFLICT:' .. rev
  end
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return 'OK'
`)

// CreateItem inserts an item and assigns its initial revision.
func (s *Store) CreateItem(ctx context.Context, rec *store.Record) error {
	rec.Revision = store.NewRevision()
	data, err := buildEnvelope(rec, s.registry)
	if err != nil {
		return err
	}
	result, err := createItemScript.Exec(ctx, s.client,
		[]string{
			s.itemKey(rec.Item.Collection, rec.Item.Id),
			s.collectionKey(rec.Item.Collection),
			s.itemsSetKey(rec.Item.Collection),
		},
		[]string{string(data), rec.Item.Id},
	).ToString()
	if err != nil {
		return s.translate(ctx, err)
	}
	switch result {
	case "NOCOLL":
		return catalog.Errorf(catalog.KindCollectionNotFound,
			"collection %q not found", rec.Item.Collection)
	case "DUP":
		return catalog.Errorf(catalog.KindDuplicateItem,
			"item %q already exists in collection %q", rec.Item.Id, rec.Item.Collection)
	}
	return nil
}

// GetItem returns one item by (collection, id).
func (s *Store) GetItem(ctx context.Context, collection, id string) (*store.Record, error) {
	// Distinguish a missing item from a missing collection.
	existsCmd := s.client.B().Exists().Key(s.collectionKey(collection)).Build()
	n, err := s.client.Do(ctx, existsCmd).AsInt64()
	if err != nil {
		return nil, s.translate(ctx, err)
	}
	if n == 0 {
		return nil, catalog.Errorf(catalog.KindCollectionNotFound, "collection %q not found", collection)
	}

	cmd := s.client.B().Arbitrary("JSON.GET").Keys(s.itemKey(collection, id)).Build()
	raw, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, catalog.Errorf(catalog.KindNotFound,
				"item %q not found in collection %q", id, collection)
		}
		return nil, s.translate(ctx, err)
	}
	return decodeEnvelope([]byte(raw))
}

// UpdateItem replaces an item when the expected revision matches, atomically
// on the server.
func (s *Store) UpdateItem(ctx context.Context, rec *store.Record, expectedRevision string) error {
	rec.Revision = store.NewRevision()
	data, err := buildEnvelope(rec, s.registry)
	if err != nil {
		return err
	}
	result, err := updateItemScript.Exec(ctx, s.client,
		[]string{s.itemKey(rec.Item.Collection, rec.Item.Id)},
		[]string{string(data), expectedRevision},
	).ToString()
	if err != nil {
		return s.translate(ctx, err)
	}
	switch {
	case result == "MISSING":
		return catalog.Errorf(catalog.KindNotFound,
			"item %q not found in collection %q", rec.Item.Id, rec.Item.Collection)
	case strings.HasPrefix(result, "CONFLICT:"):
		return catalog.Errorf(catalog.KindRevisionConflict,
			"item %q revision mismatch: have %s, expected %s",
			rec.Item.Id, strings.TrimPrefix(result, "CONFLICT:"), expectedRevision)
	}
	return nil
}

// DeleteItem removes an item, conditionally when a revision is supplied.
func (s *Store) DeleteItem(ctx context.Context, collection, id, expectedRevision string) error {
	result, err := deleteItemScript.Exec(ctx, s.client,
		[]string{s.itemKey(collection, id), s.itemsSetKey(collection)},
		[]string{id, expectedRevision},
	).ToString()
	if err != nil {
		return s.translate(ctx, err)
	}
	switch {
	case result == "MISSING":
		return catalog.Errorf(catalog.KindNotFound,
			"item %q not found in collection %q", id, collection)
	case strings.HasPrefix(result, "CONFLICT:"):
		return catalog.Errorf(catalog.KindRevisionConflict,
			"item %q revision mismatch: have %s, expected %s",
			id, strings.TrimPrefix(result, "CONFLICT:"), expectedRevision)
	}
	return nil
}
