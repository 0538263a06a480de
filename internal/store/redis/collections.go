package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/rueidis"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/stac"
)

// createCollectionScript registers a collection unless it already exists.
// KEYS[1] collection doc, KEYS[2] collections set; ARGV[1] doc, ARGV[2] id.
var createCollectionScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'DUP'
end
redis.call('JSON.SET', KEYS[1], '$', ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 'OK'
`)

// deleteCollectionScript removes a collection, refusing when items remain
// unless forced; a forced delete cascades over the membership set so the
// whole removal is one atomic server-side step.
// KEYS[1] collection doc, KEYS[2] collections set, KEYS[3] items set;
// ARGV[1] id, ARGV[2] "force"|"", ARGV[3] item key prefix.
var deleteCollectionScript = rueidis.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'MISSING'
end
local count = redis.call('SCARD', KEYS[3])
if count > 0 and ARGV[2] ~= 'force' then
  return 'NOTEMPTY:' .. count
end
if count > 0 then
  local ids = redis.call('SMEMBERS', KEYS[3])
  for _, id in ipairs(ids) do
    redis.call('DEL', ARGV[3] .. id)
  end
end
redis.call('DEL', KEYS[3])
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
return 'OK'
`)

// CreateCollection registers a new collection.
func (s *Store) CreateCollection(ctx context.Context, collection *stac.Collection) error {
	data, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("encoding collection %q: %w", collection.Id, err)
	}
	result, err := createCollectionScript.Exec(ctx, s.client,
		[]string{s.collectionKey(collection.Id), s.collectionsSetKey()},
		[]string{string(data), collection.Id},
	).ToString()
	if err != nil {
		return s.translate(ctx, err)
	}
	if result == "DUP" {
		return catalog.Errorf(catalog.KindDuplicateCollection, "collection %q already exists", collection.Id)
	}
	return nil
}

// GetCollection returns a collection by id.
func (s *Store) GetCollection(ctx context.Context, id string) (*stac.Collection, error) {
	cmd := s.client.B().Arbitrary("JSON.GET").Keys(s.collectionKey(id)).Args("$").Build()
	raw, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, catalog.Errorf(catalog.KindNotFound, "collection %q not found", id)
		}
		return nil, s.translate(ctx, err)
	}
	return decodeCollection([]byte(raw))
}

// ListCollections returns all collections ordered by id.
func (s *Store) ListCollections(ctx context.Context) ([]*stac.Collection, error) {
	cmd := s.client.B().Smembers().Key(s.collectionsSetKey()).Build()
	ids, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, s.translate(ctx, err)
	}
	sort.Strings(ids)

	out := make([]*stac.Collection, 0, len(ids))
	for _, id := range ids {
		collection, err := s.GetCollection(ctx, id)
		if err != nil {
			if catalog.IsKind(err, catalog.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, collection)
	}
	return out, nil
}

// UpdateCollection replaces an existing collection document. JSON.SET XX
// only writes when the key already exists.
func (s *Store) UpdateCollection(ctx context.Context, collection *stac.Collection) error {
	data, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("encoding collection %q: %w", collection.Id, err)
	}
	cmd := s.client.B().Arbitrary("JSON.SET").
		Keys(s.collectionKey(collection.Id)).
		Args("$", string(data), "XX").Build()
	raw, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return catalog.Errorf(catalog.KindNotFound, "collection %q not found", collection.Id)
		}
		return s.translate(ctx, err)
	}
	if raw == "" {
		return catalog.Errorf(catalog.KindNotFound, "collection %q not found", collection.Id)
	}
	return nil
}

// DeleteCollection removes a collection, cascading its items when forced.
func (s *Store) DeleteCollection(ctx context.Context, id string, force bool) error {
	forceArg := ""
	if force {
		forceArg = "force"
	}
	result, err := deleteCollectionScript.Exec(ctx, s.client,
		[]string{s.collectionKey(id), s.collectionsSetKey(), s.itemsSetKey(id)},
		[]string{id, forceArg, s.prefix + "item:" + id + ":"},
	).ToString()
	if err != nil {
		return s.translate(ctx, err)
	}
	switch {
	case result == "MISSING":
		return catalog.Errorf(catalog.KindNotFound, "collection %q not found", id)
	case len(result) > 9 && result[:9] == "NOTEMPTY:":
		return catalog.Errorf(catalog.KindCollectionNotEmpty,
			"collection %q still contains %s items", id, result[9:])
	}
	return nil
}

// CollectionItemCount returns the cardinality of a collection's item set.
func (s *Store) CollectionItemCount(ctx context.Context, id string) (int, error) {
	if _, err := s.GetCollection(ctx, id); err != nil {
		return 0, err
	}
	cmd := s.client.B().Scard().Key(s.itemsSetKey(id)).Build()
	n, err := s.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, s.translate(ctx, err)
	}
	return int(n), nil
}

// decodeCollection parses a JSON.GET "$" response, which wraps the document
// in a one-element array.
func decodeCollection(data []byte) (*stac.Collection, error) {
	var docs []*stac.Collection
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decoding collection: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("decoding collection: empty response")
	}
	return docs[0], nil
}
