// Package redis is the catalog store driver for Redis Stack: items and
// collections live in RedisJSON documents, search runs through a RediSearch
// index built from the queryable registry, and all conditional writes go
// through server-side Lua so check-and-set never races.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/store"
)

// Options configures the redis driver.
type Options struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// Prefix namespaces every key and the search index. Defaults to "stac:".
	Prefix string
	// Registry drives the search index schema. Required.
	Registry *config.QueryableRegistry
	Logger   *slog.Logger
}

// Store implements the catalog store on Redis Stack via rueidis.
type Store struct {
	client   rueidis.Client
	prefix   string
	registry *config.QueryableRegistry
	logger   *slog.Logger
}

// Open connects to Redis and ensures the search index exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("redis: addrs is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("redis: queryable registry is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "stac:"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  opts.Addrs,
		Username:     opts.Username,
		Password:     opts.Password,
		SelectDB:     opts.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("redis: creating client: %w", err)
	}

	s := &Store{
		client:   client,
		prefix:   prefix,
		registry: opts.Registry,
		logger:   logger,
	}
	if err := s.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return s.translate(ctx, err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}

// WaitForReady polls Ping until the store responds or the timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return catalog.Wrap(catalog.KindStoreUnavailable, ctx.Err(), "timed out waiting for redis")
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// --- keys ---

func (s *Store) itemKey(collection, id string) string {
	return s.prefix + "item:" + collection + ":" + id
}

func (s *Store) collectionKey(id string) string {
	return s.prefix + "collection:" + id
}

func (s *Store) collectionsSetKey() string {
	return s.prefix + "collections"
}

func (s *Store) itemsSetKey(collection string) string {
	return s.prefix + "items:" + collection
}

func (s *Store) indexName() string {
	return s.prefix + "idx"
}

// translate maps a rueidis failure onto the catalog error taxonomy.
func (s *Store) translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cerr := store.TranslateContextError(ctx, err); cerr != nil {
		return cerr
	}
	return catalog.Wrap(catalog.KindStoreUnavailable, err, "redis command failed")
}

// isRedisErr reports whether err is a Redis server error containing substr,
// case-insensitively.
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
