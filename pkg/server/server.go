// Package server provides a public API for embedding the STAC catalog.
package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rkm/stac-catalog/internal/api"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/engine"
	"github.com/rkm/stac-catalog/internal/stac"
	"github.com/rkm/stac-catalog/internal/store/memory"
)

// Options configures an embedded catalog server. The embedded server always
// runs on the in-memory store; applications that need Redis should wire the
// store and engine directly.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://api.example.com/catalog" or "http://localhost:8080"
	BaseURL string

	// Title is the catalog title.
	// Default: "STAC Catalog"
	Title string

	// Description is the catalog description.
	// Default: "Geospatial catalog query and persistence service"
	Description string

	// DefaultLimit is the default number of items per page.
	// Default: 10
	DefaultLimit int

	// MaxLimit is the maximum number of items per page.
	// Default: 10000
	MaxLimit int

	// QueryTimeout bounds each store-touching request.
	// Default: 10s
	QueryTimeout time.Duration

	// CursorTTL is how long oversized continuation tokens stay valid.
	// Default: 1h
	CursorTTL time.Duration

	// SnapshotPath enables snapshot persistence of the in-memory store.
	// Default: "" (no persistence)
	SnapshotPath string

	// SnapshotInterval is how often the background snapshot runs.
	// Default: 5m
	SnapshotInterval time.Duration

	// Queryables overrides the default queryable registry.
	// Default: config.DefaultQueryables()
	Queryables *config.QueryableRegistry

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a catalog server that can be embedded in another application.
type Server struct {
	router      chi.Router
	engine      *engine.Engine
	store       *memory.Store
	cursorStore *stac.MemoryCursorStore
}

// New creates a new embedded catalog server with the given options.
func New(opts Options) (*Server, error) {
	// Apply defaults
	if opts.Title == "" {
		opts.Title = "STAC Catalog"
	}
	if opts.Description == "" {
		opts.Description = "Geospatial catalog query and persistence service"
	}
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit == 0 {
		opts.MaxLimit = 10000
	}
	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 10 * time.Second
	}
	if opts.CursorTTL == 0 {
		opts.CursorTTL = 1 * time.Hour
	}
	if opts.Queryables == nil {
		opts.Queryables = config.DefaultQueryables()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Build internal config
	cfg := &config.Config{
		Store: config.StoreConfig{
			Driver:       "memory",
			QueryTimeout: opts.QueryTimeout,
		},
		Catalog: config.CatalogConfig{
			Version:     "1.0.0",
			BaseURL:     opts.BaseURL,
			Title:       opts.Title,
			Description: opts.Description,
		},
		Search: config.SearchConfig{
			DefaultLimit: opts.DefaultLimit,
			MaxLimit:     opts.MaxLimit,
			CursorTTL:    opts.CursorTTL,
		},
	}

	st, err := memory.Open(memory.Options{
		SnapshotPath:     opts.SnapshotPath,
		SnapshotInterval: opts.SnapshotInterval,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	cursorStore := stac.NewMemoryCursorStore(opts.CursorTTL, 5*time.Minute)

	eng := engine.New(engine.Options{
		Store:        st,
		Registry:     opts.Queryables,
		Cursors:      cursorStore,
		DefaultLimit: opts.DefaultLimit,
		MaxLimit:     opts.MaxLimit,
		Logger:       opts.Logger,
	})

	handlers := api.NewHandlers(cfg, eng, opts.Logger)
	router := api.NewRouter(handlers, opts.Logger)

	return &Server{
		router:      router,
		engine:      eng,
		store:       st,
		cursorStore: cursorStore,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Engine exposes the catalog engine for direct (non-HTTP) access, for
// example to preload collections and items before serving.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Close stops background goroutines and flushes a final snapshot when
// snapshot persistence is enabled.
func (s *Server) Close() error {
	if s.cursorStore != nil {
		s.cursorStore.Stop()
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
