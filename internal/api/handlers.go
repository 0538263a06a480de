package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/engine"
	"github.com/rkm/stac-catalog/internal/stac"
)

// Handlers contains all HTTP handlers for the catalog API.
type Handlers struct {
	cfg    *config.Config
	engine *engine.Engine
	logger *slog.Logger
}

// NewHandlers creates a Handlers instance with the given dependencies.
func NewHandlers(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:    cfg,
		engine: eng,
		logger: logger,
	}
}

// queryContext bounds a store-touching request by the configured query
// timeout.
func (h *Handlers) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.cfg.Store.QueryTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), h.cfg.Store.QueryTimeout)
}

// LandingPage returns the root catalog document.
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.Catalog.BaseURL

	landing := stac.NewLandingPage(
		"stac-catalog-root",
		h.cfg.Catalog.Title,
		h.cfg.Catalog.Description,
		h.cfg.Catalog.Version,
		stac.DefaultConformance(),
	)

	landing.AddLink("self", baseURL+"/", "application/json")
	landing.AddLink("root", baseURL+"/", "application/json")
	landing.AddLink("conformance", baseURL+"/conformance", "application/json")
	landing.AddLink("data", baseURL+"/collections", "application/json")

	for _, method := range []string{"GET", "POST"} {
		landing.Links = append(landing.Links, &stac.Link{
			Rel:    "search",
			Href:   baseURL + "/search",
			Type:   "application/geo+json",
			Method: method,
		})
	}
	landing.AddLink("http://www.opengis.net/def/rel/ogc/1.0/queryables",
		baseURL+"/queryables", "application/schema+json")

	WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes this API implements.
// GET /conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &stac.Conformance{
		ConformsTo: stac.DefaultConformance(),
	})
}

// Collections lists all collections.
// GET /collections
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	collections, err := h.engine.ListCollections(ctx)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}

	baseURL := h.cfg.Catalog.BaseURL
	for _, collection := range collections {
		h.decorateCollection(collection, baseURL)
	}

	response := stac.NewCollectionsList(collections)
	response.Links = append(response.Links,
		&stac.Link{Rel: "self", Href: baseURL + "/collections", Type: "application/json"},
		&stac.Link{Rel: "root", Href: baseURL + "/", Type: "application/json"},
	)
	WriteJSON(w, http.StatusOK, response)
}

// Collection returns one collection.
// GET /collections/{collectionId}
func (h *Handlers) Collection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	id := chi.URLParam(r, "collectionId")
	collection, err := h.engine.GetCollection(ctx, id)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	h.decorateCollection(collection, h.cfg.Catalog.BaseURL)
	WriteJSON(w, http.StatusOK, collection)
}

// CreateCollection registers a new collection.
// POST /collections
func (h *Handlers) CreateCollection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	var collection stac.Collection
	if err := decodeBody(r.Body, &collection); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if err := h.engine.CreateCollection(ctx, &collection); err != nil {
		WriteCatalogError(w, err)
		return
	}

	w.Header().Set("Location", h.cfg.Catalog.BaseURL+"/collections/"+collection.Id)
	WriteJSON(w, http.StatusCreated, &collection)
}

// UpdateCollection replaces a collection's document. The path id wins over
// any id in the body.
// PUT /collections/{collectionId}
func (h *Handlers) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	var collection stac.Collection
	if err := decodeBody(r.Body, &collection); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	collection.Id = chi.URLParam(r, "collectionId")

	if err := h.engine.UpdateCollection(ctx, &collection); err != nil {
		WriteCatalogError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, &collection)
}

// DeleteCollection removes a collection. "?force=true" cascades over any
// remaining items; without it a non-empty collection is a conflict.
// DELETE /collections/{collectionId}
func (h *Handlers) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteBadRequest(w, "force must be a boolean")
			return
		}
		force = parsed
	}

	if err := h.engine.DeleteCollection(ctx, chi.URLParam(r, "collectionId"), force); err != nil {
		WriteCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Items lists a collection's items with the same pagination contract as
// search, scoped to the collection.
// GET /collections/{collectionId}/items
func (h *Handlers) Items(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	collectionID := chi.URLParam(r, "collectionId")
	if _, err := h.engine.GetCollection(ctx, collectionID); err != nil {
		WriteCatalogError(w, err)
		return
	}

	req, err := stac.ParseSearchRequest(r)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	req.Collections = []string{collectionID}

	result, err := h.engine.Search(ctx, req)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}

	itemsURL := h.cfg.Catalog.BaseURL + "/collections/" + collectionID + "/items"
	h.writeItemPage(w, req, result, itemsURL)
}

// Item returns one item. The response carries the item's revision as a
// strong ETag for conditional writes.
// GET /collections/{collectionId}/items/{itemId}
func (h *Handlers) Item(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	rec, err := h.engine.GetItem(ctx, chi.URLParam(r, "collectionId"), chi.URLParam(r, "itemId"))
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	w.Header().Set("ETag", etag(rec.Revision))
	WriteGeoJSON(w, http.StatusOK, rec.Item)
}

// CreateItem inserts items into a collection. The body is either a single
// Feature or a FeatureCollection for bulk loads; either way every item is
// normalized and validated before it lands.
// POST /collections/{collectionId}/items
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	collectionID := chi.URLParam(r, "collectionId")
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		WriteBadRequest(w, "reading request body: "+err.Error())
		return
	}

	items, bulk, err := decodeItemsBody(body)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	for _, item := range items {
		if item.Collection == "" {
			item.Collection = collectionID
		}
		if item.Collection != collectionID {
			WriteCatalogError(w, catalog.Errorf(catalog.KindInvalidItem,
				"item %q targets collection %q, not %q", item.Id, item.Collection, collectionID))
			return
		}
	}

	recs, err := h.engine.CreateItems(ctx, items)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}

	if !bulk && len(recs) == 1 {
		rec := recs[0]
		w.Header().Set("ETag", etag(rec.Revision))
		w.Header().Set("Location",
			h.cfg.Catalog.BaseURL+"/collections/"+collectionID+"/items/"+rec.Item.Id)
		WriteGeoJSON(w, http.StatusCreated, rec.Item)
		return
	}

	created := make([]*stac.Item, 0, len(recs))
	for _, rec := range recs {
		created = append(created, rec.Item)
	}
	WriteGeoJSON(w, http.StatusCreated, stac.NewItemCollection(created))
}

// UpdateItem replaces an item. An If-Match header makes the write
// conditional on the item's current revision; without one the update is
// last-write-wins against whatever revision is current.
// PUT /collections/{collectionId}/items/{itemId}
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	collectionID := chi.URLParam(r, "collectionId")
	itemID := chi.URLParam(r, "itemId")

	var item stac.Item
	if err := decodeBody(r.Body, &item); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	item.Id = itemID
	if item.Collection == "" {
		item.Collection = collectionID
	}
	if item.Collection != collectionID {
		WriteCatalogError(w, catalog.Errorf(catalog.KindInvalidItem,
			"item targets collection %q, not %q", item.Collection, collectionID))
		return
	}

	expected := revisionFromETag(r.Header.Get("If-Match"))
	if expected == "" {
		current, err := h.engine.GetItem(ctx, collectionID, itemID)
		if err != nil {
			WriteCatalogError(w, err)
			return
		}
		expected = current.Revision
	}

	rec, err := h.engine.UpdateItem(ctx, &item, expected)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	w.Header().Set("ETag", etag(rec.Revision))
	WriteGeoJSON(w, http.StatusOK, rec.Item)
}

// DeleteItem removes an item; an If-Match header makes it conditional.
// DELETE /collections/{collectionId}/items/{itemId}
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	err := h.engine.DeleteItem(ctx,
		chi.URLParam(r, "collectionId"),
		chi.URLParam(r, "itemId"),
		revisionFromETag(r.Header.Get("If-Match")))
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search executes an item search.
// GET /search
// POST /search
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	var req *stac.SearchRequest
	var err error
	if r.Method == http.MethodPost {
		req, err = stac.ParseSearchRequestBody(r.Body)
	} else {
		req, err = stac.ParseSearchRequest(r)
	}
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.engine.Search(ctx, req)
	if err != nil {
		WriteCatalogError(w, err)
		return
	}
	h.writeItemPage(w, req, result, h.cfg.Catalog.BaseURL+"/search")
}

// writeItemPage assembles one page of items: features, context metadata, and
// the next link when the walk continues.
func (h *Handlers) writeItemPage(w http.ResponseWriter, req *stac.SearchRequest, result *engine.SearchResult, pageURL string) {
	ic := stac.NewItemCollection(result.Items)
	ic.SetContext(len(result.Items), result.Limit, result.Matched)
	ic.AddLink("root", h.cfg.Catalog.BaseURL+"/", "application/json")

	if result.NextToken != "" {
		next := stac.NextPageURL(pageURL, req.ToQueryParams(), result.NextToken, result.Limit)
		ic.AddLink("next", next, "application/geo+json")
	}
	WriteGeoJSON(w, http.StatusOK, ic)
}

// Queryables publishes the filterable properties as a JSON Schema document.
// GET /queryables
// GET /collections/{collectionId}/queryables
func (h *Handlers) Queryables(w http.ResponseWriter, r *http.Request) {
	id := h.cfg.Catalog.BaseURL + "/queryables"
	if collectionID := chi.URLParam(r, "collectionId"); collectionID != "" {
		ctx, cancel := h.queryContext(r)
		defer cancel()
		if _, err := h.engine.GetCollection(ctx, collectionID); err != nil {
			WriteCatalogError(w, err)
			return
		}
		id = h.cfg.Catalog.BaseURL + "/collections/" + collectionID + "/queryables"
	}

	schema := h.engine.Registry().JSONSchema(id)
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(schema); err != nil {
		h.logger.Error("failed to encode queryables", "error", err)
	}
}

// Health reports liveness and store reachability.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := h.engine.Healthy(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, map[string]string{"status": status})
}

// decorateCollection attaches the standard navigation links.
func (h *Handlers) decorateCollection(collection *stac.Collection, baseURL string) {
	self := baseURL + "/collections/" + collection.Id
	for _, link := range collection.Links {
		if link.Rel == "self" {
			return
		}
	}
	collection.Links = append(collection.Links,
		&stac.Link{Rel: "self", Href: self, Type: "application/json"},
		&stac.Link{Rel: "root", Href: baseURL + "/", Type: "application/json"},
		&stac.Link{Rel: "items", Href: self + "/items", Type: "application/geo+json"},
	)
}

// decodeItemsBody accepts either a single GeoJSON Feature or a
// FeatureCollection of items.
func decodeItemsBody(body []byte) (items []*stac.Item, bulk bool, err error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, false, err
	}

	if probe.Type == "FeatureCollection" {
		var fc struct {
			Features []*stac.Item `json:"features"`
		}
		if err := json.Unmarshal(body, &fc); err != nil {
			return nil, true, err
		}
		return fc.Features, true, nil
	}

	var item stac.Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, false, err
	}
	return []*stac.Item{&item}, false, nil
}

func decodeBody(body io.Reader, v any) error {
	return json.NewDecoder(io.LimitReader(body, 64<<20)).Decode(v)
}

func etag(revision string) string {
	return `"` + revision + `"`
}

// revisionFromETag strips the quoting (and any weak prefix) from an If-Match
// value.
func revisionFromETag(header string) string {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "W/")
	return strings.Trim(header, `"`)
}
