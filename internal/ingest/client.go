// Package ingest pulls items from a remote STAC API or local files so they
// can be loaded into the catalog store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rkm/stac-catalog/internal/stac"
)

// Client handles communication with a remote STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new STAC API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// FetchCollection retrieves a single collection by id.
func (c *Client) FetchCollection(ctx context.Context, id string) (*stac.Collection, error) {
	var coll stac.Collection
	if err := c.get(ctx, c.baseURL+"/collections/"+url.PathEscape(id), &coll); err != nil {
		return nil, fmt.Errorf("failed to fetch collection %s: %w", id, err)
	}
	return &coll, nil
}

// Harvest walks the items of a remote collection page by page, invoking fn
// for each item. It follows rel=next links until the remote runs out of
// pages or fn returns an error. The total number of items seen is returned.
func (c *Client) Harvest(ctx context.Context, collectionID string, pageSize int, fn func(*stac.Item) error) (int, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	pageURL := c.baseURL + "/collections/" + url.PathEscape(collectionID) +
		"/items?limit=" + strconv.Itoa(pageSize)

	total := 0
	for pageURL != "" {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		c.logger.DebugContext(ctx, "fetching items page",
			slog.String("collection", collectionID),
			slog.String("url", pageURL),
		)

		var page stac.ItemCollection
		if err := c.get(ctx, pageURL, &page); err != nil {
			return total, fmt.Errorf("failed to fetch items page: %w", err)
		}

		for _, item := range page.Features {
			if item == nil {
				continue
			}
			if err := fn(item); err != nil {
				return total, err
			}
			total++
		}

		pageURL = nextLink(page.Links)
	}

	c.logger.InfoContext(ctx, "harvest completed",
		slog.String("collection", collectionID),
		slog.Int("item_count", total),
	)
	return total, nil
}

// nextLink returns the href of the rel=next link, or "" when there is none.
func nextLink(links []*stac.Link) string {
	for _, l := range links {
		if l != nil && l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stac-catalog-loader/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "remote STAC request failed",
			slog.String("error", err.Error()),
			slog.String("url", rawURL),
		)
		return fmt.Errorf("remote STAC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "remote STAC returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return fmt.Errorf("remote STAC returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode remote response: %w", err)
	}
	return nil
}
