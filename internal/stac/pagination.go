package stac

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// MaxInlineTokenSize is the maximum size (in bytes) for inline base64-encoded
// cursor tokens. Larger tokens are stored server-side and referenced by a
// short token so URLs stay within browser and proxy limits.
const MaxInlineTokenSize = 2048

// serverSideTokenPrefix marks tokens that reference server-side storage.
const serverSideTokenPrefix = "ref:"

// Cursor is the continuation state for one search session: the sort-key
// tuple of the last row returned and the fingerprint of the plan that
// produced it. Continuation is a strict seek past the tuple, never an
// offset, so paging stays correct under concurrent inserts and deletes.
type Cursor struct {
	// Key is the last-seen row's sort-key tuple, one value per sort field.
	Key []any `msgpack:"k"`
	// Fingerprint binds the cursor to the filter+sort it was produced
	// under. Presenting the token with a different plan fails rather than
	// silently paging through the wrong result set.
	Fingerprint uint64 `msgpack:"f"`
}

// EncodeCursor serializes a cursor into an opaque token. When the inline
// encoding would exceed MaxInlineTokenSize and a store is available, the
// cursor is stored server-side and referenced instead.
func EncodeCursor(cursor *Cursor, store CursorStore) (string, error) {
	if cursor == nil {
		return "", nil
	}
	data, err := msgpack.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	encoded := base64.URLEncoding.EncodeToString(data)
	if len(encoded) <= MaxInlineTokenSize || store == nil {
		return encoded, nil
	}

	token, err := store.Store(cursor)
	if err != nil {
		// Fall back to the oversized inline token rather than failing the page.
		return encoded, nil
	}
	return serverSideTokenPrefix + token, nil
}

// DecodeCursor resolves a token back into cursor state and verifies it was
// produced under the caller's current plan fingerprint. A mismatch fails with
// CursorMismatch; a garbled token fails with InvalidParameter.
func DecodeCursor(token string, fingerprint uint64, store CursorStore) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	var cursor *Cursor
	if strings.HasPrefix(token, serverSideTokenPrefix) {
		if store == nil {
			return nil, catalog.Errorf(catalog.KindInvalidParameter, "unknown cursor token")
		}
		stored, err := store.Retrieve(strings.TrimPrefix(token, serverSideTokenPrefix))
		if err != nil {
			return nil, catalog.Wrap(catalog.KindInvalidParameter, err, "cursor token")
		}
		cursor = stored
	} else {
		data, err := base64.URLEncoding.DecodeString(token)
		if err != nil {
			return nil, catalog.Wrap(catalog.KindInvalidParameter, err, "malformed cursor token")
		}
		var decoded Cursor
		if err := msgpack.Unmarshal(data, &decoded); err != nil {
			return nil, catalog.Wrap(catalog.KindInvalidParameter, err, "malformed cursor token")
		}
		cursor = &decoded
	}

	if cursor.Fingerprint != fingerprint {
		return nil, catalog.Errorf(catalog.KindCursorMismatch,
			"cursor was produced under a different filter or sort")
	}
	return cursor, nil
}

// NextPageURL rebuilds a request URL carrying the continuation token,
// dropping any token from the previous page's parameters.
func NextPageURL(baseURL string, params url.Values, token string, limit int) string {
	next := url.Values{}
	for key, values := range params {
		if key == "token" {
			continue
		}
		for _, value := range values {
			next.Add(key, value)
		}
	}
	next.Set("token", token)
	if limit > 0 {
		next.Set("limit", strconv.Itoa(limit))
	}
	return baseURL + "?" + next.Encode()
}
