package stac

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := &Cursor{
		Key:         []any{int64(1704067200000000000), "item-042"},
		Fingerprint: 0xdeadbeef,
	}

	token, err := EncodeCursor(cursor, nil)
	if err != nil {
		t.Fatalf("EncodeCursor() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if strings.HasPrefix(token, serverSideTokenPrefix) {
		t.Fatalf("small cursor should encode inline, got %q", token)
	}

	decoded, err := DecodeCursor(token, 0xdeadbeef, nil)
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if len(decoded.Key) != 2 {
		t.Fatalf("expected 2 key components, got %d", len(decoded.Key))
	}
	if decoded.Key[1] != "item-042" {
		t.Errorf("expected id component item-042, got %v", decoded.Key[1])
	}
	if decoded.Fingerprint != cursor.Fingerprint {
		t.Errorf("fingerprint changed across round trip: %x != %x",
			decoded.Fingerprint, cursor.Fingerprint)
	}
}

func TestDecodeCursorEmptyToken(t *testing.T) {
	cursor, err := DecodeCursor("", 123, nil)
	if err != nil {
		t.Fatalf("DecodeCursor(\"\") error = %v", err)
	}
	if cursor != nil {
		t.Errorf("expected nil cursor for empty token, got %+v", cursor)
	}
}

func TestDecodeCursorFingerprintMismatch(t *testing.T) {
	token, err := EncodeCursor(&Cursor{Key: []any{"a"}, Fingerprint: 1}, nil)
	if err != nil {
		t.Fatalf("EncodeCursor() error = %v", err)
	}

	_, err = DecodeCursor(token, 2, nil)
	if !catalog.IsKind(err, catalog.KindCursorMismatch) {
		t.Errorf("expected CursorMismatch, got %v", err)
	}
}

func TestDecodeCursorMalformedToken(t *testing.T) {
	for _, token := range []string{
		"not base64 at all!!!",
		"aGVsbG8=", // valid base64, not msgpack cursor state
	} {
		_, err := DecodeCursor(token, 0, nil)
		if !catalog.IsKind(err, catalog.KindInvalidParameter) {
			t.Errorf("DecodeCursor(%q): expected InvalidParameter, got %v", token, err)
		}
	}
}

func TestEncodeCursorOversizedUsesStore(t *testing.T) {
	store := NewMemoryCursorStore(time.Minute, time.Minute)
	defer store.Stop()

	// A key with thousands of components blows past the inline limit.
	key := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		key = append(key, "a-reasonably-long-sort-key-component")
	}
	cursor := &Cursor{Key: key, Fingerprint: 7}

	token, err := EncodeCursor(cursor, store)
	if err != nil {
		t.Fatalf("EncodeCursor() error = %v", err)
	}
	if !strings.HasPrefix(token, serverSideTokenPrefix) {
		t.Fatalf("oversized cursor should use server-side storage, got %d-byte token", len(token))
	}
	if len(token) > MaxInlineTokenSize {
		t.Errorf("reference token still oversized: %d bytes", len(token))
	}

	decoded, err := DecodeCursor(token, 7, store)
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if len(decoded.Key) != len(key) {
		t.Errorf("expected %d key components, got %d", len(key), len(decoded.Key))
	}
}

func TestEncodeCursorOversizedWithoutStoreFallsBack(t *testing.T) {
	key := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		key = append(key, "a-reasonably-long-sort-key-component")
	}

	token, err := EncodeCursor(&Cursor{Key: key, Fingerprint: 7}, nil)
	if err != nil {
		t.Fatalf("EncodeCursor() error = %v", err)
	}
	// No store to reference, so the inline encoding is all we have.
	if strings.HasPrefix(token, serverSideTokenPrefix) {
		t.Fatal("no store available, token must stay inline")
	}
	if _, err := DecodeCursor(token, 7, nil); err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
}

func TestDecodeCursorUnknownReference(t *testing.T) {
	store := NewMemoryCursorStore(time.Minute, time.Minute)
	defer store.Stop()

	_, err := DecodeCursor("ref:no-such-token", 0, store)
	if !catalog.IsKind(err, catalog.KindInvalidParameter) {
		t.Errorf("expected InvalidParameter for unknown reference, got %v", err)
	}

	_, err = DecodeCursor("ref:whatever", 0, nil)
	if !catalog.IsKind(err, catalog.KindInvalidParameter) {
		t.Errorf("expected InvalidParameter without a store, got %v", err)
	}
}

func TestMemoryCursorStoreExpiry(t *testing.T) {
	store := NewMemoryCursorStore(10*time.Millisecond, time.Hour)
	defer store.Stop()

	token, err := store.Store(&Cursor{Key: []any{"x"}, Fingerprint: 1})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if _, err := store.Retrieve(token); err != nil {
		t.Fatalf("Retrieve() before expiry error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := store.Retrieve(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestMemoryCursorStoreDelete(t *testing.T) {
	store := NewMemoryCursorStore(time.Minute, time.Hour)
	defer store.Stop()

	token, err := store.Store(&Cursor{Key: []any{"x"}, Fingerprint: 1})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := store.Delete(token); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Retrieve(token); err == nil {
		t.Error("expected deleted token to be rejected")
	}
}

func TestNextPageURL(t *testing.T) {
	params := url.Values{}
	params.Set("bbox", "-10,35,30,60")
	params.Set("token", "stale-token-from-previous-page")

	href := NextPageURL("http://example.com/search", params, "fresh-token", 25)

	parsed, err := url.Parse(href)
	if err != nil {
		t.Fatalf("NextPageURL produced unparseable URL: %v", err)
	}
	q := parsed.Query()
	if got := q.Get("token"); got != "fresh-token" {
		t.Errorf("expected fresh token, got %q", got)
	}
	if got := q.Get("bbox"); got != "-10,35,30,60" {
		t.Errorf("bbox parameter lost: %q", got)
	}
	if got := q.Get("limit"); got != "25" {
		t.Errorf("expected limit=25, got %q", got)
	}
	if len(q["token"]) != 1 {
		t.Errorf("expected exactly one token parameter, got %d", len(q["token"]))
	}
}
