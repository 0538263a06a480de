// Package catalog defines the structured error model shared by the query,
// pagination and store layers. Every engine error carries a Kind the
// transport layer can map to a status code deterministically.
package catalog

import (
	"errors"
	"fmt"
)

// Kind identifies a class of engine error.
type Kind string

const (
	// KindInvalidFilterGeometry indicates a malformed spatial filter
	// (out-of-range coordinates, unclosed or self-intersecting rings).
	KindInvalidFilterGeometry Kind = "InvalidFilterGeometry"
	// KindInvalidFilterType indicates an operand/property type mismatch in a
	// property filter.
	KindInvalidFilterType Kind = "InvalidFilterType"
	// KindUnknownProperty indicates a filter or sort referencing a property
	// that is not registered as queryable.
	KindUnknownProperty Kind = "UnknownProperty"
	// KindInvalidPageSize indicates a page size outside the configured bounds.
	KindInvalidPageSize Kind = "InvalidPageSize"
	// KindCursorMismatch indicates a cursor token presented with a different
	// filter or sort than the one it was produced under.
	KindCursorMismatch Kind = "CursorMismatch"
	// KindInvalidParameter indicates a request parameter that failed parsing
	// before reaching the engine.
	KindInvalidParameter Kind = "InvalidParameter"
	// KindInvalidItem indicates an item rejected at write time for reasons
	// other than geometry (blank id, missing temporal attribute).
	KindInvalidItem Kind = "InvalidItem"
	// KindInvalidGeometry indicates an item geometry rejected at write time.
	KindInvalidGeometry Kind = "InvalidGeometry"

	// KindDuplicateCollection indicates a create for an existing collection id.
	KindDuplicateCollection Kind = "DuplicateCollection"
	// KindDuplicateItem indicates a create for an existing (collection, id).
	KindDuplicateItem Kind = "DuplicateItem"
	// KindCollectionNotFound indicates an item operation against a missing
	// parent collection.
	KindCollectionNotFound Kind = "CollectionNotFound"
	// KindCollectionNotEmpty indicates a non-forced delete of a collection
	// that still contains items.
	KindCollectionNotEmpty Kind = "CollectionNotEmpty"
	// KindNotFound indicates a missing collection or item.
	KindNotFound Kind = "NotFound"
	// KindRevisionConflict indicates a conditional write with a stale
	// revision token.
	KindRevisionConflict Kind = "RevisionConflict"
	// KindStoreTimeout indicates a store operation that exceeded its deadline.
	// The outcome of the operation is unknown.
	KindStoreTimeout Kind = "StoreTimeout"
	// KindStoreUnavailable indicates a transient store infrastructure failure.
	KindStoreUnavailable Kind = "StoreUnavailable"
)

// Error is a structured engine error: a Kind plus human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

// Error returns the kind and detail, with any wrapped cause appended.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error of the given kind with a formatted detail message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or "" if err is not a catalog error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err is a catalog error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
