// Package api provides the HTTP surface of the catalog service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// STACError is the wire shape of an error response.
type STACError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// WriteJSON writes a JSON response with the given status code and value.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// WriteGeoJSON writes a GeoJSON response; these use application/geo+json.
func WriteGeoJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode GeoJSON response",
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// WriteError writes a STAC-compliant error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	errResp := STACError{
		Code:        code,
		Description: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "BadRequest", message)
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "NotFound", message)
}

// WriteCatalogError maps an error from the engine or store onto its HTTP
// status and writes it.
func WriteCatalogError(w http.ResponseWriter, err error) {
	kind := catalog.KindOf(err)
	WriteError(w, statusForKind(kind), string(kind), err.Error())
}

// statusForKind maps the catalog error taxonomy onto HTTP statuses.
func statusForKind(kind catalog.Kind) int {
	switch kind {
	case catalog.KindInvalidFilterGeometry,
		catalog.KindInvalidFilterType,
		catalog.KindUnknownProperty,
		catalog.KindInvalidPageSize,
		catalog.KindCursorMismatch,
		catalog.KindInvalidParameter,
		catalog.KindInvalidItem,
		catalog.KindInvalidGeometry:
		return http.StatusBadRequest
	case catalog.KindNotFound,
		catalog.KindCollectionNotFound:
		return http.StatusNotFound
	case catalog.KindDuplicateCollection,
		catalog.KindDuplicateItem,
		catalog.KindCollectionNotEmpty:
		return http.StatusConflict
	case catalog.KindRevisionConflict:
		return http.StatusPreconditionFailed
	case catalog.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case catalog.KindStoreTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
