package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/rollup/internal/models"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// Error codes returned alongside domain failures
const (
	CodeNotFound           = "not_found"
	CodeAmbiguousKey       = "ambiguous_key"
	CodeMalformedHierarchy = "malformed_hierarchy"
	CodeSnapshotExists     = "snapshot_exists"
	CodeInvalidRequest     = "invalid_request"
	CodeQueueFull          = "queue_full"
	CodeRollupInvariant    = "rollup_invariant"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteErrorWithCode writes a JSON error response with an error code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteDomainError maps service errors onto HTTP statuses.
func WriteDomainError(w http.ResponseWriter, err error) {
	var malformed *models.MalformedHierarchyError
	switch {
	case errors.As(err, &malformed):
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     err.Error(),
			Code:      CodeMalformedHierarchy,
			Conflicts: malformed.Conflicts,
		})
	case models.IsNotFound(err):
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, models.ErrAmbiguousKey):
		WriteErrorWithCode(w, http.StatusConflict, err.Error(), CodeAmbiguousKey)
	case errors.Is(err, models.ErrSnapshotExists):
		WriteErrorWithCode(w, http.StatusConflict, err.Error(), CodeSnapshotExists)
	case errors.Is(err, models.ErrInvalidJobRequest), errors.Is(err, models.ErrInvalidPosition):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), CodeInvalidRequest)
	case errors.Is(err, models.ErrQueueFull):
		WriteErrorWithCode(w, http.StatusServiceUnavailable, err.Error(), CodeQueueFull)
	case errors.Is(err, models.ErrRollupInvariant):
		WriteErrorWithCode(w, http.StatusInternalServerError, err.Error(), CodeRollupInvariant)
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// PathParam extracts a path parameter from the URL path.
// For a pattern like /api/positions/{date}, calling PathParam(r, "/api/positions/", "")
// extracts the {date} part.
func PathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		idx := strings.Index(rest, suffix)
		if idx < 0 {
			return rest
		}
		return rest[:idx]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
