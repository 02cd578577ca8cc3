package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/apexfest/checkin/internal/api/apierr"
)

// maxLimit caps list sizes requested through ?limit=
const maxLimit = 100

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// decode reads a JSON body into v, writing a 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return false
	}
	return true
}

// limitParam parses ?limit=, defaulting to def and capping at maxLimit
func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, NewInvalidRequestError("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}
