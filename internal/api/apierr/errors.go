package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/apexfest/checkin/internal/model"
)

// APIError represents an API error response. Kind is the coarse category
// (invalid-format, not-found, cooldown, conflict, unauthorized, server-error)
// and Code the specific reason. Cooldown errors also carry the wait so
// clients can show a countdown.
type APIError struct {
	Kind             string     `json:"kind"`
	Code             string     `json:"code"`
	Message          string     `json:"message"`
	RemainingSeconds *int64     `json:"remaining_seconds,omitempty"`
	NextAllowedAt    *time.Time `json:"next_allowed_at,omitempty"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Codes that do not come from model errors
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInternalError  = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	if he.apiError.RemainingSeconds != nil {
		w.Header().Set("Retry-After", strconv.FormatInt(*he.apiError.RemainingSeconds, 10))
	}
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status WriteError would use for err
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError maps an error's kind to a status and body
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	var cooldown *model.CooldownError
	if errors.As(err, &cooldown) {
		remaining := cooldown.RemainingSeconds
		next := cooldown.NextAllowedAt
		return &httpError{http.StatusTooManyRequests, APIError{
			Kind:             model.CategoryCooldown,
			Code:             model.ErrCooldown.Code,
			Message:          cooldown.UserMessage(),
			RemainingSeconds: &remaining,
			NextAllowedAt:    &next,
		}}
	}

	kind := model.KindOf(err)
	body := APIError{Kind: kind.Category(), Code: model.CodeOf(err), Message: err.Error()}
	switch kind {
	case model.KindValidation:
		return &httpError{http.StatusBadRequest, body}
	case model.KindNotFound:
		return &httpError{http.StatusNotFound, body}
	case model.KindConflict:
		return &httpError{http.StatusConflict, body}
	case model.KindAuth:
		status := http.StatusUnauthorized
		if errors.Is(err, model.ErrForbidden) || errors.Is(err, model.ErrEventNotOwned) {
			status = http.StatusForbidden
		}
		return &httpError{status, body}
	case model.KindStore:
		// store failures reach the operator verbatim, cause included
		return &httpError{http.StatusInternalServerError, body}
	default:
		return &httpError{http.StatusInternalServerError, APIError{Kind: model.CategoryServerError, Code: CodeInternalError, Message: "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{Kind: model.CategoryInvalidFormat, Code: CodeInvalidRequest, Message: message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{Kind: model.CategoryUnauthorized, Code: CodeUnauthorized, Message: "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{Kind: model.CategoryServerError, Code: CodeInternalError, Message: "Internal server error"}}
}
