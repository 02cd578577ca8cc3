package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexfest/checkin/internal/model"
)

func TestStatusByKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		kind string
		code string
	}{
		{"validation", fmt.Errorf("%w: %q", model.ErrInvalidShortID, "abc"), http.StatusBadRequest, "invalid-format", "INVALID_FORMAT"},
		{"not found", model.ErrEventNotFound, http.StatusNotFound, "not-found", "EVENT_NOT_FOUND"},
		{"conflict", model.ErrQueueFull, http.StatusConflict, "conflict", "QUEUE_FULL"},
		{"unauthenticated", model.ErrInvalidSession, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED"},
		{"forbidden", model.ErrForbidden, http.StatusForbidden, "unauthorized", "FORBIDDEN"},
		{"not owned", model.ErrEventNotOwned, http.StatusForbidden, "unauthorized", "EVENT_NOT_OWNED"},
		{"store", model.StoreFailure(errors.New("dial tcp: refused")), http.StatusInternalServerError, "server-error", "STORE_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "server-error", CodeInternalError},
		{"invalid request", NewInvalidRequestError("bad body"), http.StatusBadRequest, "invalid-format", CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.want, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Error.Kind)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Nil(t, body.Error.RemainingSeconds)
		})
	}
}

func TestStoreErrorSurfacesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, model.StoreFailure(errors.New("dial tcp 10.0.0.5:5432: connection refused")))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "server-error", body.Error.Kind)
	assert.Equal(t, "STORE_ERROR", body.Error.Code)
	assert.Equal(t, "store unavailable: dial tcp 10.0.0.5:5432: connection refused", body.Error.Message)
}

func TestUnknownErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("password authentication failed for user checkin"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestCooldownCarriesWait(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 2, 0, 0, time.UTC)
	next := now.Add(180 * time.Second)

	rec := httptest.NewRecorder()
	WriteError(rec, model.NewCooldownError(next, now))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "180", rec.Header().Get("Retry-After"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cooldown", body.Error.Kind)
	assert.Equal(t, "COOLDOWN", body.Error.Code)
	assert.Equal(t, "You participated in this event recently. Please wait 3 minutes.", body.Error.Message)
	require.NotNil(t, body.Error.RemainingSeconds)
	assert.Equal(t, int64(180), *body.Error.RemainingSeconds)
	require.NotNil(t, body.Error.NextAllowedAt)
	assert.True(t, next.Equal(*body.Error.NextAllowedAt))
}
