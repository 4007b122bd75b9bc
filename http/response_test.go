package http_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/galexite/guildsync"
	guildhttp "github.com/galexite/guildsync/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"not found", guildsync.ErrNotFound, http.StatusNotFound, `"error":"not_found"`},
		{"wrapped not found", fmt.Errorf("mirror get events.json: %w", guildsync.ErrNotFound), http.StatusNotFound, `"error":"not_found"`},
		{"joined not found", errors.Join(errors.New("context"), guildsync.ErrNotFound), http.StatusNotFound, `"error":"not_found"`},
		{"unknown resource", guildsync.ErrUnknownResource, http.StatusNotFound, `"error":"not_found"`},
		{"invalid input", guildsync.ErrInvalidInput, http.StatusBadRequest, `"error":"invalid_request"`},
		{"unauthorized", fmt.Errorf("%w: signature mismatch", guildsync.ErrUnauthorized), http.StatusUnauthorized, "signature mismatch"},
		{"internal", errors.New("some unexpected error"), http.StatusInternalServerError, `"error":"internal_error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			guildhttp.HandleError(rec, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestHandleError_HidesInternalDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	guildhttp.HandleError(rec, errors.New("dial tcp 10.0.0.7:5432: connection refused"))

	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	guildhttp.WriteError(rec, http.StatusBadRequest, "bad_request", "Invalid request")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"bad_request","message":"Invalid request"}`, rec.Body.String())
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := guildhttp.WriteJSON(rec, http.StatusOK, map[string]string{"key": "value"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"key":"value"}`, rec.Body.String())

	// Channels cannot be JSON encoded
	err = guildhttp.WriteJSON(httptest.NewRecorder(), http.StatusOK, make(chan int))
	assert.Error(t, err)
}
