package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
)

func TestInfoAPI_HandlePing(t *testing.T) {
	handler := api.NewInfoAPI(new(MockTokenStore), testLogger())
	rec := httptest.NewRecorder()

	handler.HandlePing(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeEnvelope(t, rec).Message)
}

func TestInfoAPI_HandleHealthz(t *testing.T) {
	handler := api.NewInfoAPI(new(MockTokenStore), testLogger())
	rec := httptest.NewRecorder()

	handler.HandleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestInfoAPI_HandleInfo(t *testing.T) {
	t.Run("Reports version and device count", func(t *testing.T) {
		store := new(MockTokenStore)
		store.On("Count", mock.Anything).Return(42, nil)

		handler := api.NewInfoAPI(store, testLogger())
		rec := httptest.NewRecorder()
		handler.HandleInfo(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, api.Version, body["version"])
		assert.Equal(t, float64(42), body["devices"])
		assert.NotEmpty(t, body["arch"])
		assert.NotEmpty(t, body["commit"])
	})

	t.Run("Count failure reports zero", func(t *testing.T) {
		store := new(MockTokenStore)
		store.On("Count", mock.Anything).Return(0, assert.AnError)

		handler := api.NewInfoAPI(store, testLogger())
		rec := httptest.NewRecorder()
		handler.HandleInfo(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, float64(0), body["devices"])
	})
}
