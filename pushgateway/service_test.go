package pushgateway_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pushgateway"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Get(ctx context.Context, deviceKey string) (string, error) {
	args := m.Called(ctx, deviceKey)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) Put(ctx context.Context, deviceKey, token string) error {
	args := m.Called(ctx, deviceKey, token)
	return args.Error(0)
}

func (m *MockTokenStore) Delete(ctx context.Context, deviceKey string) error {
	args := m.Called(ctx, deviceKey)
	return args.Error(0)
}

func (m *MockTokenStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newTestService(t *testing.T, cfg *config.Config, store *MockTokenStore) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store.On("Count", mock.Anything).Return(0, nil).Maybe()

	svc, err := pushgateway.New(cfg, store, logger)
	require.NoError(t, err)
	return svc.Handler()
}

func baseConfig() *config.Config {
	return &config.Config{
		ListenAddr: ":0",
		APNS: config.APNSConfig{
			Topic:      config.DefaultTopic,
			KeyID:      config.DefaultKeyID,
			TeamID:     config.DefaultTeamID,
			PrivateKey: config.DefaultPrivateKey,
		},
		StorageType: config.StorageRedis,
		Redis:       config.RedisConfig{Addr: "localhost:6379"},
	}
}

func TestService_Routes(t *testing.T) {
	t.Run("Health probes stay open with auth configured", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Auth = config.AuthConfig{User: "admin", Password: "secret"}
		handler := newTestService(t, cfg, new(MockTokenStore))

		for _, path := range []string{"/ping", "/healthz"} {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
		}
	})

	t.Run("Gated endpoints require credentials", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Auth = config.AuthConfig{User: "admin", Password: "secret"}
		handler := newTestService(t, cfg, new(MockTokenStore))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/info", nil)
		req.SetBasicAuth("admin", "secret")
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Gate stays open without credentials configured", func(t *testing.T) {
		handler := newTestService(t, baseConfig(), new(MockTokenStore))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("V1 route reaches the delivery pipeline", func(t *testing.T) {
		store := new(MockTokenStore)
		store.On("Get", mock.Anything, "someKey").Return("", dispatch.ErrNotFound)
		handler := newTestService(t, baseConfig(), store)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/someKey/hello", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		store.AssertExpectations(t)
	})

	t.Run("V1 routes accept only GET and POST", func(t *testing.T) {
		store := new(MockTokenStore)
		handler := newTestService(t, baseConfig(), store)

		for _, method := range []string{http.MethodDelete, http.MethodPut, http.MethodPatch} {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(method, "/someKey/hello", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "method %s", method)
		}
		store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}
