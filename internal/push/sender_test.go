package push_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/apns"
	"github.com/tinywideclouds/go-push-gateway/internal/push"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
)

// --- Mocks ---

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

// MockPusher records the notifications it was asked to deliver.
type MockPusher struct {
	mock.Mock

	mu   sync.Mutex
	sent []*apns.Notification
}

func (m *MockPusher) Send(ctx context.Context, n *apns.Notification) *apns.Response {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()

	args := m.Called(ctx, n)
	return args.Get(0).(*apns.Response)
}

func (m *MockPusher) lastSent(t *testing.T) *apns.Notification {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func newTestSender(pusher *MockPusher, store *MockTokenStore, maxBatch int) *push.Sender {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return push.NewSender(pusher, store, maxBatch, logger)
}

// --- Tests ---

func TestSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - alert delivery", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{StatusCode: http.StatusOK})

		sender := newTestSender(pusher, store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA", "body": "hello"})

		assert.True(t, outcome.Sent())
		n := pusher.lastSent(t)
		assert.Equal(t, "tokenA", n.DeviceToken)
		assert.Equal(t, apns.PushTypeAlert, n.PushType)
		assert.Equal(t, 10, n.Priority)
		store.AssertExpectations(t)
	})

	t.Run("Empty alert gets the placeholder body", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{StatusCode: http.StatusOK})

		sender := newTestSender(pusher, store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA"})

		require.True(t, outcome.Sent())
		data, err := pusher.lastSent(t).Payload.MarshalJSON()
		require.NoError(t, err)
		assert.Contains(t, string(data), "Empty Message")
	})

	t.Run("Delete push goes silent and low priority", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{StatusCode: http.StatusOK})

		sender := newTestSender(pusher, store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA", "delete": "1", "id": "m1"})

		require.True(t, outcome.Sent())
		n := pusher.lastSent(t)
		assert.Equal(t, apns.PushTypeBackground, n.PushType)
		assert.Equal(t, 5, n.Priority)
		assert.Equal(t, "m1", n.CollapseID)
		data, err := n.Payload.MarshalJSON()
		require.NoError(t, err)
		assert.Contains(t, string(data), "content-available")
		assert.NotContains(t, string(data), "alert")
	})

	t.Run("Missing device key", func(t *testing.T) {
		sender := newTestSender(new(MockPusher), new(MockTokenStore), 0)
		outcome := sender.Send(ctx, map[string]any{"body": "hello"})

		assert.Equal(t, http.StatusBadRequest, outcome.Code)
		assert.Equal(t, "device key is empty", outcome.Message)
	})

	t.Run("Unknown device key", func(t *testing.T) {
		store := new(MockTokenStore)
		store.On("Get", mock.Anything, "nope").Return("", dispatch.ErrNotFound)

		sender := newTestSender(new(MockPusher), store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "nope"})

		assert.Equal(t, http.StatusBadRequest, outcome.Code)
		assert.Equal(t, "device token not found", outcome.Message)
	})

	t.Run("Store failure surfaces in the message", func(t *testing.T) {
		store := new(MockTokenStore)
		store.On("Get", mock.Anything, "keyA").Return("", errors.New("redis down"))

		sender := newTestSender(new(MockPusher), store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA"})

		assert.Equal(t, http.StatusBadRequest, outcome.Code)
		assert.Contains(t, outcome.Message, "redis down")
	})

	t.Run("Corrupt token is removed best-effort", func(t *testing.T) {
		store := new(MockTokenStore)
		store.On("Get", mock.Anything, "keyA").Return(strings.Repeat("x", 129), nil)
		// Cleanup failure must not change the outcome.
		store.On("Delete", mock.Anything, "keyA").Return(errors.New("delete failed"))

		sender := newTestSender(new(MockPusher), store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA"})

		assert.Equal(t, http.StatusBadRequest, outcome.Code)
		assert.Equal(t, "invalid device token, has been removed", outcome.Message)
		store.AssertExpectations(t)
	})

	t.Run("Gone token is invalidated", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		store.On("Put", mock.Anything, "keyA", "").Return(nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{StatusCode: http.StatusGone, Reason: "Unregistered"})

		sender := newTestSender(pusher, store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA"})

		assert.Equal(t, http.StatusGone, outcome.Code)
		assert.Equal(t, "Unregistered", outcome.Message)
		// The alias is marked dead, never deleted.
		store.AssertCalled(t, "Put", mock.Anything, "keyA", "")
		store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("BadDeviceToken rejection is invalidated", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		store.On("Put", mock.Anything, "keyA", "").Return(nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     `{"reason":"BadDeviceToken"}`,
		})

		sender := newTestSender(pusher, store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA"})

		assert.Equal(t, http.StatusBadRequest, outcome.Code)
		store.AssertCalled(t, "Put", mock.Anything, "keyA", "")
	})

	t.Run("Other rejection leaves the token alone", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{
			StatusCode: http.StatusTooManyRequests,
			Reason:     "TooManyRequests",
		})

		sender := newTestSender(pusher, store, 0)
		outcome := sender.Send(ctx, map[string]any{"device_key": "keyA"})

		assert.Equal(t, http.StatusTooManyRequests, outcome.Code)
		store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSender_SendBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Fan-out preserves input order and isolates failures", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, "keyA").Return("tokenA", nil)
		store.On("Get", mock.Anything, "keyB").Return("", dispatch.ErrNotFound)
		store.On("Get", mock.Anything, "keyC").Return("tokenC", nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{StatusCode: http.StatusOK})

		sender := newTestSender(pusher, store, 0)
		results, err := sender.SendBatch(ctx, []string{"keyA", "keyB", "keyC"}, map[string]any{"body": "hello"})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "keyA", results[0].DeviceKey)
		assert.Equal(t, http.StatusOK, results[0].Code)

		assert.Equal(t, "keyB", results[1].DeviceKey)
		assert.Equal(t, http.StatusBadRequest, results[1].Code)
		assert.Equal(t, "device token not found", results[1].Message)

		assert.Equal(t, "keyC", results[2].DeviceKey)
		assert.Equal(t, http.StatusOK, results[2].Code)
	})

	t.Run("Oversized batch rejected wholesale", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)

		sender := newTestSender(pusher, store, 5)
		keys := []string{"a", "b", "c", "d", "e", "f"}
		_, err := sender.SendBatch(ctx, keys, nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum limit: 5")
		store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("Non-positive limit means unlimited", func(t *testing.T) {
		store := new(MockTokenStore)
		pusher := new(MockPusher)
		store.On("Get", mock.Anything, mock.Anything).Return("token", nil)
		pusher.On("Send", mock.Anything, mock.Anything).Return(&apns.Response{StatusCode: http.StatusOK})

		sender := newTestSender(pusher, store, -1)
		keys := make([]string, 20)
		for i := range keys {
			keys[i] = "key"
		}
		results, err := sender.SendBatch(ctx, keys, nil)
		require.NoError(t, err)
		assert.Len(t, results, 20)
	})
}
