package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tinywideclouds/go-push-gateway/internal/apns"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
)

// maxDeviceTokenLength is the documented upper bound for a stored token;
// anything longer is treated as corrupt and removed.
const maxDeviceTokenLength = 128

// emptyAlertBody is substituted when title, subtitle and body are all empty,
// because APNs rejects alerts with no visible content.
const emptyAlertBody = "Empty Message"

// Pusher is the subset of the APNs client the sender needs. It allows
// mocking for unit tests.
type Pusher interface {
	Send(ctx context.Context, n *apns.Notification) *apns.Response
}

// Outcome is the synchronous result of one delivery attempt.
type Outcome struct {
	Code    int
	Message string
}

// Sent reports caller-visible success.
func (o Outcome) Sent() bool {
	return o.Code == http.StatusOK
}

// BatchItem is the per-alias entry in a batch response.
type BatchItem struct {
	Code      int    `json:"code"`
	DeviceKey string `json:"device_key"`
	Message   string `json:"message,omitempty"`
}

// Sender runs the delivery pipeline: normalize, resolve the device token,
// build the payload, deliver, classify. One attempt per call, no retries.
type Sender struct {
	client       Pusher
	store        dispatch.TokenStore
	maxBatchSize int // non-positive means unlimited
	logger       *slog.Logger
}

func NewSender(client Pusher, store dispatch.TokenStore, maxBatchSize int, logger *slog.Logger) *Sender {
	return &Sender{
		client:       client,
		store:        store,
		maxBatchSize: maxBatchSize,
		logger:       logger.With("component", "Sender"),
	}
}

// Send executes one delivery from a merged parameter map.
func (s *Sender) Send(ctx context.Context, params map[string]any) Outcome {
	msg := FromParams(params)

	if msg.DeviceKey == "" {
		return Outcome{Code: http.StatusBadRequest, Message: "device key is empty"}
	}

	token, err := s.store.Get(ctx, msg.DeviceKey)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			return Outcome{Code: http.StatusBadRequest, Message: "device token not found"}
		}
		return Outcome{Code: http.StatusBadRequest, Message: fmt.Sprintf("failed to get device token: %v", err)}
	}

	if len(token) > maxDeviceTokenLength {
		// The stored record is corrupt. Removing it is best effort; the
		// delivery outcome does not depend on the cleanup succeeding.
		if err := s.store.Delete(ctx, msg.DeviceKey); err != nil {
			s.logger.Warn("failed to remove corrupt device token", "device_key", msg.DeviceKey, "err", err)
		}
		return Outcome{Code: http.StatusBadRequest, Message: "invalid device token, has been removed"}
	}
	msg.DeviceToken = token

	resp := s.client.Send(ctx, s.buildNotification(msg))

	// A gone or rejected token is dead: overwrite the registration with an
	// empty token so the alias survives but stops being deliverable.
	if resp.StatusCode == http.StatusGone ||
		(resp.StatusCode == http.StatusBadRequest && strings.Contains(resp.Reason, "BadDeviceToken")) {
		s.invalidateToken(ctx, msg.DeviceKey)
	}

	if !resp.Sent() {
		message := resp.Reason
		if message == "" {
			message = "push failed"
		}
		return Outcome{Code: resp.StatusCode, Message: message}
	}
	return Outcome{Code: http.StatusOK}
}

// SendBatch fans one request out into independent concurrent deliveries and
// aggregates the per-alias outcomes in input order. A too-large batch is
// rejected wholesale before any delivery is attempted. Per-item failures
// never abort siblings.
func (s *Sender) SendBatch(ctx context.Context, deviceKeys []string, params map[string]any) ([]BatchItem, error) {
	if s.maxBatchSize > 0 && len(deviceKeys) > s.maxBatchSize {
		return nil, fmt.Errorf("batch push count exceeds the maximum limit: %d", s.maxBatchSize)
	}

	results := make([]BatchItem, len(deviceKeys))
	var wg sync.WaitGroup
	for i, key := range deviceKeys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()

			itemParams := make(map[string]any, len(params)+1)
			for k, v := range params {
				itemParams[k] = v
			}
			itemParams["device_key"] = key

			outcome := s.Send(ctx, itemParams)
			results[i] = BatchItem{
				Code:      outcome.Code,
				DeviceKey: key,
				Message:   outcome.Message,
			}
		}(i, key)
	}
	wg.Wait()

	return results, nil
}

func (s *Sender) buildNotification(msg *Message) *apns.Notification {
	var payload *apns.Payload
	pushType := apns.PushTypeAlert
	priority := 10

	if msg.IsDeletePush() {
		payload = apns.BuildSilent(msg.Params)
		pushType = apns.PushTypeBackground
		priority = 5
	} else {
		body := msg.Body
		if msg.IsEmptyAlert() {
			body = emptyAlertBody
		}
		payload = apns.BuildAlert(msg.Title, msg.Subtitle, body, msg.Sound, msg.Params)
	}

	if payload.IsOversize() {
		s.logger.Warn("payload exceeds APNs size bound", "device_key", msg.DeviceKey, "size", payload.Size())
	}

	return &apns.Notification{
		DeviceToken: msg.DeviceToken,
		Payload:     payload,
		Expiration:  time.Now().Add(24 * time.Hour).Unix(),
		PushType:    pushType,
		Priority:    priority,
		CollapseID:  msg.ID,
	}
}

// invalidateToken overwrites the alias with an empty token. Attempt and log,
// never propagate: the original delivery outcome keeps its severity.
func (s *Sender) invalidateToken(ctx context.Context, deviceKey string) {
	if err := s.store.Put(ctx, deviceKey, ""); err != nil {
		s.logger.Warn("failed to invalidate device token", "device_key", deviceKey, "err", err)
	}
}
