// Package api exposes the gateway's HTTP surface: push (V1 positional and V2
// JSON routes), device registration, and diagnostics.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tinywideclouds/go-push-gateway/internal/push"
	"github.com/tinywideclouds/go-push-gateway/pkg/response"
)

// Dispatcher is the subset of the push sender the handlers need. It allows
// mocking for unit tests.
type Dispatcher interface {
	Send(ctx context.Context, params map[string]any) push.Outcome
	SendBatch(ctx context.Context, deviceKeys []string, params map[string]any) ([]push.BatchItem, error)
}

type PushAPI struct {
	Sender Dispatcher
	Logger *slog.Logger
}

func NewPushAPI(sender Dispatcher, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Sender: sender,
		Logger: logger.With("component", "PushAPI"),
	}
}

// HandlePushV2 serves POST /push: a single delivery, or a concurrent batch
// when device_keys is supplied.
func (api *PushAPI) HandlePushV2(w http.ResponseWriter, r *http.Request) {
	params := parsePushParams(r)

	var deviceKeys []string
	if raw, ok := params["device_keys"]; ok {
		deviceKeys, ok = parseDeviceKeys(raw)
		if !ok {
			response.WriteError(w, http.StatusBadRequest, "invalid type for device_keys")
			return
		}
		// Each batch item gets its own device_key.
		delete(params, "device_keys")
	}

	if len(deviceKeys) == 0 {
		outcome := api.Sender.Send(r.Context(), params)
		if !outcome.Sent() {
			response.WriteJSON(w, outcome.Code, response.Failed(outcome.Code, outcome.Message))
			return
		}
		response.WriteJSON(w, http.StatusOK, response.Success())
		return
	}

	results, err := api.Sender.SendBatch(r.Context(), deviceKeys, params)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The batch call itself always succeeds; per-item outcomes ride in data.
	response.WriteJSON(w, http.StatusOK, response.Data(results))
}

// HandlePushV1 serves the positional routes:
// /{device_key}[/{title}[/{subtitle}]]/{body}, GET or POST.
func (api *PushAPI) HandlePushV1(w http.ResponseWriter, r *http.Request) {
	segments := make([]string, 0, 4)
	for _, name := range []string{"device_key", "p1", "p2", "p3"} {
		if v := chi.URLParam(r, name); v != "" {
			segments = append(segments, v)
		}
	}
	pathParams := v1PathParams(segments)
	if pathParams["device_key"] == "" {
		response.WriteError(w, http.StatusBadRequest, "device key is empty")
		return
	}

	params := parseV1Params(r, pathParams)

	outcome := api.Sender.Send(r.Context(), params)
	if !outcome.Sent() {
		response.WriteJSON(w, outcome.Code, response.Failed(outcome.Code, outcome.Message))
		return
	}
	response.WriteJSON(w, http.StatusOK, response.Success())
}
