package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/response"
)

// Version is the gateway release reported by /info.
const Version = "v2.0.0"

// Commit is overridable at build time via -ldflags.
var Commit = "HEAD"

type InfoAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewInfoAPI(store dispatch.TokenStore, logger *slog.Logger) *InfoAPI {
	return &InfoAPI{
		Store:  store,
		Logger: logger.With("component", "InfoAPI"),
	}
}

// HandlePing serves GET /ping. Unauthenticated.
func (api *InfoAPI) HandlePing(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, response.Success())
}

// HandleHealthz serves GET /healthz with a plain-text body, Kubernetes style.
func (api *InfoAPI) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleInfo serves GET /info: version, platform, and the registered device
// count. The count is best effort; a failing store reports zero.
func (api *InfoAPI) HandleInfo(w http.ResponseWriter, r *http.Request) {
	devices, err := api.Store.Count(r.Context())
	if err != nil {
		api.Logger.Warn("device count failed", "err", err)
		devices = 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version": Version,
		"arch":    runtime.GOOS + "/" + runtime.GOARCH,
		"commit":  Commit,
		"devices": devices,
	})
}
