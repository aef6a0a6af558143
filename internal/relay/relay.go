// Package relay implements the transport bridge: a narrow reverse proxy that
// forwards delivery requests to APNs over multiplexed HTTP/2 connections on
// behalf of callers whose native client cannot hold them.
package relay

import (
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/net/http2"

	"github.com/tinywideclouds/go-push-gateway/internal/apns"
)

// PathPrefix is stripped from inbound request paths before forwarding.
const PathPrefix = "/apns-proxy"

// Handler forwards requests verbatim to the upstream host. No business
// logic lives here; classification stays with the delivery client.
type Handler struct {
	// Host is the upstream origin, e.g. https://api.push.apple.com.
	Host string

	// Secret gates inbound calls via the x-apns-proxy-auth header when set;
	// empty leaves the relay open.
	Secret string

	Logger *slog.Logger

	// Transport dials the upstream. Tests inject a stub; production uses
	// an HTTP/2 transport.
	Transport http.RoundTripper
}

// New returns a relay toward the APNs production host.
func New(host, secret string, logger *slog.Logger) *Handler {
	return &Handler{
		Host:   host,
		Secret: secret,
		Logger: logger.With("component", "Relay"),
		Transport: &http2.Transport{
			TLSClientConfig: &tls.Config{},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Secret != "" {
		received := r.Header.Get(apns.ProxyAuthHeader)
		if subtle.ConstantTimeCompare([]byte(received), []byte(h.Secret)) != 1 {
			h.writeReason(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	path := strings.TrimPrefix(r.URL.Path, PathPrefix)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("failed to read relay request body", "err", err)
		h.writeReason(w, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, h.Host+path, strings.NewReader(string(body)))
	if err != nil {
		h.writeReason(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Forward every caller header except the host and our own auth secret.
	for key, values := range r.Header {
		lower := strings.ToLower(key)
		if lower == "host" || lower == apns.ProxyAuthHeader {
			continue
		}
		for _, v := range values {
			out.Header.Add(key, v)
		}
	}

	resp, err := h.Transport.RoundTrip(out)
	if err != nil {
		h.Logger.Error("relay upstream call failed", "err", err)
		h.writeReason(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = resp.Body.Close() }()

	// Reduced response header set: JSON content type plus the delivery id.
	w.Header().Set("Content-Type", "application/json")
	if apnsID := resp.Header.Get("apns-id"); apnsID != "" {
		w.Header().Set("apns-id", apnsID)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.Logger.Warn("failed to stream relay response", "err", err)
	}
}

// writeReason mirrors the upstream error body shape so callers classify
// relay failures the same way as APNs rejections.
func (h *Handler) writeReason(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"reason": reason})
}
