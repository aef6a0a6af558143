// Package apns implements the upstream half of the delivery pipeline: the
// ES256 provider token, the payload builder, and the HTTP client that talks
// to Apple's push service either directly or through the relay.
package apns

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

const (
	// HostProduction and HostDevelopment are the APNs endpoints.
	HostProduction  = "https://api.push.apple.com"
	HostDevelopment = "https://api.sandbox.push.apple.com"

	// ProxyAuthHeader carries the shared secret on relay requests.
	ProxyAuthHeader = "x-apns-proxy-auth"
)

// PushType selects the apns-push-type header value.
type PushType string

const (
	PushTypeAlert        PushType = "alert"
	PushTypeBackground   PushType = "background"
	PushTypeVoIP         PushType = "voip"
	PushTypeComplication PushType = "complication"
	PushTypeFileProvider PushType = "fileprovider"
	PushTypeMDM          PushType = "mdm"
)

// Config holds the credentials and routing knobs for the upstream client.
type Config struct {
	KeyID      string
	TeamID     string
	Topic      string
	PrivateKey string // P8 key content, PEM

	Sandbox bool

	// ProxyEnabled routes deliveries through the relay. The relay exists for
	// runtimes whose native client cannot hold multiplexed upstream streams;
	// it stays the default path for parity with those deployments.
	ProxyEnabled bool
	ProxyURL     string
	ProxySecret  string

	// RequestTimeout bounds one upstream call. Zero disables the bound,
	// matching the historical behavior; see the service docs before relying
	// on that in batch-heavy deployments.
	RequestTimeout time.Duration
}

// Notification is one delivery request toward APNs. It lives for the
// duration of a single attempt.
type Notification struct {
	DeviceToken string
	Payload     *Payload
	Topic       string
	Expiration  int64 // epoch seconds; 0 means deliver now or drop
	PushType    PushType
	Priority    int    // 10 alert, 5 background, 0 omits the header
	CollapseID  string // de-duplication identifier
}

// Response is the classified upstream outcome of one attempt.
type Response struct {
	StatusCode int
	Reason     string
	ApnsID     string
}

// Sent reports upstream acceptance.
func (r *Response) Sent() bool {
	return r.StatusCode == http.StatusOK
}

// Client sends notifications to APNs. It holds the shared token source, so
// every delivery in the process reuses one cached credential.
type Client struct {
	cfg    Config
	tokens *TokenSource
	logger *slog.Logger

	// proxyClient speaks plain HTTPS to the relay; directClient holds
	// multiplexed connections straight to Apple.
	proxyClient  *http.Client
	directClient *http.Client
}

// NewClient parses the signing key and prepares both transports. It fails
// fast on bad key material.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	tokens, err := NewTokenSource(cfg.KeyID, cfg.TeamID, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		logger: logger.With("component", "APNSClient"),
		proxyClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		directClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http2.Transport{
				TLSClientConfig: &tls.Config{},
			},
		},
	}, nil
}

// Tokens exposes the shared credential source.
func (c *Client) Tokens() *TokenSource {
	return c.tokens
}

// Host returns the upstream endpoint selected by configuration.
func (c *Client) Host() string {
	if c.cfg.Sandbox {
		return HostDevelopment
	}
	return HostProduction
}

// Send delivers one notification and classifies the result. Transport
// failures are folded into a 500 response carrying the error text; no retry
// is attempted here.
func (c *Client) Send(ctx context.Context, n *Notification) *Response {
	token, err := c.tokens.Token(false)
	if err != nil {
		return &Response{StatusCode: http.StatusInternalServerError, Reason: err.Error()}
	}

	path := "/3/device/" + n.DeviceToken

	viaProxy := c.cfg.ProxyEnabled && c.cfg.ProxyURL != ""
	var url string
	var client *http.Client
	if viaProxy {
		url = strings.TrimSuffix(c.cfg.ProxyURL, "/") + path
		client = c.proxyClient
	} else {
		url = c.Host() + path
		client = c.directClient
	}

	body, err := json.Marshal(n.Payload)
	if err != nil {
		return &Response{StatusCode: http.StatusInternalServerError, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return &Response{StatusCode: http.StatusInternalServerError, Reason: err.Error()}
	}

	topic := n.Topic
	if topic == "" {
		topic = c.cfg.Topic
	}
	req.Header.Set("apns-topic", topic)
	req.Header.Set("apns-push-type", string(n.PushType))
	req.Header.Set("apns-expiration", strconv.FormatInt(n.Expiration, 10))
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", "bearer "+token)
	if n.CollapseID != "" {
		req.Header.Set("apns-collapse-id", n.CollapseID)
	}
	if n.Priority > 0 {
		req.Header.Set("apns-priority", strconv.Itoa(n.Priority))
	}
	if viaProxy && c.cfg.ProxySecret != "" {
		req.Header.Set(ProxyAuthHeader, c.cfg.ProxySecret)
	}

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Error("APNs transport failed", "via_proxy", viaProxy, "err", err)
		return &Response{StatusCode: http.StatusInternalServerError, Reason: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	result := &Response{
		StatusCode: resp.StatusCode,
		ApnsID:     resp.Header.Get("apns-id"),
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		reason := parseReason(raw)

		// An expired provider token means our cached credential is stale;
		// drop it so the next delivery signs a fresh one.
		if resp.StatusCode == http.StatusForbidden && reason == "ExpiredProviderToken" {
			c.logger.Warn("provider token expired, clearing credential cache")
			c.tokens.Clear()
		}

		result.Reason = string(raw)
		if result.Reason == "" {
			result.Reason = reason
		}
	}

	return result
}

func parseReason(raw []byte) string {
	var parsed struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ""
	}
	return parsed.Reason
}
