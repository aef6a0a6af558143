// Package pushgateway assembles the gateway service: the APNs delivery
// pipeline, the relay, the device-token store, and the HTTP surface.
package pushgateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/apns"
	"github.com/tinywideclouds/go-push-gateway/internal/push"
	"github.com/tinywideclouds/go-push-gateway/internal/relay"
	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pushgateway/config"
)

type Service struct {
	server *http.Server
	logger *slog.Logger
}

// New assembles the service around an already-connected token store.
func New(cfg *config.Config, store dispatch.TokenStore, logger *slog.Logger) (*Service, error) {
	apnsClient, err := apns.NewClient(apns.Config{
		KeyID:          cfg.APNS.KeyID,
		TeamID:         cfg.APNS.TeamID,
		Topic:          cfg.APNS.Topic,
		PrivateKey:     cfg.APNS.PrivateKey,
		Sandbox:        cfg.APNS.Sandbox,
		ProxyEnabled:   cfg.Proxy.Enabled,
		ProxyURL:       cfg.Proxy.URL,
		ProxySecret:    cfg.Proxy.Secret,
		RequestTimeout: cfg.UpstreamTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create APNs client: %w", err)
	}

	sender := push.NewSender(apnsClient, store, cfg.MaxBatchPushCount, logger)

	pushAPI := api.NewPushAPI(sender, logger)
	registerAPI := api.NewRegisterAPI(store, logger)
	infoAPI := api.NewInfoAPI(store, logger)

	relayHandler := relay.New(apnsClient.Host(), cfg.Proxy.Secret, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Open endpoints: health probes never sit behind the gate, and the
	// relay authenticates with its own shared secret.
	r.Get("/ping", infoAPI.HandlePing)
	r.Get("/healthz", infoAPI.HandleHealthz)
	r.Handle(relay.PathPrefix+"/*", relayHandler)

	gate := api.BasicAuth(cfg.Auth.User, cfg.Auth.Password)
	r.Group(func(pr chi.Router) {
		pr.Use(gate)

		pr.Post("/push", pushAPI.HandlePushV2)
		pr.Post("/register", registerAPI.HandleRegister)
		pr.Get("/register/{device_key}", registerAPI.HandleRegisterCheck)
		pr.Get("/info", infoAPI.HandleInfo)

		// V1 positional routes, GET and POST only. Static segments above
		// take precedence.
		for _, pattern := range []string{
			"/{device_key}",
			"/{device_key}/{p1}",
			"/{device_key}/{p1}/{p2}",
			"/{device_key}/{p1}/{p2}/{p3}",
		} {
			pr.Get(pattern, pushAPI.HandlePushV1)
			pr.Post(pattern, pushAPI.HandlePushV1)
		}
	})

	return &Service{
		server: &http.Server{
			Addr:        cfg.ListenAddr,
			Handler:     r,
			IdleTimeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// Handler exposes the assembled router, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down service...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.logger.Info("Service shutdown complete.")
	return nil
}
