package config

import (
	"log/slog"
	"time"
)

type YamlAPNSConfig struct {
	Topic      string `yaml:"topic"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	PrivateKey string `yaml:"private_key"`
	Sandbox    bool   `yaml:"sandbox"`
}

type YamlProxyConfig struct {
	// Enabled defaults to true when absent; the relay path is the default
	// delivery route.
	Enabled *bool  `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type YamlAuthConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ListenAddr        string          `yaml:"listen_addr"`
	APNS              YamlAPNSConfig  `yaml:"apns"`
	Proxy             YamlProxyConfig `yaml:"proxy"`
	Auth              YamlAuthConfig  `yaml:"auth"`
	MaxBatchPushCount int             `yaml:"max_batch_push_count"`
	UpstreamTimeout   string          `yaml:"upstream_timeout"`
	StorageType       string          `yaml:"storage_type"`
	Redis             YamlRedisConfig `yaml:"redis"`
	ProjectID         string          `yaml:"project_id"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ListenAddr: baseCfg.ListenAddr,
		APNS: APNSConfig{
			Topic:      baseCfg.APNS.Topic,
			KeyID:      baseCfg.APNS.KeyID,
			TeamID:     baseCfg.APNS.TeamID,
			PrivateKey: baseCfg.APNS.PrivateKey,
			Sandbox:    baseCfg.APNS.Sandbox,
		},
		Proxy: ProxyConfig{
			Enabled: baseCfg.Proxy.Enabled == nil || *baseCfg.Proxy.Enabled,
			URL:     baseCfg.Proxy.URL,
			Secret:  baseCfg.Proxy.Secret,
		},
		Auth: AuthConfig{
			User:     baseCfg.Auth.User,
			Password: baseCfg.Auth.Password,
		},
		MaxBatchPushCount: baseCfg.MaxBatchPushCount,
		StorageType:       baseCfg.StorageType,
		Redis: RedisConfig{
			Addr:     baseCfg.Redis.Addr,
			Password: baseCfg.Redis.Password,
			DB:       baseCfg.Redis.DB,
		},
		ProjectID: baseCfg.ProjectID,
	}

	if baseCfg.UpstreamTimeout != "" {
		d, err := time.ParseDuration(baseCfg.UpstreamTimeout)
		if err != nil {
			logger.Warn("Invalid upstream_timeout, leaving unset", "value", baseCfg.UpstreamTimeout, "err", err)
		} else {
			cfg.UpstreamTimeout = d
		}
	}

	logger.Debug("YAML config mapping complete",
		"listen_addr", cfg.ListenAddr,
		"storage_type", cfg.StorageType,
		"proxy_enabled", cfg.Proxy.Enabled,
	)

	return cfg, nil
}
