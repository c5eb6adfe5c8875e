package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	Enabled       bool   `yaml:"enabled"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

type YamlFCMConfig struct {
	CredentialsPath  string `yaml:"credentials_path"`
	APIURL           string `yaml:"api_url"`
	MaxAttempts      int    `yaml:"max_attempts"`
	RetryDelayMS     int    `yaml:"retry_delay_ms"`
	TokenConcurrency int    `yaml:"token_concurrency"`
	// LoggingEnabled defaults to true when absent.
	LoggingEnabled   *bool `yaml:"logging_enabled"`
	CacheAccessToken bool  `yaml:"cache_access_token"`
}

type YamlAuthConfig struct {
	Mode         string `yaml:"mode"`
	IdentityURL  string `yaml:"identity_url"`
	URNNamespace string `yaml:"urn_namespace"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string          `yaml:"project_id"`
	ListenAddr             string          `yaml:"listen_addr"`
	TopicID                string          `yaml:"topic_id"`
	SubscriptionID         string          `yaml:"subscription_id"`
	SubscriptionDLQTopicID string          `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig  `yaml:"cors"`
	RedisConfig            YamlRedisConfig `yaml:"redis"`
	FCMConfig              YamlFCMConfig   `yaml:"fcm"`
	AuthConfig             YamlAuthConfig  `yaml:"auth"`
	NumPipelineWorkers     int             `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	loggingEnabled := true
	if baseCfg.FCMConfig.LoggingEnabled != nil {
		loggingEnabled = *baseCfg.FCMConfig.LoggingEnabled
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TokenTTL: time.Duration(baseCfg.RedisConfig.TokenTTLHours) * time.Hour,
		},
		FCM: FCMConfig{
			CredentialsPath:  baseCfg.FCMConfig.CredentialsPath,
			APIURL:           baseCfg.FCMConfig.APIURL,
			MaxAttempts:      baseCfg.FCMConfig.MaxAttempts,
			RetryDelay:       time.Duration(baseCfg.FCMConfig.RetryDelayMS) * time.Millisecond,
			TokenConcurrency: baseCfg.FCMConfig.TokenConcurrency,
			LoggingEnabled:   loggingEnabled,
			CacheAccessToken: baseCfg.FCMConfig.CacheAccessToken,
		},
		Auth: AuthConfig{
			Mode:         baseCfg.AuthConfig.Mode,
			IdentityURL:  baseCfg.AuthConfig.IdentityURL,
			URNNamespace: baseCfg.AuthConfig.URNNamespace,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
