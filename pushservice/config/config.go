package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	AuthModeJWKS     = "jwks"
	AuthModeFirebase = "firebase"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TokenTTL time.Duration
}

// FCMConfig configures the delivery executor.
type FCMConfig struct {
	CredentialsPath  string
	APIURL           string
	MaxAttempts      int
	RetryDelay       time.Duration
	TokenConcurrency int
	LoggingEnabled   bool
	CacheAccessToken bool
}

type AuthConfig struct {
	Mode         string
	IdentityURL  string
	URNNamespace string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	FCM        FCMConfig
	Auth       AuthConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	for _, key := range []string{"PROJECT_ID", "FIREBASE_PROJECT_ID"} {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			cfg.ProjectID = val
		}
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// FCM Overrides
	if val := os.Getenv("FIREBASE_CREDENTIALS"); val != "" {
		logger.Debug("Overriding config value", "key", "FIREBASE_CREDENTIALS", "source", "env")
		cfg.FCM.CredentialsPath = val
	}
	if val := os.Getenv("FCM_API_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "FCM_API_URL", "source", "env")
		cfg.FCM.APIURL = val
	}
	if val := os.Getenv("FCM_MAX_ATTEMPTS"); val != "" {
		if attempts, err := strconv.Atoi(val); err == nil && attempts > 0 {
			cfg.FCM.MaxAttempts = attempts
		}
	}
	if val := os.Getenv("FCM_RETRY_DELAY_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			cfg.FCM.RetryDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("FCM_TOKEN_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.FCM.TokenConcurrency = n
		}
	}
	if val := os.Getenv("FCM_LOGGING_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.FCM.LoggingEnabled = enabled
		}
	}
	if val := os.Getenv("FCM_CACHE_ACCESS_TOKEN"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.FCM.CacheAccessToken = enabled
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Auth Overrides
	if val := os.Getenv("AUTH_MODE"); val != "" {
		logger.Debug("Overriding config value", "key", "AUTH_MODE", "source", "env")
		cfg.Auth.Mode = strings.ToLower(val)
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.Auth.IdentityURL = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or FIREBASE_PROJECT_ID env var)")
	}
	if cfg.FCM.CredentialsPath == "" {
		return nil, fmt.Errorf("fcm.credentials_path is required (set via YAML or FIREBASE_CREDENTIALS env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	switch cfg.Auth.Mode {
	case "":
		cfg.Auth.Mode = AuthModeJWKS
	case AuthModeJWKS, AuthModeFirebase:
	default:
		return nil, fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModeJWKS, AuthModeFirebase, cfg.Auth.Mode)
	}
	if cfg.FCM.CacheAccessToken && !cfg.Redis.Enabled {
		logger.Warn("fcm.cache_access_token requires redis; access tokens will not be cached")
		cfg.FCM.CacheAccessToken = false
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.FCM.MaxAttempts <= 0 {
		cfg.FCM.MaxAttempts = 3
	}
	if cfg.FCM.RetryDelay <= 0 {
		cfg.FCM.RetryDelay = 100 * time.Millisecond
	}
	if cfg.FCM.TokenConcurrency <= 0 {
		cfg.FCM.TokenConcurrency = 1
	}
	if cfg.Redis.TokenTTL <= 0 {
		cfg.Redis.TokenTTL = 24 * time.Hour
	}
	if cfg.Auth.IdentityURL == "" {
		cfg.Auth.IdentityURL = "http://localhost:3000"
	}
	if cfg.Auth.URNNamespace == "" {
		cfg.Auth.URNNamespace = "contacts"
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
