package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-fcm-dispatch/internal/api"
	"github.com/tinywideclouds/go-fcm-dispatch/internal/credentials"
	"github.com/tinywideclouds/go-fcm-dispatch/internal/platform/fcm"
	"github.com/tinywideclouds/go-fcm-dispatch/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-fcm-dispatch/internal/storage/firestore"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-dispatch/pushservice"
	"github.com/tinywideclouds/go-fcm-dispatch/pushservice/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-fcm-dispatch")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// --- Token Store (Decorated) ---
	var tokenStore dispatch.TokenStore = fsStore.NewFirestoreStore(fsClient)
	logger.Info("TokenStore initialized", "type", "firestore")
	if redisClient != nil {
		tokenStore = cache.NewCachedTokenStore(tokenStore, redisClient, cfg.Redis.TokenTTL)
		logger.Info("TokenStore upgraded", "type", "redis_cached_firestore")
	}

	// --- Credentials ---
	provider, err := credentials.NewProvider(credentials.Config{CredentialsPath: cfg.FCM.CredentialsPath}, logger)
	if err != nil {
		logger.Error("Credential provider failed", "err", err)
		os.Exit(1)
	}
	var tokenSource dispatch.TokenSource = provider
	if cfg.FCM.CacheAccessToken && redisClient != nil {
		tokenSource = cache.NewCachedTokenSource(provider, redisClient, provider.KeyID(), logger)
		logger.Info("Access tokens cached", "type", "redis")
	}

	// --- Dispatcher ---
	dispatcher := fcm.NewDispatcher(fcm.Config{
		ProjectID:        cfg.ProjectID,
		APIURL:           cfg.FCM.APIURL,
		MaxAttempts:      cfg.FCM.MaxAttempts,
		RetryDelay:       cfg.FCM.RetryDelay,
		TokenConcurrency: cfg.FCM.TokenConcurrency,
		DisableLogging:   !cfg.FCM.LoggingEnabled,
	}, tokenSource, nil, logger)

	// --- Auth ---
	authMiddleware, err := newAuthMiddleware(ctx, cfg, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := pushservice.New(cfg, consumer, dispatcher, tokenStore, authMiddleware, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newAuthMiddleware(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg.Auth.Mode == config.AuthModeFirebase {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, option.WithCredentialsFile(cfg.FCM.CredentialsPath))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create firebase auth client: %w", err)
		}
		logger.Info("Auth initialized", "mode", config.AuthModeFirebase)
		return api.NewFirebaseAuthMiddleware(authClient, cfg.Auth.URNNamespace, logger), nil
	}

	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(cfg.Auth.IdentityURL, middleware.RSA256, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to discover jwks from %s: %w", cfg.Auth.IdentityURL, err)
	}
	logger.Info("Auth initialized", "mode", config.AuthModeJWKS, "jwks_url", jwksURL)
	return middleware.NewJWKSAuthMiddleware(jwksURL, logger)
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 30,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 5},
			MaximumBackoff: &durationpb.Duration{Seconds: 60},
		},
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	consumerCfg := *cfg.PubsubConsumerConfig
	consumerCfg.SubscriptionID = subConfig.Name
	return messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
