// Package pushservice assembles the HTTP surface and the dispatch pipeline.
package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-fcm-dispatch/internal/api"
	"github.com/tinywideclouds/go-fcm-dispatch/internal/channel"
	"github.com/tinywideclouds/go-fcm-dispatch/internal/pipeline"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-dispatch/pushservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[pipeline.DispatchRequest]
	logger          *slog.Logger
}

// New assembles the service.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	dispatcher dispatch.Dispatcher,
	tokenStore dispatch.TokenStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Channel + Processor
	fcmChannel := channel.New(dispatcher, logger)
	processor := pipeline.NewProcessor(fcmChannel, tokenStore, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.DispatchRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API (Token Registration)
	tokenAPI := api.NewTokenAPI(tokenStore, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	mux.Handle("POST /api/v1/fcm/token", corsMiddleware(authMiddleware(http.HandlerFunc(tokenAPI.UpdateToken))))

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Dispatch pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
