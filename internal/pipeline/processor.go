package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-fcm-dispatch/internal/channel"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
)

// Notifier is satisfied by *channel.Channel.
type Notifier interface {
	Send(ctx context.Context, recipient channel.Recipient, notification any)
}

// NewProcessor hands each request to the channel. It always returns nil: a
// failed send is logged by the channel and the message is acked, never
// re-queued.
func NewProcessor(
	notifier Notifier,
	tokenStore dispatch.TokenStore,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[DispatchRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *DispatchRequest) error {
		procLogger := logger.With(
			"recipient_id", request.RecipientID.String(),
			"pubsub_msg_id", original.ID,
		)

		recipient := channel.StoredRecipient{User: request.RecipientID, Store: tokenStore}
		notifier.Send(ctx, recipient, request)

		procLogger.Debug("Dispatch request handled")
		return nil
	}
}
