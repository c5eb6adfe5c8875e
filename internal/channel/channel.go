// Package channel adapts application notifications to the FCM dispatcher.
package channel

import (
	"context"
	"fmt"
	"log/slog"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/push"
)

// Name is the routing key recipients are asked for.
const Name = "fcm"

// Recipient is anything a notification can be routed to.
type Recipient interface {
	ID() string
	// RouteNotificationFor returns the delivery address for a channel: a
	// token string or a slice of tokens for "fcm". nil means not routable.
	RouteNotificationFor(ctx context.Context, channel string) (any, error)
}

// FCMNotification is implemented by notifications that can go out over FCM.
type FCMNotification interface {
	ToFCM(ctx context.Context, recipient Recipient) push.Rendered
}

// Channel delivers notifications through a Dispatcher.
type Channel struct {
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
}

func New(dispatcher dispatch.Dispatcher, logger *slog.Logger) *Channel {
	return &Channel{
		dispatcher: dispatcher,
		logger:     logger.With("component", "FCMChannel"),
	}
}

// Send delivers notification to recipient. It never fails: every problem,
// including a panic in notification code, is logged and swallowed.
func (c *Channel) Send(ctx context.Context, recipient Recipient, notification any) {
	log := c.logger.With("recipient", recipient.ID(), "notification", fmt.Sprintf("%T", notification))

	defer func() {
		if r := recover(); r != nil {
			log.Error("FCM Channel error", "err", fmt.Errorf("panic: %v", r))
		}
	}()

	n, ok := notification.(FCMNotification)
	if !ok {
		log.Warn("Notification does not support FCM")
		return
	}

	route, err := recipient.RouteNotificationFor(ctx, Name)
	if err != nil {
		log.Error("FCM Channel error", "err", err, "error_kind", push.Classify(err))
		return
	}
	if isEmptyRoute(route) {
		log.Warn("Recipient has no FCM token")
		return
	}

	rendered := n.ToFCM(ctx, recipient)
	switch rendered.Kind {
	case push.RenderedRaw:
		if _, err := c.dispatcher.SendRaw(ctx, rendered.Raw); err != nil {
			log.Error("FCM Channel error", "err", err, "error_kind", push.Classify(err))
		}

	case push.RenderedStructured:
		if rendered.Structured == nil {
			log.Warn("Notification rendered an empty FCM message")
			return
		}
		msg := rendered.Structured.Builder().Build()

		var sent bool
		if target, ok := msg.TopicTarget(); ok {
			sent, err = c.dispatcher.SendToTopics(ctx, msg, target)
		} else {
			sent, err = c.dispatcher.SendToTokens(ctx, msg, route)
		}
		if err != nil {
			log.Error("FCM Channel error", "err", err, "error_kind", push.Classify(err))
			return
		}
		if !sent {
			log.Warn("FCM notification was not delivered")
		}

	default:
		log.Warn("Notification rendered nothing for FCM")
	}
}

func isEmptyRoute(route any) bool {
	switch r := route.(type) {
	case nil:
		return true
	case string:
		return r == ""
	case []string:
		return len(r) == 0
	case []any:
		return len(r) == 0
	default:
		return false
	}
}

// StoredRecipient routes to the registration identifier kept in a
// TokenStore.
type StoredRecipient struct {
	User  urn.URN
	Store dispatch.TokenStore
}

func (r StoredRecipient) ID() string {
	return r.User.String()
}

func (r StoredRecipient) RouteNotificationFor(ctx context.Context, channel string) (any, error) {
	if channel != Name {
		return nil, nil
	}
	token, err := r.Store.Token(ctx, r.User)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fcm token for %s: %w", r.User.String(), err)
	}
	if token == "" {
		return nil, nil
	}
	return token, nil
}
