// --- File: pkg/dispatch/interfaces.go ---
package dispatch

import (
	"context"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"golang.org/x/oauth2"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/push"
)

// Dispatcher defines the three ways of handing a message to the FCM gateway.
type Dispatcher interface {
	// SendToTokens sends one request per device token and reports whether
	// every one of them was accepted. tokens is a string or a []string.
	// Only caller contract violations (bad token argument, missing
	// configuration) are returned as errors.
	SendToTokens(ctx context.Context, msg push.Message, tokens any) (bool, error)

	// SendToTopics sends a single request addressed to a topic (string) or
	// to an OR-condition over topics ([]string). A push.Target from
	// Message.TopicTarget is accepted as well.
	SendToTopics(ctx context.Context, msg push.Message, topics any) (bool, error)

	// SendRaw posts the payload verbatim and returns the gateway's document.
	// Every failure is returned.
	SendRaw(ctx context.Context, raw push.RawPayload) (push.Response, error)
}

// TokenSource yields bearer tokens for the messaging API.
type TokenSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// TokenStore holds the device-registration identifier on a user's record.
type TokenStore interface {
	// SaveToken replaces the user's registration identifier.
	SaveToken(ctx context.Context, user urn.URN, token string) error

	// Token returns the user's registration identifier, or "" if none.
	Token(ctx context.Context, user urn.URN) (string, error)
}
