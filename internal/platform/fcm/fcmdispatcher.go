// --- File: internal/platform/fcm/fcmdispatcher.go ---
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-fcm-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/push"
)

const (
	DefaultBaseURL     = "https://fcm.googleapis.com"
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 100 * time.Millisecond
)

// Config holds the gateway settings.
type Config struct {
	ProjectID string
	// APIURL, when set, is used verbatim as the messages:send URL.
	APIURL string
	// BaseURL replaces the gateway host when APIURL is empty.
	BaseURL string

	MaxAttempts int
	RetryDelay  time.Duration

	// TokenConcurrency bounds the per-token fan-out. 1 sends strictly in
	// input order.
	TokenConcurrency int

	DisableLogging bool
}

// invalidator is implemented by caching token sources.
type invalidator interface {
	Invalidate(ctx context.Context) error
}

// Dispatcher posts rendered messages to the FCM HTTP v1 API.
type Dispatcher struct {
	cfg    Config
	tokens dispatch.TokenSource
	client *http.Client
	logger *slog.Logger
}

var _ dispatch.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher applies defaults to cfg. A nil client means a plain
// http.Client with no timeout beyond the transport defaults.
func NewDispatcher(cfg Config, tokens dispatch.TokenSource, client *http.Client, logger *slog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.TokenConcurrency <= 0 {
		cfg.TokenConcurrency = 1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	if cfg.DisableLogging {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		cfg:    cfg,
		tokens: tokens,
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// outcome is the result of one messages:send call.
type outcome struct {
	messageID string
	detail    any
	err       error
}

func (o outcome) ok() bool {
	return o.err == nil && o.messageID != ""
}

// SendToTokens sends one request per token. A failing token does not stop
// the others; the result is true only if every token was accepted.
func (d *Dispatcher) SendToTokens(ctx context.Context, msg push.Message, tokens any) (bool, error) {
	log := d.logger.With("dispatch_id", uuid.NewString())

	list, err := push.NormalizeTokens(tokens)
	if err != nil {
		log.Error("FCM notification failed", "err", err, "error_kind", push.Classify(err))
		return false, err
	}
	if len(list) == 0 {
		log.Warn("Empty FCM token provided", "err", push.ErrEmptyTarget)
		return false, nil
	}

	endpoint, err := d.endpoint()
	if err != nil {
		log.Error("FCM notification failed", "err", err, "error_kind", push.Classify(err))
		return false, err
	}
	if err := validateContent(msg); err != nil {
		log.Error("FCM notification failed", "err", err, "error_kind", push.Classify(err))
		return false, nil
	}

	accessToken, err := d.accessToken(ctx)
	if err != nil {
		log.Error("FCM notification failed", "err", err, "error_kind", push.Classify(err))
		return false, nil
	}

	outcomes := make([]outcome, len(list))
	var g errgroup.Group
	g.SetLimit(d.cfg.TokenConcurrency)
	for i, token := range list {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, endpoint, accessToken.AccessToken, push.Render(msg, push.TokenTarget(token)))
			return nil
		})
	}
	_ = g.Wait()

	success := true
	for i, o := range outcomes {
		tokenLog := log.With("token", list[i])
		switch {
		case o.ok():
			tokenLog.Info("FCM notification sent successfully", "message_id", o.messageID)
		case o.err != nil:
			tokenLog.Error("FCM notification failed", "err", o.err, "error_kind", push.Classify(o.err))
			success = false
		default:
			tokenLog.Error("Failed to send FCM notification", "error", o.detail)
			success = false
		}
	}
	return success, nil
}

// SendToTopics sends exactly one request, addressed to a single topic or to
// an OR-condition over several.
func (d *Dispatcher) SendToTopics(ctx context.Context, msg push.Message, topics any) (bool, error) {
	log := d.logger.With("dispatch_id", uuid.NewString())

	target, ok, err := push.NormalizeTopics(topics)
	if err != nil {
		log.Error("FCM notification to topics failed", "err", err, "error_kind", push.Classify(err))
		return false, err
	}
	if !ok {
		log.Warn("Empty topics provided", "err", push.ErrEmptyTarget)
		return false, nil
	}
	log = log.With("topics", target.String())

	endpoint, err := d.endpoint()
	if err != nil {
		log.Error("FCM notification to topics failed", "err", err, "error_kind", push.Classify(err))
		return false, err
	}
	if err := validateContent(msg); err != nil {
		log.Error("FCM notification to topics failed", "err", err, "error_kind", push.Classify(err))
		return false, nil
	}

	accessToken, err := d.accessToken(ctx)
	if err != nil {
		log.Error("FCM notification to topics failed", "err", err, "error_kind", push.Classify(err))
		return false, nil
	}

	o := d.deliver(ctx, endpoint, accessToken.AccessToken, push.Render(msg, target))
	switch {
	case o.ok():
		log.Info("FCM notification sent to topics successfully", "message_id", o.messageID)
		return true, nil
	case o.err != nil:
		log.Error("FCM notification to topics failed", "err", o.err, "error_kind", push.Classify(o.err))
	default:
		log.Error("Failed to send FCM notification to topics", "error", o.detail)
	}
	return false, nil
}

// SendRaw posts raw verbatim. Unlike the other entry points it returns
// every failure to the caller.
func (d *Dispatcher) SendRaw(ctx context.Context, raw push.RawPayload) (push.Response, error) {
	log := d.logger.With("dispatch_id", uuid.NewString())

	if len(raw) == 0 {
		err := fmt.Errorf("%w: raw payload is empty", push.ErrInvalidInput)
		log.Error("Failed to send raw FCM message", "err", err)
		return nil, err
	}

	endpoint, err := d.endpoint()
	if err != nil {
		log.Error("Failed to send raw FCM message", "err", err, "error_kind", push.Classify(err))
		return nil, err
	}

	accessToken, err := d.accessToken(ctx)
	if err != nil {
		log.Error("Failed to send raw FCM message", "err", err, "error_kind", push.Classify(err))
		return nil, err
	}

	resp, err := d.call(ctx, endpoint, accessToken.AccessToken, raw)
	if err != nil {
		attrs := []any{"err", err, "error_kind", push.Classify(err)}
		var gwErr *push.GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode != 0 {
			attrs = append(attrs, "status", gwErr.StatusCode, "response_body", gwErr.Body)
		}
		log.Error("Failed to send raw FCM message", attrs...)
		return nil, err
	}

	if id, ok := resp.MessageID(); ok {
		log.Info("Raw FCM message sent successfully", "message_id", id)
	} else {
		log.Error("Failed to send raw FCM message", "error", resp.ErrorDetail())
	}
	return resp, nil
}

// Send routes msg by its shape: raw messages go to SendRaw, messages with
// declared topics to SendToTopics and everything else to SendToTokens.
func (d *Dispatcher) Send(ctx context.Context, msg push.Message, tokens any) (bool, error) {
	if msg.IsRaw() {
		resp, err := d.SendRaw(ctx, msg.Raw)
		if err != nil {
			return false, err
		}
		_, ok := resp.MessageID()
		return ok, nil
	}
	if target, ok := msg.TopicTarget(); ok {
		return d.SendToTopics(ctx, msg, target)
	}
	return d.SendToTokens(ctx, msg, tokens)
}

func (d *Dispatcher) deliver(ctx context.Context, endpoint, accessToken string, env push.Envelope) outcome {
	resp, err := d.call(ctx, endpoint, accessToken, env)
	if err != nil {
		return outcome{err: err}
	}
	if id, ok := resp.MessageID(); ok {
		return outcome{messageID: id}
	}
	return outcome{detail: resp.ErrorDetail()}
}

// call performs the POST with bounded, fixed-delay retry. Transport errors,
// 429 and 5xx are retried; any other non-2xx is final.
func (d *Dispatcher) call(ctx context.Context, endpoint, accessToken string, body any) (push.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &push.UnexpectedError{Err: fmt.Errorf("failed to encode message: %w", err)}
	}

	var doc push.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(&push.UnexpectedError{Err: err})
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return &push.GatewayError{Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &push.GatewayError{StatusCode: resp.StatusCode, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			gwErr := &push.GatewayError{StatusCode: resp.StatusCode, Body: string(raw)}
			if retryable(resp.StatusCode) {
				return gwErr
			}
			return backoff.Permanent(gwErr)
		}

		var decoded push.Response
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return backoff.Permanent(&push.GatewayError{
				StatusCode: resp.StatusCode,
				Body:       string(raw),
				Err:        fmt.Errorf("malformed response: %w", err),
			})
		}
		if decoded == nil {
			decoded = push.Response{}
		}
		doc = decoded
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.cfg.RetryDelay), uint64(d.cfg.MaxAttempts-1)),
		ctx,
	)
	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		d.logger.Debug("Retrying FCM request", "err", err, "wait", wait)
	})
	if err == nil {
		return doc, nil
	}

	var (
		gwErr  *push.GatewayError
		unxErr *push.UnexpectedError
	)
	switch {
	case errors.As(err, &gwErr):
		if gwErr.Unauthorized() {
			d.invalidateToken(ctx)
		}
		return nil, err
	case errors.As(err, &unxErr):
		return nil, err
	default:
		// Context cancellation while waiting between attempts.
		return nil, &push.GatewayError{Err: err}
	}
}

func (d *Dispatcher) accessToken(ctx context.Context) (*oauth2.Token, error) {
	tok, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, &push.AuthError{Err: errors.New("token source returned no access token")}
	}
	return tok, nil
}

func (d *Dispatcher) invalidateToken(ctx context.Context) {
	inv, ok := d.tokens.(invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx); err != nil {
		d.logger.Warn("Failed to invalidate cached access token", "err", err)
	}
}

func (d *Dispatcher) endpoint() (string, error) {
	if d.cfg.ProjectID == "" {
		return "", &push.ConfigError{Field: "project_id", Reason: "is not set, check FIREBASE_PROJECT_ID"}
	}
	if d.cfg.APIURL != "" {
		return d.cfg.APIURL, nil
	}
	return fmt.Sprintf("%s/v1/projects/%s/messages:send",
		strings.TrimSuffix(d.cfg.BaseURL, "/"), url.PathEscape(d.cfg.ProjectID)), nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func validateContent(msg push.Message) error {
	if msg.Title == "" || msg.Body == "" {
		return push.ErrMissingContent
	}
	return nil
}
