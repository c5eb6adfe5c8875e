package fcm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tinywideclouds/go-fcm-dispatch/internal/platform/fcm"
	"github.com/tinywideclouds/go-fcm-dispatch/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticSource struct {
	calls       int
	invalidated int
	err         error
	empty       bool
}

func (s *staticSource) Token(context.Context) (*oauth2.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.empty {
		return nil, nil
	}
	return &oauth2.Token{AccessToken: "ya29.test", TokenType: "Bearer"}, nil
}

func (s *staticSource) Invalidate(context.Context) error {
	s.invalidated++
	return nil
}

type recordedCall struct {
	path string
	auth string
	body map[string]any
}

// fakeGateway answers each request with the next status from script, or 200
// once the script is exhausted. reply builds the 2xx body.
type fakeGateway struct {
	mu     sync.Mutex
	calls  []recordedCall
	script []int
	reply  func(n int, body map[string]any) any
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	g.mu.Lock()
	n := len(g.calls)
	g.calls = append(g.calls, recordedCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
	status := http.StatusOK
	if n < len(g.script) {
		status = g.script[n]
	}
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 300 {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": http.StatusText(status)}})
		return
	}
	var doc any = map[string]any{"name": "projects/demo/messages/1"}
	if g.reply != nil {
		doc = g.reply(n, body)
	}
	_ = json.NewEncoder(w).Encode(doc)
}

func (g *fakeGateway) Calls() []recordedCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]recordedCall(nil), g.calls...)
}

func newDispatcher(t *testing.T, gw *fakeGateway, src *staticSource, mutate ...func(*fcm.Config)) *fcm.Dispatcher {
	t.Helper()
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)

	cfg := fcm.Config{
		ProjectID:  "demo",
		BaseURL:    server.URL,
		RetryDelay: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return fcm.NewDispatcher(cfg, src, server.Client(), newTestLogger())
}

func targetToken(c recordedCall) string {
	msg, _ := c.body["message"].(map[string]any)
	tok, _ := msg["token"].(string)
	return tok
}

func sampleMessage() push.Message {
	return push.NewBuilder().WithTitle("Hi").WithBody("There").Build()
}

func TestSendToTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("One call per token in input order", func(t *testing.T) {
		gw := &fakeGateway{}
		src := &staticSource{}
		d := newDispatcher(t, gw, src)

		ok, err := d.SendToTokens(ctx, sampleMessage(), []string{"tok-a", "tok-b", "tok-c"})

		require.NoError(t, err)
		assert.True(t, ok)
		calls := gw.Calls()
		require.Len(t, calls, 3)
		assert.Equal(t, []string{"tok-a", "tok-b", "tok-c"},
			[]string{targetToken(calls[0]), targetToken(calls[1]), targetToken(calls[2])})
		assert.Equal(t, "/v1/projects/demo/messages:send", calls[0].path)
		assert.Equal(t, "Bearer ya29.test", calls[0].auth)
		assert.Equal(t, 1, src.calls, "access token is acquired once per batch")
	})

	t.Run("Single string token", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, gw.Calls(), 1)
	})

	t.Run("Empty input makes no calls", func(t *testing.T) {
		for _, tokens := range []any{nil, "", []string{}} {
			gw := &fakeGateway{}
			src := &staticSource{}
			d := newDispatcher(t, gw, src)

			ok, err := d.SendToTokens(ctx, sampleMessage(), tokens)

			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, gw.Calls())
			assert.Zero(t, src.calls)
		}
	})

	t.Run("Unsupported token format is a caller error", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, sampleMessage(), 42)

		assert.False(t, ok)
		require.ErrorIs(t, err, push.ErrUnsupportedTokenFormat)
		assert.Empty(t, gw.Calls())
	})

	t.Run("A failing token does not stop the batch", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusOK, http.StatusBadRequest, http.StatusOK}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, sampleMessage(), []string{"t1", "t2", "t3"})

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, gw.Calls(), 3)
	})

	t.Run("2xx without a name is a failure", func(t *testing.T) {
		gw := &fakeGateway{reply: func(int, map[string]any) any {
			return map[string]any{"error": "quota"}
		}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Missing project id fails before any network activity", func(t *testing.T) {
		gw := &fakeGateway{}
		src := &staticSource{}
		d := newDispatcher(t, gw, src, func(c *fcm.Config) { c.ProjectID = "" })

		ok, err := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		assert.False(t, ok)
		var cfgErr *push.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Empty(t, gw.Calls())
		assert.Zero(t, src.calls)
	})

	t.Run("Auth failure makes no gateway calls", func(t *testing.T) {
		gw := &fakeGateway{}
		src := &staticSource{err: &push.AuthError{Err: errors.New("invalid_grant")}}
		d := newDispatcher(t, gw, src)

		ok, err := d.SendToTokens(ctx, sampleMessage(), []string{"t1", "t2"})

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, gw.Calls())
	})

	t.Run("Missing title is rejected locally", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, push.NewBuilder().WithBody("only body").Build(), "tok-a")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, gw.Calls())
	})

	t.Run("Concurrent fan-out reaches every token", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{}, func(c *fcm.Config) { c.TokenConcurrency = 4 })
		tokens := []string{"t1", "t2", "t3", "t4", "t5", "t6"}

		ok, err := d.SendToTokens(ctx, sampleMessage(), tokens)

		require.NoError(t, err)
		assert.True(t, ok)
		seen := map[string]bool{}
		for _, c := range gw.Calls() {
			seen[targetToken(c)] = true
		}
		assert.Len(t, seen, len(tokens))
	})
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("5xx is retried up to the attempt limit", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusInternalServerError, http.StatusServiceUnavailable}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, gw.Calls(), 3)
	})

	t.Run("Gives up after max attempts", func(t *testing.T) {
		gw := &fakeGateway{script: []int{500, 500, 500, 500}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, gw.Calls(), 3)
	})

	t.Run("429 is retried", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusTooManyRequests}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, _ := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		assert.True(t, ok)
		assert.Len(t, gw.Calls(), 2)
	})

	t.Run("400 is not retried", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusBadRequest}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, _ := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		assert.False(t, ok)
		assert.Len(t, gw.Calls(), 1)
	})

	t.Run("401 invalidates the cached access token", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusUnauthorized}}
		src := &staticSource{}
		d := newDispatcher(t, gw, src)

		ok, _ := d.SendToTokens(ctx, sampleMessage(), "tok-a")

		assert.False(t, ok)
		assert.Len(t, gw.Calls(), 1)
		assert.Equal(t, 1, src.invalidated)
	})
}

func TestSendToTopics(t *testing.T) {
	ctx := context.Background()

	t.Run("Several topics make one condition request", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTopics(ctx, sampleMessage(), []string{"news", "updates"})

		require.NoError(t, err)
		assert.True(t, ok)
		calls := gw.Calls()
		require.Len(t, calls, 1)
		msg := calls[0].body["message"].(map[string]any)
		assert.Equal(t, "'news' in topics || 'updates' in topics", msg["condition"])
		assert.NotContains(t, msg, "token")
		assert.NotContains(t, msg, "topic")
	})

	t.Run("Single topic uses the topic field", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTopics(ctx, sampleMessage(), "news")

		require.NoError(t, err)
		assert.True(t, ok)
		msg := gw.Calls()[0].body["message"].(map[string]any)
		assert.Equal(t, "news", msg["topic"])
		assert.NotContains(t, msg, "condition")
	})

	t.Run("No topics makes no calls", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTopics(ctx, sampleMessage(), []string{})

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, gw.Calls())
	})

	t.Run("Gateway rejection is false", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusNotFound}}
		d := newDispatcher(t, gw, &staticSource{})

		ok, err := d.SendToTopics(ctx, sampleMessage(), "news")

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSendRaw(t *testing.T) {
	ctx := context.Background()
	raw := push.RawPayload{"message": map[string]any{"token": "T", "data": map[string]any{"k": "v"}}}

	t.Run("Payload is posted verbatim", func(t *testing.T) {
		gw := &fakeGateway{reply: func(_ int, _ map[string]any) any {
			return map[string]any{"name": "projects/demo/messages/raw-1", "extra": 1.5}
		}}
		d := newDispatcher(t, gw, &staticSource{})

		resp, err := d.SendRaw(ctx, raw)

		require.NoError(t, err)
		assert.Equal(t, push.Response{"name": "projects/demo/messages/raw-1", "extra": 1.5}, resp)
		calls := gw.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, map[string]any{"message": map[string]any{"token": "T", "data": map[string]any{"k": "v"}}}, calls[0].body)
	})

	t.Run("Non-2xx is returned as a gateway error", func(t *testing.T) {
		gw := &fakeGateway{script: []int{http.StatusBadRequest}}
		d := newDispatcher(t, gw, &staticSource{})

		resp, err := d.SendRaw(ctx, raw)

		assert.Nil(t, resp)
		var gwErr *push.GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
		assert.JSONEq(t, `{"error":{"code":400,"message":"Bad Request"}}`, gwErr.Body)
		assert.Equal(t, push.KindGateway, push.Classify(err))
	})

	t.Run("Auth failure is returned", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{err: &push.AuthError{Err: errors.New("bad key")}})

		_, err := d.SendRaw(ctx, raw)

		assert.Equal(t, push.KindAuth, push.Classify(err))
		assert.Empty(t, gw.Calls())
	})

	t.Run("Empty payload is an input error", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})

		_, err := d.SendRaw(ctx, nil)

		require.ErrorIs(t, err, push.ErrInvalidInput)
		assert.Empty(t, gw.Calls())
	})
}

func TestMissingProjectID(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name string
		send func(d *fcm.Dispatcher) error
	}{
		{name: "tokens", send: func(d *fcm.Dispatcher) error {
			_, err := d.SendToTokens(ctx, sampleMessage(), []string{"t1", "t2"})
			return err
		}},
		{name: "topics", send: func(d *fcm.Dispatcher) error {
			_, err := d.SendToTopics(ctx, sampleMessage(), []string{"news", "updates"})
			return err
		}},
		{name: "raw", send: func(d *fcm.Dispatcher) error {
			_, err := d.SendRaw(ctx, push.RawPayload{"message": map[string]any{"topic": "x"}})
			return err
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{}
			src := &staticSource{}
			d := newDispatcher(t, gw, src, func(c *fcm.Config) { c.ProjectID = "" })

			err := tc.send(d)

			var cfgErr *push.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, push.KindConfig, push.Classify(err))
			assert.Empty(t, gw.Calls())
			assert.Zero(t, src.calls)
		})
	}
}

func TestNilAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("Batch send fails without calling the gateway", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{empty: true})

		ok, err := d.SendToTokens(ctx, sampleMessage(), []string{"t1", "t2"})

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, gw.Calls())
	})

	t.Run("Topic send fails without calling the gateway", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{empty: true})

		ok, err := d.SendToTopics(ctx, sampleMessage(), "news")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, gw.Calls())
	})

	t.Run("Raw send returns an auth error", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{empty: true})

		_, err := d.SendRaw(ctx, push.RawPayload{"message": map[string]any{"topic": "x"}})

		var authErr *push.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Empty(t, gw.Calls())
	})
}

func TestSend_RoutesByShape(t *testing.T) {
	ctx := context.Background()

	t.Run("Topic sets are sent as one condition", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})
		msg := push.NewBuilder().WithTitle("Hi").WithBody("There").WithTopics("news", "updates").Build()

		ok, err := d.Send(ctx, msg, "t1")

		require.NoError(t, err)
		assert.True(t, ok)
		calls := gw.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "'news' in topics || 'updates' in topics", calls[0].body["message"].(map[string]any)["condition"])
	})

	t.Run("Topics win over tokens", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})
		msg := push.NewBuilder().WithTitle("Hi").WithBody("There").WithTopic("news").Build()

		ok, err := d.Send(ctx, msg, []string{"t1", "t2"})

		require.NoError(t, err)
		assert.True(t, ok)
		calls := gw.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "news", calls[0].body["message"].(map[string]any)["topic"])
	})

	t.Run("Raw messages bypass rendering", func(t *testing.T) {
		gw := &fakeGateway{}
		d := newDispatcher(t, gw, &staticSource{})
		msg := push.NewBuilder().FromRaw(push.RawPayload{"message": map[string]any{"topic": "x"}}).Build()

		ok, err := d.Send(ctx, msg, nil)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, map[string]any{"message": map[string]any{"topic": "x"}}, gw.Calls()[0].body)
	})
}

func TestAPIURLOverride(t *testing.T) {
	gw := &fakeGateway{}
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)

	d := fcm.NewDispatcher(fcm.Config{
		ProjectID:  "demo",
		APIURL:     server.URL + "/custom/send",
		RetryDelay: time.Millisecond,
	}, &staticSource{}, server.Client(), newTestLogger())

	ok, err := d.SendToTokens(context.Background(), sampleMessage(), "tok-a")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/custom/send", gw.Calls()[0].path)
}
