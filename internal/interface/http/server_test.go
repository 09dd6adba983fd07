package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpush/notifier/internal/domain/shared"
	"github.com/chatpush/notifier/internal/infrastructure/messaging"
	"github.com/chatpush/notifier/internal/infrastructure/metrics"
	"github.com/chatpush/notifier/internal/interface/http/handlers"
	"github.com/chatpush/notifier/pkg/circuitbreaker"
	"github.com/chatpush/notifier/pkg/logger"
)

type capturePublisher struct {
	events []shared.Event
	err    error
}

func (p *capturePublisher) Publish(e shared.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newTestServer(t *testing.T, cfg Config, deps Dependencies) *Server {
	t.Helper()
	deps.Logger = logger.Discard()
	return NewServer(cfg, deps)
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestTrigger_Accepted(t *testing.T) {
	pub := &capturePublisher{}
	s := newTestServer(t, DefaultConfig(), Dependencies{Publisher: pub})

	rec, env := do(t, s, http.MethodPost, "/v1/triggers/chats/c1/messages/m1", `{"text":"hi","user":{"_id":"u1"}}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	require.Len(t, pub.events, 1)

	event := pub.events[0].(shared.MessageCreatedEvent)
	assert.Equal(t, "c1", event.ChatID)
	assert.Equal(t, "m1", event.MessageID)
	assert.Equal(t, handlers.TriggerSourceHTTP, event.Source)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), event.CorrelationID)
	assert.JSONEq(t, `{"text":"hi","user":{"_id":"u1"}}`, string(event.Document))
}

func TestTrigger_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"empty body", "/v1/triggers/chats/c1/messages/m1", ``, http.StatusBadRequest},
		{"not json", "/v1/triggers/chats/c1/messages/m1", `hello`, http.StatusBadRequest},
		{"json array", "/v1/triggers/chats/c1/messages/m1", `[1,2]`, http.StatusBadRequest},
		{"json null", "/v1/triggers/chats/c1/messages/m1", `null`, http.StatusBadRequest},
		{"chat id too long", "/v1/triggers/chats/" + strings.Repeat("c", 257) + "/messages/m1", `{}`, http.StatusBadRequest},
		{"unknown route", "/v1/triggers/chats/c1", `{}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			s := newTestServer(t, DefaultConfig(), Dependencies{Publisher: pub})

			rec, env := do(t, s, http.MethodPost, tt.path, tt.body, nil)

			assert.Equal(t, tt.code, rec.Code)
			assert.Empty(t, pub.events)
			if tt.code == http.StatusBadRequest {
				require.NotNil(t, env.Error)
				assert.Equal(t, "invalid_request", env.Error.Code)
			}
		})
	}
}

func TestTrigger_DottedIDsAccepted(t *testing.T) {
	pub := &capturePublisher{}
	s := newTestServer(t, DefaultConfig(), Dependencies{Publisher: pub})

	rec, _ := do(t, s, http.MethodPost, "/v1/triggers/chats/team.eu/messages/m.1", `{"text":"hi"}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.events, 1)
	event := pub.events[0].(shared.MessageCreatedEvent)
	assert.Equal(t, "team.eu", event.ChatID)
	assert.Equal(t, "m.1", event.MessageID)
}

func TestTrigger_BodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 16
	pub := &capturePublisher{}
	s := newTestServer(t, cfg, Dependencies{Publisher: pub})

	rec, _ := do(t, s, http.MethodPost, "/v1/triggers/chats/c1/messages/m1", `{"text":"this body is too long"}`, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, pub.events)
}

func TestTrigger_APIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKeys = []string{"k1"}
	pub := &capturePublisher{}
	s := newTestServer(t, cfg, Dependencies{Publisher: pub})
	path := "/v1/triggers/chats/c1/messages/m1"

	rec, env := do(t, s, http.MethodPost, path, `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	rec, _ = do(t, s, http.MethodPost, path, `{}`, map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, s, http.MethodPost, path, `{}`, map[string]string{"Authorization": "Bearer k1"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, pub.events, 1)
}

func TestTrigger_PublishErrors(t *testing.T) {
	pub := &capturePublisher{err: messaging.ErrEventBusClosed}
	s := newTestServer(t, DefaultConfig(), Dependencies{Publisher: pub})

	rec, _ := do(t, s, http.MethodPost, "/v1/triggers/chats/c1/messages/m1", `{}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	pub.err = errors.New("boom")
	rec, _ = do(t, s, http.MethodPost, "/v1/triggers/chats/c1/messages/m1", `{}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTrigger_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TriggerEnabled = false
	s := newTestServer(t, cfg, Dependencies{Publisher: &capturePublisher{}})

	rec, _ := do(t, s, http.MethodPost, "/v1/triggers/chats/c1/messages/m1", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	cb := circuitbreaker.New("push-gateway", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithTimeout(time.Hour))

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("postgres", handlers.NewPingCheck(stubPinger{}))
	health.AddInfoCheck("push_gateway", handlers.NewCircuitCheck(cb))
	s := newTestServer(t, DefaultConfig(), Dependencies{HealthChecker: health})

	rec, env := do(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Healthy)
	assert.False(t, status.Degraded)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	rec, env = do(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Degraded)
	assert.False(t, status.Checks["push_gateway"].Healthy)

	health.AddCheck("redis", handlers.NewPingCheck(stubPinger{err: errors.New("connection refused")}))
	rec, env = do(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.New()
	s := newTestServer(t, DefaultConfig(), Dependencies{Publisher: &capturePublisher{}, Metrics: rec})

	do(t, s, http.MethodPost, "/v1/triggers/chats/c1/messages/m1", `{}`, nil)

	resp, _ := do(t, s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `chat_notifier_http_requests_total{method="POST",path="/v1/triggers/chats/{chatID}/messages/{messageID}",status="202"} 1`)

	live, _ := do(t, s, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, live.Code)
}
