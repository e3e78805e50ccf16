package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/approval-relay/internal/domain"
	"github.com/xela07ax/approval-relay/internal/infra"
	"github.com/xela07ax/approval-relay/internal/relay/handler"
	"github.com/xela07ax/approval-relay/internal/relay/service"
	"github.com/xela07ax/approval-relay/internal/repository/memory"
	"github.com/xela07ax/approval-relay/internal/webhook"
	"go.uber.org/zap"
)

type okForwarder struct{}

func (okForwarder) Forward(ctx context.Context, payload domain.WebhookPayload) (webhook.Correlation, error) {
	return webhook.Correlation{MessageID: "msg-1"}, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, store Pinger) *RelayServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	repo := memory.NewApprovalRepo()
	svc := service.NewApprovalService(service.Dependencies{
		Repo:      repo,
		Forwarder: okForwarder{},
		Metrics:   infra.NewMetrics(reg),
		Logger:    zap.NewNop(),
	}, service.Options{})
	if store == nil {
		store = repo
	}
	return NewRelayServer(zap.NewNop(), handler.NewApprovalHandler(svc, zap.NewNop()), store, reg)
}

func serve(s http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/ready", "", nil).Code)

	down := newTestServer(t, pingFunc(func(context.Context) error { return errors.New("db down") }))
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/ready", "", nil).Code)
	assert.Equal(t, http.StatusOK, serve(down, http.MethodGet, "/health", "", nil).Code)
}

func TestTraceIDHeader(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(s, http.MethodGet, "/health", "", map[string]string{TraceHeader: "trace-123"})
	assert.Equal(t, "trace-123", rec.Header().Get(TraceHeader))

	rec = serve(s, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestMetricsExposeSubmissions(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"requestorName":"Alice Lee","systemName":"Finance","requestType":"Access","reason":"Quarterly audit"}`
	rec := serve(s, http.MethodPost, "/api/requests", body, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(s, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_submissions_total 1")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/api/unknown", "", nil).Code)
}
