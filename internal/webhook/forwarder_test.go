package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/approval-relay/internal/domain"
	"github.com/xela07ax/approval-relay/internal/infra"
	"go.uber.org/zap"
)

func testPayload() domain.WebhookPayload {
	return domain.WebhookPayload{
		ID:            "req-1",
		RequestorName: "Alice Lee",
		SystemName:    "Finance",
		RequestType:   "Access",
		Reason:        "Quarterly audit",
		RequestedAt:   "2026-03-01T09:30:00Z",
		SourceSystem:  "api",
	}
}

func newTestForwarder(url string, cfg infra.WebhookConfig) *Forwarder {
	cfg.URL = url
	return New(cfg, nil, infra.NewMetrics(nil), zap.NewNop())
}

func TestForwardSuccess(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message": {"id": "msg-42"}, "conversationId": "conv-1"}`))
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, infra.WebhookConfig{})
	corr, err := f.Forward(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, Correlation{MessageID: "msg-42", ConversationID: "conv-1"}, corr)
	assert.Equal(t, "req-1", received["id"])
	assert.Equal(t, "Alice Lee", received["requestorName"])
	assert.Equal(t, "2026-03-01T09:30:00Z", received["requestedAt"])
	assert.NotContains(t, received, "actorName")
}

func TestForwardSuccessWithoutCorrelation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	corr, err := newTestForwarder(srv.URL, infra.WebhookConfig{}).Forward(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Empty(t, corr.MessageID)
}

func TestForwardNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flow disabled", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestForwarder(srv.URL, infra.WebhookConfig{}).Forward(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForwarding)

	var fErr *ForwardError
	require.True(t, errors.As(err, &fErr))
	assert.Equal(t, http.StatusBadGateway, fErr.StatusCode)
	assert.Contains(t, fErr.Error(), "flow disabled")
}

func TestForwardTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := newTestForwarder(srv.URL, infra.WebhookConfig{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := f.Forward(context.Background(), testPayload())
	assert.ErrorIs(t, err, domain.ErrForwarding)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestForwardNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // порт закрыт

	_, err := newTestForwarder(url, infra.WebhookConfig{}).Forward(context.Background(), testPayload())
	assert.ErrorIs(t, err, domain.ErrForwarding)
}

func TestForwardCircuitBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestForwarder(srv.URL, infra.WebhookConfig{
		Breaker: infra.BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Minute},
	})

	for i := 0; i < 2; i++ {
		_, err := f.Forward(context.Background(), testPayload())
		require.ErrorIs(t, err, domain.ErrForwarding)
	}

	_, err := f.Forward(context.Background(), testPayload())
	assert.ErrorIs(t, err, domain.ErrForwarding)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open breaker must not hit the endpoint")
}
