package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/approval-relay/internal/domain"
	"github.com/xela07ax/approval-relay/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
	maxErrorBody   = 512
)

// Correlation - идентификаторы, которые вернула внешняя система. Оба могут быть пустыми.
type Correlation struct {
	MessageID      string
	ConversationID string
}

// ForwardError - сетевая ошибка, таймаут, не-2xx или открытый предохранитель.
type ForwardError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *ForwardError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook call failed: %v", e.Cause)
}

func (e *ForwardError) Is(target error) bool { return target == domain.ErrForwarding }

func (e *ForwardError) Unwrap() error { return e.Cause }

// Forwarder выполняет один исходящий POST без повторов.
// Повтор - это отдельная явная операция "forward again" у оркестратора.
type Forwarder struct {
	url     string
	timeout time.Duration
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *infra.Metrics
	logger  *zap.Logger

	messageChain      []Extractor
	conversationChain []Extractor
}

// New создает Forwarder. URL передается явно из конфига, а не читается из глобального состояния.
func New(cfg infra.WebhookConfig, client *http.Client, metrics *infra.Metrics, logger *zap.Logger) *Forwarder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}

	f := &Forwarder{
		url:               cfg.URL,
		timeout:           timeout,
		client:            client,
		metrics:           metrics,
		logger:            logger.Named("webhook"),
		messageChain:      DefaultMessageExtractors(),
		conversationChain: DefaultConversationExtractors(),
	}

	threshold := cfg.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	// Настройка предохранителя: при лежащем webhook отвечаем сразу, не ожидая таймаута
	f.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "approval-webhook",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.metrics.CircuitBreakerState.Set(float64(to))
			f.logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f
}

// WithExtractors заменяет цепочки стратегий извлечения (nil - оставить текущую).
func (f *Forwarder) WithExtractors(message, conversation []Extractor) *Forwarder {
	if message != nil {
		f.messageChain = message
	}
	if conversation != nil {
		f.conversationChain = conversation
	}
	return f
}

// Forward отправляет payload. Ошибка всегда оборачивает domain.ErrForwarding.
func (f *Forwarder) Forward(ctx context.Context, payload domain.WebhookPayload) (Correlation, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	corr, err := f.forward(ctx, payload)
	f.metrics.ForwardDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		f.metrics.ForwardTotal.WithLabelValues("failure").Inc()
		f.logger.Warn("webhook forward failed",
			zap.String("request_id", payload.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Correlation{}, err
	}

	f.metrics.ForwardTotal.WithLabelValues("success").Inc()
	f.logger.Info("webhook forward succeeded",
		zap.String("request_id", payload.ID),
		zap.String("message_id", corr.MessageID),
		zap.String("conversation_id", corr.ConversationID),
		zap.Duration("elapsed", time.Since(start)))
	return corr, nil
}

func (f *Forwarder) forward(ctx context.Context, payload domain.WebhookPayload) (Correlation, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Correlation{}, &ForwardError{Cause: fmt.Errorf("rate limit: %w", err)}
		}
	}

	res, err := f.cb.Execute(func() (interface{}, error) {
		return f.post(ctx, payload)
	})
	if err != nil {
		var fErr *ForwardError
		if errors.As(err, &fErr) {
			return Correlation{}, fErr
		}
		// gobreaker.ErrOpenState / ErrTooManyRequests
		return Correlation{}, &ForwardError{Cause: err}
	}

	resp := res.(*Response)
	return Correlation{
		MessageID:      Extract(resp, f.messageChain),
		ConversationID: Extract(resp, f.conversationChain),
	}, nil
}

func (f *Forwarder) post(ctx context.Context, payload domain.WebhookPayload) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ForwardError{Cause: fmt.Errorf("encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, &ForwardError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &ForwardError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ForwardError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(raw)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &ForwardError{StatusCode: resp.StatusCode, Body: snippet}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
