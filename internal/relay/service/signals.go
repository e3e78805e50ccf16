package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/approval-relay/internal/domain"
	"github.com/xela07ax/approval-relay/internal/infra"
	"go.uber.org/zap"
)

// Signals - межпроцессные сигналы: публикация решений и блокировка повторной пересылки.
type Signals interface {
	PublishDecision(ctx context.Context, rec *domain.ApprovalRequest, source domain.DecisionSource) error
	AcquireForwardLock(ctx context.Context, requestID string, ttl time.Duration) (release func(), acquired bool, err error)
}

// DecisionSignal - сообщение в канале relay:approvals:decisions.
type DecisionSignal struct {
	ID                string                `json:"id"`
	Status            domain.ApprovalStatus `json:"status"`
	ActorName         string                `json:"actorName"`
	Source            domain.DecisionSource `json:"source"`
	ExternalMessageID string                `json:"externalMessageId,omitempty"`
	DecidedAt         time.Time             `json:"decidedAt"`
}

// Снимаем блокировку, только если она все еще наша
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisSignals struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisSignals(rdb *redis.Client, logger *zap.Logger) *RedisSignals {
	return &RedisSignals{rdb: rdb, logger: logger.Named("signals")}
}

func (r *RedisSignals) PublishDecision(ctx context.Context, rec *domain.ApprovalRequest, source domain.DecisionSource) error {
	msg := DecisionSignal{
		ID:        rec.ID,
		Status:    rec.Status,
		Source:    source,
		DecidedAt: rec.UpdatedAt,
	}
	if rec.ActorName != nil {
		msg.ActorName = *rec.ActorName
	}
	if rec.ExternalMessageID != nil {
		msg.ExternalMessageID = *rec.ExternalMessageID
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("signals: encode decision: %w", err)
	}
	if err := r.rdb.Publish(ctx, infra.RedisChanApprovalDecisions, payload).Err(); err != nil {
		return fmt.Errorf("signals: publish decision: %w", err)
	}
	return nil
}

// AcquireForwardLock - SetNX с уникальным токеном и TTL.
func (r *RedisSignals) AcquireForwardLock(ctx context.Context, requestID string, ttl time.Duration) (func(), bool, error) {
	key := infra.ForwardLockKey(requestID)
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("signals: acquire forward lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// Background: запрос мог уже завершиться
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.rdb, []string{key}, token).Err(); err != nil {
			r.logger.Warn("failed to release forward lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

// NoopSignals используется, когда Redis не настроен.
type NoopSignals struct{}

func (NoopSignals) PublishDecision(context.Context, *domain.ApprovalRequest, domain.DecisionSource) error {
	return nil
}

func (NoopSignals) AcquireForwardLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
