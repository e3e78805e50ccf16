package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/approval-relay/internal/domain"
	"github.com/xela07ax/approval-relay/internal/infra"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisSignalsForwardLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	signals := NewRedisSignals(rdb, zap.NewNop())
	ctx := context.Background()

	release, ok, err := signals.AcquireForwardLock(ctx, "req-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(infra.ForwardLockKey("req-1")))

	_, ok, err = signals.AcquireForwardLock(ctx, "req-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(infra.ForwardLockKey("req-1")))

	_, ok, err = signals.AcquireForwardLock(ctx, "req-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisSignalsReleaseKeepsForeignLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	signals := NewRedisSignals(rdb, zap.NewNop())

	release, ok, err := signals.AcquireForwardLock(context.Background(), "req-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Блокировка истекла и досталась другому процессу
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(infra.ForwardLockKey("req-1"), "other-owner"))

	release()
	got, err := mr.Get(infra.ForwardLockKey("req-1"))
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestRedisSignalsPublishDecision(t *testing.T) {
	_, rdb := newTestRedis(t)
	signals := NewRedisSignals(rdb, zap.NewNop())
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, infra.RedisChanApprovalDecisions)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	actor, msgID := "Bob", "msg-1"
	rec := &domain.ApprovalRequest{
		ID:                "req-1",
		Status:            domain.StatusApproved,
		ActorName:         &actor,
		ExternalMessageID: &msgID,
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, signals.PublishDecision(ctx, rec, domain.SourceCallback))

	select {
	case msg := <-sub.Channel():
		var got DecisionSignal
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "req-1", got.ID)
		assert.Equal(t, domain.StatusApproved, got.Status)
		assert.Equal(t, "Bob", got.ActorName)
		assert.Equal(t, domain.SourceCallback, got.Source)
		assert.Equal(t, "msg-1", got.ExternalMessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("decision signal not received")
	}
}

func TestForwardRejectedWhileLockHeld(t *testing.T) {
	mr, rdb := newTestRedis(t)
	env := newTestEnv(t, Options{})
	env.svc.signals = NewRedisSignals(rdb, zap.NewNop())
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, aliceSubmission())
	require.NoError(t, err)

	require.NoError(t, mr.Set(infra.ForwardLockKey(rec.ID), "another-replica"))
	_, err = env.svc.Forward(ctx, rec.ID)
	assert.ErrorIs(t, err, domain.ErrForwardInProgress)
	assert.Equal(t, 1, env.fwd.calls())

	mr.Del(infra.ForwardLockKey(rec.ID))
	_, err = env.svc.Forward(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, env.fwd.calls())
	assert.False(t, mr.Exists(infra.ForwardLockKey(rec.ID)))
}

func TestForwardProceedsWhenRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	env := newTestEnv(t, Options{})
	env.svc.signals = NewRedisSignals(rdb, zap.NewNop())
	ctx := context.Background()

	rec, err := env.svc.Submit(ctx, aliceSubmission())
	require.NoError(t, err)
	mr.Close()

	_, err = env.svc.Forward(ctx, rec.ID)
	require.NoError(t, err)

	// Сбой публикации не отменяет сохраненное решение
	decided, err := env.svc.Decide(ctx, rec.ID, "approve", "Bob", domain.SourceAPI)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, decided.Status)
}
