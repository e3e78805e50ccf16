package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xela07ax/approval-relay/internal/audit"
)

// EventRepo хранит журнал жизненного цикла в памяти.
type EventRepo struct {
	mu     sync.RWMutex
	events map[string][]audit.LifecycleEvent
}

func NewEventRepo() *EventRepo {
	return &EventRepo{events: make(map[string][]audit.LifecycleEvent)}
}

func (r *EventRepo) WriteBatch(ctx context.Context, events []audit.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		r.events[e.RequestID] = append(r.events[e.RequestID], e)
	}
	return nil
}

func (r *EventRepo) FetchEvents(ctx context.Context, requestID string) ([]audit.LifecycleEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]audit.LifecycleEvent, len(r.events[requestID]))
	copy(out, r.events[requestID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
