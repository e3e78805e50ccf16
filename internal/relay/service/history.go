package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/approval-relay/internal/audit"
)

// EventReader описывает контракт для чтения журнала жизненного цикла.
type EventReader interface {
	FetchEvents(ctx context.Context, requestID string) ([]audit.LifecycleEvent, error)
}

// History возвращает историю событий заявки. Неизвестный id - domain.ErrNotFound.
func (s *ApprovalService) History(ctx context.Context, id string) ([]audit.LifecycleEvent, error) {
	if _, err := s.GetStatus(ctx, id); err != nil {
		return nil, err
	}
	if s.events == nil {
		return []audit.LifecycleEvent{}, nil
	}
	events, err := s.events.FetchEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("approval_service: failed to fetch history: %w", err)
	}
	return events, nil
}
