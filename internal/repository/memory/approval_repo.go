package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/approval-relay/internal/domain"
)

// ApprovalRepo - in-memory хранилище заявок (database.driver=memory и тесты).
// Условное обновление выполняется под одной блокировкой, поэтому
// из двух конкурентных решений побеждает ровно одно.
type ApprovalRepo struct {
	mu    sync.RWMutex
	items map[string]*domain.ApprovalRequest
	now   func() time.Time
}

func NewApprovalRepo() *ApprovalRepo {
	return &ApprovalRepo{
		items: make(map[string]*domain.ApprovalRequest),
		now:   time.Now,
	}
}

func (r *ApprovalRepo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[app.ID]; ok {
		return domain.StoreError("create approval", fmt.Errorf("duplicate id %s", app.ID))
	}
	now := r.now()
	stored := clone(app)
	stored.CreatedAt, stored.UpdatedAt = now, now
	r.items[app.ID] = stored

	app.CreatedAt, app.UpdatedAt = now, now
	return nil
}

func (r *ApprovalRepo) GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(app), nil
}

func (r *ApprovalRepo) FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*domain.ApprovalRequest, 0)
	for _, app := range r.items {
		if status != "" && app.Status != status {
			continue
		}
		results = append(results, clone(app))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *ApprovalRepo) SaveForwardOutcome(ctx context.Context, id string, out domain.ForwardOutcome) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if out.MessageID != "" {
		app.ExternalMessageID = strPtr(out.MessageID)
	}
	if out.ConversationID != "" {
		app.ExternalConversationID = strPtr(out.ConversationID)
	}
	if out.Err != "" {
		app.LastError = strPtr(out.Err)
	} else {
		app.LastError = nil
		if out.MarkForwarded && app.Status == domain.StatusPending {
			app.Status = domain.StatusForwarded
		}
	}
	app.UpdatedAt = r.now()
	return clone(app), nil
}

// UpdateApprovalStatus - compare-and-swap: статус меняется только из pending/forwarded.
func (r *ApprovalRepo) UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, actor string) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !app.Status.IsDecidable() {
		return nil, &domain.AlreadyDecidedError{Status: app.Status}
	}
	app.Status = status
	app.ActorName = strPtr(actor)
	app.UpdatedAt = r.now()
	return clone(app), nil
}

func (r *ApprovalRepo) Ping(ctx context.Context) error {
	return nil
}

func clone(app *domain.ApprovalRequest) *domain.ApprovalRequest {
	c := *app
	c.ExternalMessageID = copyPtr(app.ExternalMessageID)
	c.ExternalConversationID = copyPtr(app.ExternalConversationID)
	c.ActorName = copyPtr(app.ActorName)
	c.LastError = copyPtr(app.LastError)
	return &c
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return strPtr(*s)
}

func strPtr(s string) *string { return &s }
