package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/approval-relay/internal/audit"
	"github.com/xela07ax/approval-relay/internal/domain"
	"github.com/xela07ax/approval-relay/internal/infra"
	"github.com/xela07ax/approval-relay/internal/webhook"
	"go.uber.org/zap"
)

const (
	forwardLockTTL = 30 * time.Second // больше таймаута webhook
	maxListLimit   = 100
)

// ApprovalRepository описывает требования к хранилищу заявок
type ApprovalRepository interface {
	CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error
	GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error)
	SaveForwardOutcome(ctx context.Context, id string, out domain.ForwardOutcome) (*domain.ApprovalRequest, error)
	// UpdateApprovalStatus - атомарный compare-and-swap из pending/forwarded
	UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, actor string) (*domain.ApprovalRequest, error)
	Ping(ctx context.Context) error
}

// Forwarder - исходящий вызов webhook
type Forwarder interface {
	Forward(ctx context.Context, payload domain.WebhookPayload) (webhook.Correlation, error)
}

type Options struct {
	FailurePolicy string // infra.FailurePolicyBestEffort | infra.FailurePolicyStrict
	MarkForwarded bool
}

type Dependencies struct {
	Repo      ApprovalRepository
	Forwarder Forwarder
	Journal   audit.Recorder
	Events    EventReader
	Signals   Signals
	Metrics   *infra.Metrics
	Logger    *zap.Logger
}

// ApprovalService - оркестратор жизненного цикла заявки: Submit, Forward, Decide, GetStatus.
type ApprovalService struct {
	repo      ApprovalRepository
	forwarder Forwarder
	journal   audit.Recorder
	events    EventReader
	signals   Signals
	metrics   *infra.Metrics
	logger    *zap.Logger
	opts      Options

	newID func() string
	now   func() time.Time
}

func NewApprovalService(deps Dependencies, opts Options) *ApprovalService {
	if deps.Signals == nil {
		deps.Signals = NoopSignals{}
	}
	if deps.Metrics == nil {
		deps.Metrics = infra.NewMetrics(nil)
	}
	if deps.Journal == nil {
		deps.Journal = discardRecorder{}
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = infra.FailurePolicyBestEffort
	}
	return &ApprovalService{
		repo:      deps.Repo,
		forwarder: deps.Forwarder,
		journal:   deps.Journal,
		events:    deps.Events,
		signals:   deps.Signals,
		metrics:   deps.Metrics,
		logger:    deps.Logger.Named("approval-service"),
		opts:      opts,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Submit создает заявку в статусе pending и пересылает ее во внешний workflow.
// Ошибка пересылки не отменяет создание записи: при best_effort возвращается запись без ошибки,
// при strict - запись вместе с ошибкой, оборачивающей domain.ErrForwarding.
func (s *ApprovalService) Submit(ctx context.Context, sub domain.Submission) (*domain.ApprovalRequest, error) {
	// 1. Валидация до любого обращения к хранилищу и сети
	if err := sub.Validate(); err != nil {
		s.observeError(err)
		return nil, err
	}

	// 2. Persistence Layer
	rec := domain.NewApprovalRequest(s.newID(), sub, s.now())
	if err := s.repo.CreateApproval(ctx, rec); err != nil {
		s.observeError(err)
		s.logger.Error("failed to create approval request", zap.Error(err))
		return nil, err
	}
	s.metrics.Submissions.Inc()
	s.journal.Log(audit.LifecycleEvent{
		RequestID: rec.ID,
		Kind:      audit.KindSubmitted,
		Status:    string(rec.Status),
		Source:    rec.SourceSystem,
	})

	// 3. Пересылка (best-effort)
	updated, err := s.forward(ctx, rec)
	if updated != nil {
		rec = updated
	}
	if err != nil {
		if errors.Is(err, domain.ErrStore) || s.opts.FailurePolicy == infra.FailurePolicyStrict {
			return rec, err
		}
		s.logger.Warn("approval request created, forwarding deferred",
			zap.String("request_id", rec.ID),
			zap.Error(err))
	}

	s.logger.Info("approval request submitted",
		zap.String("request_id", rec.ID),
		zap.String("requestor", rec.RequestorName),
		zap.String("system", rec.SystemName),
		zap.String("status", string(rec.Status)))
	return rec, nil
}

// Forward повторно пересылает существующую заявку (явный "forward again").
// Ошибка пересылки возвращается всегда, независимо от политики.
func (s *ApprovalService) Forward(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	rec, err := s.repo.GetApprovalByID(ctx, id)
	if err != nil {
		s.observeError(err)
		return nil, err
	}
	if rec.Status.IsTerminal() {
		err := &domain.AlreadyDecidedError{Status: rec.Status}
		s.observeError(err)
		return rec, err
	}

	// Блокировка от параллельной повторной пересылки одной и той же заявки
	release, acquired, err := s.signals.AcquireForwardLock(ctx, id, forwardLockTTL)
	switch {
	case err != nil:
		// Redis недоступен: пересылка важнее блокировки
		s.logger.Warn("forward lock unavailable, proceeding without it", zap.String("request_id", id), zap.Error(err))
	case !acquired:
		s.observeError(domain.ErrForwardInProgress)
		return rec, fmt.Errorf("request %s: %w", id, domain.ErrForwardInProgress)
	default:
		defer release()
	}

	updated, err := s.forward(ctx, rec)
	if updated == nil {
		return rec, err
	}
	return updated, err
}

// forward строит payload, вызывает webhook и сохраняет результат.
// Возвращает nil-запись только при сбое хранилища.
func (s *ApprovalService) forward(ctx context.Context, rec *domain.ApprovalRequest) (*domain.ApprovalRequest, error) {
	// Отмена входящего HTTP-запроса не прерывает вызов webhook и сохранение результата:
	// вызов ограничен собственным таймаутом
	ctx = context.WithoutCancel(ctx)

	payload := domain.BuildPayload(rec)
	corr, fwdErr := s.forwarder.Forward(ctx, payload)

	out := domain.ForwardOutcome{MarkForwarded: s.opts.MarkForwarded}
	event := audit.LifecycleEvent{RequestID: rec.ID, Kind: audit.KindForwarded}
	if fwdErr != nil {
		out.Err = fwdErr.Error()
		event.Kind = audit.KindForwardFailed
		event.Detail = out.Err
		s.observeError(fwdErr)
	} else {
		out.MessageID = corr.MessageID
		out.ConversationID = corr.ConversationID
		event.Detail = corr.MessageID
	}

	updated, err := s.repo.SaveForwardOutcome(ctx, rec.ID, out)
	if err != nil {
		s.observeError(err)
		s.logger.Error("failed to persist forward outcome",
			zap.String("request_id", rec.ID),
			zap.NamedError("forward_error", fwdErr),
			zap.Error(err))
		return nil, err
	}

	event.Status = string(updated.Status)
	s.journal.Log(event)
	return updated, fwdErr
}

// Decide фиксирует решение. Прямой вызов API и callback проходят через один и тот же путь.
func (s *ApprovalService) Decide(ctx context.Context, id, token, actor string, source domain.DecisionSource) (*domain.ApprovalRequest, error) {
	// 1. Нормализуем токен (approve -> approved)
	status, err := domain.ParseDecision(token)
	if err != nil {
		s.observeError(err)
		return nil, err
	}

	// 2. Быстрая проверка по текущему состоянию
	rec, err := s.repo.GetApprovalByID(ctx, id)
	if err != nil {
		s.observeError(err)
		return nil, err
	}
	if err := rec.CanTransitionTo(status); err != nil {
		s.observeError(err)
		return nil, err
	}

	// 3. Атомарно обновляем БД: из двух конкурентных решений проходит одно
	actorName := domain.ResolveActor(actor)
	updated, err := s.repo.UpdateApprovalStatus(ctx, id, status, actorName)
	if err != nil {
		s.observeError(err)
		s.logger.Warn("failed to persist approval decision",
			zap.String("request_id", id),
			zap.String("actor", actorName),
			zap.Error(err))
		return nil, err
	}

	s.metrics.Decisions.WithLabelValues(string(status), string(source)).Inc()
	s.journal.Log(audit.LifecycleEvent{
		RequestID: id,
		Kind:      audit.KindDecided,
		Status:    string(updated.Status),
		Actor:     actorName,
		Source:    string(source),
	})

	// 4. Сигнал подписчикам. Решение уже сохранено, поэтому сбой Redis только логируем
	if err := s.signals.PublishDecision(ctx, updated, source); err != nil {
		s.logger.Warn("decision saved but signal not delivered",
			zap.String("request_id", id),
			zap.Error(err))
	}

	s.logger.Info("decision recorded",
		zap.String("request_id", id),
		zap.String("actor", actorName),
		zap.String("source", string(source)),
		zap.String("result", string(updated.Status)))
	return updated, nil
}

// GetStatus - чтение текущего состояния заявки.
func (s *ApprovalService) GetStatus(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	rec, err := s.repo.GetApprovalByID(ctx, id)
	if err != nil {
		s.observeError(err)
		return nil, err
	}
	return rec, nil
}

// List - очередь заявок, новые первыми.
func (s *ApprovalService) List(ctx context.Context, status string, limit int) ([]*domain.ApprovalRequest, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		s.observeError(err)
		return nil, err
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	list, err := s.repo.FindApprovals(ctx, st, limit)
	if err != nil {
		s.observeError(err)
		return nil, err
	}
	s.logger.Debug("approvals listed", zap.String("status", string(st)), zap.Int("count", len(list)))
	return list, nil
}

// Ping - readiness хранилища
func (s *ApprovalService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *ApprovalService) observeError(err error) {
	var kind string
	switch {
	case errors.Is(err, domain.ErrValidation):
		kind = "validation"
	case errors.Is(err, domain.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, domain.ErrAlreadyDecided), errors.Is(err, domain.ErrForwardInProgress):
		kind = "conflict"
	case errors.Is(err, domain.ErrInvalidStatus):
		kind = "invalid_status"
	case errors.Is(err, domain.ErrForwarding):
		kind = "forwarding"
	default:
		kind = "store"
	}
	s.metrics.ErrorTotal.WithLabelValues(kind).Inc()
}

type discardRecorder struct{}

func (discardRecorder) Log(audit.LifecycleEvent) {}
