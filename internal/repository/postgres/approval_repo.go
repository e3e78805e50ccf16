package postgres

/*
Файл approval_repo.go содержит хранилище заявок на согласование.
Переход в терминальный статус выполняется одним условным UPDATE, без чтения перед записью.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/approval-relay/internal/domain"
)

const approvalColumns = `id, requestor_name, system_name, request_type, reason, requested_at, source_system,
	status, external_message_id, external_conversation_id, actor_name, last_error, created_at, updated_at`

type ApprovalRepo struct {
	db DBTX
}

func NewApprovalRepo(db DBTX) *ApprovalRepo {
	return &ApprovalRepo{db: db}
}

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var app domain.ApprovalRequest
	err := row.Scan(
		&app.ID,
		&app.RequestorName,
		&app.SystemName,
		&app.RequestType,
		&app.Reason,
		&app.RequestedAt,
		&app.SourceSystem,
		&app.Status,
		&app.ExternalMessageID, // NULL -> nil
		&app.ExternalConversationID,
		&app.ActorName,
		&app.LastError,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// CreateApproval вставляет новую заявку. created_at/updated_at проставляет база.
func (r *ApprovalRepo) CreateApproval(ctx context.Context, app *domain.ApprovalRequest) error {
	query := `INSERT INTO approval_requests (id, requestor_name, system_name, request_type, reason, requested_at, source_system, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		app.ID, app.RequestorName, app.SystemName, app.RequestType, app.Reason,
		app.RequestedAt, app.SourceSystem, app.Status,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return domain.StoreError("create approval", err)
	}
	return nil
}

// GetApprovalByID получение заявки по идентификатору.
func (r *ApprovalRepo) GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`

	app, err := scanApproval(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StoreError("get approval", err)
	}
	return app, nil
}

// FindApprovals фильтрация и выборка списка заявок (очередь решений).
func (r *ApprovalRepo) FindApprovals(ctx context.Context, status domain.ApprovalStatus, limit int) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests`

	var args []any
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.StoreError("query approvals", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		app, err := scanApproval(rows)
		if err != nil {
			return nil, domain.StoreError("scan approval", err)
		}
		results = append(results, app)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("rows iteration", err)
	}
	return results, nil
}

// SaveForwardOutcome сохраняет идентификаторы корреляции или ошибку пересылки.
// Статус forwarded выставляется только из pending, терминальный статус не трогается.
func (r *ApprovalRepo) SaveForwardOutcome(ctx context.Context, id string, out domain.ForwardOutcome) (*domain.ApprovalRequest, error) {
	query := `
		UPDATE approval_requests
		SET external_message_id      = COALESCE(NULLIF($2, ''), external_message_id),
		    external_conversation_id = COALESCE(NULLIF($3, ''), external_conversation_id),
		    last_error               = NULLIF($4, ''),
		    status = CASE WHEN $5 AND $4 = '' AND status = 'pending' THEN 'forwarded' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + approvalColumns

	app, err := scanApproval(r.db.QueryRow(ctx, query, id, out.MessageID, out.ConversationID, out.Err, out.MarkForwarded))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StoreError("save forward outcome", err)
	}
	return app, nil
}

// UpdateApprovalStatus атомарно фиксирует решение.
// Условие WHERE status IN ('pending','forwarded') исключает Double Decision:
// из двух конкурентных запросов строку обновит только один.
func (r *ApprovalRepo) UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus, actor string) (*domain.ApprovalRequest, error) {
	query := `
		UPDATE approval_requests
		SET status = $2,
		    actor_name = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'forwarded')
		RETURNING ` + approvalColumns

	app, err := scanApproval(r.db.QueryRow(ctx, query, id, status, actor))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.StoreError("update approval status", err)
	}

	// Строк не найдено: либо ID неверный, либо решение уже принято.
	// Запись уже не изменить, чтение нужно только для классификации ошибки.
	var current domain.ApprovalStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM approval_requests WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.StoreError("read approval status", err)
	}
	return nil, &domain.AlreadyDecidedError{Status: current}
}

// Ping проверяет доступность базы (readiness)
func (r *ApprovalRepo) Ping(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `SELECT 1`)
	return err
}
