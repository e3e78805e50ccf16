package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/approval-relay/internal/audit"
)

type EventRepo struct {
	db DBTX
}

func NewEventRepo(db DBTX) *EventRepo {
	return &EventRepo{db: db}
}

// WriteBatch пакетная вставка событий журнала одним запросом.
func (r *EventRepo) WriteBatch(ctx context.Context, events []audit.LifecycleEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице approval_events
	const numFields = 8
	placeholders := make([]string, 0, len(events))
	vals := make([]any, 0, len(events)*numFields)

	for i, e := range events {
		p := i * numFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8))
		vals = append(vals, e.ID, e.RequestID, e.Kind, e.Status, e.Actor, e.Source, e.Detail, e.Timestamp)
	}

	query := fmt.Sprintf(
		"INSERT INTO approval_events (id, request_id, kind, status, actor, source, detail, timestamp) VALUES %s ON CONFLICT (id) DO NOTHING",
		strings.Join(placeholders, ","),
	)

	if _, err := r.db.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write lifecycle events: %w", err)
	}
	return nil
}

// FetchEvents история конкретной заявки в хронологическом порядке.
func (r *EventRepo) FetchEvents(ctx context.Context, requestID string) ([]audit.LifecycleEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, kind, status, COALESCE(actor, ''), COALESCE(source, ''), COALESCE(detail, ''), timestamp
		FROM approval_events WHERE request_id = $1 ORDER BY timestamp`, requestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query lifecycle events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.LifecycleEvent, 0)
	for rows.Next() {
		var e audit.LifecycleEvent
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Kind, &e.Status, &e.Actor, &e.Source, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan lifecycle event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
