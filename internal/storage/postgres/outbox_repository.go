package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const (
	outboxStatusSent   = "sent"
	outboxStatusFailed = "failed"

	defaultOutboxBatch = 100
)

// outboxRepository — сторона чтения outbox_messages для relay-воркера.
// Строки вставляет движок заказов внутри транзакции регистрации.
type outboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB(), now: time.Now}
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, ClassifyError(fmt.Errorf("pull pending outbox messages: %w", err))
	}
	defer rows.Close()

	var pending []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, ClassifyError(fmt.Errorf("scan outbox message: %w", err))
		}
		pending = append(pending, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, ClassifyError(fmt.Errorf("iterate outbox messages: %w", err))
	}

	return pending, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, ClassifyError(fmt.Errorf("outbox stats: %w", err))
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.finish(id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.finish(id, outboxStatusFailed)
}

// finish переводит pending-сообщение в конечный статус. Повторная отметка
// уже обработанного сообщения возвращает domain.ErrOutboxPublish.
func (r *outboxRepository) finish(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, status, r.now().UTC())
	if err != nil {
		return ClassifyError(fmt.Errorf("mark outbox message %s as %s: %w", id, status, err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ClassifyError(fmt.Errorf("rows affected for outbox %s: %w", status, err))
	}
	if affected == 0 {
		return fmt.Errorf("outbox message %s is not pending: %w", id, domain.ErrOutboxPublish)
	}

	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
