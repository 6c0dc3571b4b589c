package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const (
	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

type outboxRecord struct {
	msg       domain.OutboxMessage
	status    string
	attempts  int
	createdAt time.Time
}

// OutboxRepository — in-memory outbox с порядком выдачи по времени постановки,
// как у PostgreSQL-реализации. Используется relay-воркером в тестах и локальных прогонах.
type OutboxRepository struct {
	mu      sync.RWMutex
	order   []string
	records map[string]*outboxRecord
	now     func() time.Time
}

// NewOutboxRepository создаёт пустой in-memory outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		records: make(map[string]*outboxRecord),
		now:     time.Now,
	}
}

// Enqueue ставит событие в очередь со статусом pending.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := r.records[msg.ID]; exists {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already exists", msg.ID)
	}

	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    statusPending,
		createdAt: r.now().UTC(),
	}
	r.order = append(r.order, msg.ID)
	return msg, nil
}

func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var pending []domain.OutboxMessage
	for _, id := range r.order {
		rec := r.records[id]
		if rec.status != statusPending {
			continue
		}
		pending = append(pending, rec.msg)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, id := range r.order {
		rec := r.records[id]
		if rec.status != statusPending {
			continue
		}
		if stats.PendingCount == 0 {
			stats.OldestPendingAt = rec.createdAt
		}
		stats.PendingCount++
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(id string) error {
	return r.finish(id, statusSent)
}

func (r *OutboxRepository) MarkFailed(id string) error {
	return r.finish(id, statusFailed)
}

func (r *OutboxRepository) finish(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok || rec.status != statusPending {
		return fmt.Errorf("outbox message %s is not pending: %w", id, domain.ErrOutboxPublish)
	}
	rec.status = status
	rec.attempts++
	return nil
}

// Status возвращает статус сообщения и число отметок; ok=false, если сообщения нет.
func (r *OutboxRepository) Status(id string) (status string, attempts int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return "", 0, false
	}
	return rec.status, rec.attempts, true
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
