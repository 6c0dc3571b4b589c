package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/metrics"
	"github.com/vladislavdragonenkov/scm/internal/storage/memory"
)

func enqueueRegistered(t *testing.T, repo *memory.OutboxRepository, orderID string) domain.OutboxMessage {
	t.Helper()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregatePurchaseOrder,
		AggregateID:   orderID,
		EventType:     domain.EventPurchaseOrderRegistered,
		Payload:       []byte(`{"order_id":` + orderID + `}`),
	})
	require.NoError(t, err)
	return msg
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	first := enqueueRegistered(t, repo, "1")
	second := enqueueRegistered(t, repo, "2")
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))
	result := worker.ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Pulled: 2, Sent: 2}, result)
	assert.Equal(t, []string{first.ID, second.ID}, publisher.publishedIDs())

	status, _, _ := repo.Status(first.ID)
	assert.Equal(t, "sent", status)

	again := worker.ProcessOnce(context.Background())
	assert.Equal(t, BatchResult{}, again)
}

func TestWorker_ProcessOnce_FailedGoesToDLQ(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	msg := enqueueRegistered(t, repo, "7")
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	logger, hook := logtest.NewNullLogger()

	worker := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithLogger(logger.WithField("component", "outbox-relay")),
	)
	result := worker.ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Pulled: 1, Failed: 1}, result)
	assert.Equal(t, 3, publisher.calls())
	require.Equal(t, 1, dlq.calls())

	status, _, _ := repo.Status(msg.ID)
	assert.Equal(t, "failed", status)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &envelope))
	assert.Equal(t, msg.ID, envelope["outbox_id"])
	assert.Contains(t, envelope["publish_error"], "broker unavailable")
	assert.Equal(t, map[string]any{"order_id": float64(7)}, envelope["payload"])

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "публикация события не удалась", hook.LastEntry().Message)
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueueRegistered(t, repo, "3")
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}
	reg := prometheus.NewRegistry()

	worker := NewWorker(repo, publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
	)
	result := worker.ProcessOnce(context.Background())

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 3, publisher.calls())

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	var pending float64 = -1
	for _, family := range families {
		switch family.GetName() {
		case "scm_outbox_publish_attempts_total":
			for _, m := range family.GetMetric() {
				counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
			}
		case "scm_outbox_pending_records":
			pending = family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(2), counts[metrics.PublishRetryError])
	assert.Equal(t, float64(1), counts[metrics.PublishSent])
	assert.Equal(t, float64(0), pending)
}

func TestWorker_ProcessOnce_CanceledContext(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueueRegistered(t, repo, "1")
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewWorker(repo, publisher).ProcessOnce(ctx)
	assert.Equal(t, BatchResult{}, result)
	assert.Zero(t, publisher.calls())
}

func TestWorker_CancelDuringBackoffKeepsPending(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	msg := enqueueRegistered(t, repo, "1")

	ctx, cancel := context.WithCancel(context.Background())
	publisher := &stubPublisher{err: errors.New("down"), onPublish: cancel}

	result := NewWorker(repo, publisher, WithRetryBaseDelay(time.Hour)).ProcessOnce(ctx)

	assert.Zero(t, result.Failed)
	status, _, _ := repo.Status(msg.ID)
	assert.Equal(t, "pending", status)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := memory.NewOutboxRepository()
	enqueueRegistered(t, repo, "1")
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWorker(repo, publisher, WithPollInterval(10*time.Millisecond)).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return publisher.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_RunWithoutPublisherReturns(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		NewWorker(memory.NewOutboxRepository(), nil).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher should return immediately")
	}
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	w := NewWorker(nil, nil, WithRetryBaseDelay(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, w.retryBackoff(1))
	assert.Equal(t, 100*time.Millisecond, w.retryBackoff(2))
	assert.Equal(t, 200*time.Millisecond, w.retryBackoff(3))

	huge := NewWorker(nil, nil, WithRetryBaseDelay(time.Duration(1<<62)))
	assert.Equal(t, time.Duration(1<<63-1), huge.retryBackoff(3))

	none := NewWorker(nil, nil, WithRetryBaseDelay(0))
	assert.Zero(t, none.retryBackoff(5))
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	onPublish      func()
	published      []domain.OutboxMessage
	callCount      int
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if s.onPublish != nil {
		s.onPublish()
	}

	err := s.err
	if len(s.sequenceErrors) > 0 {
		err = s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
	}
	if err == nil {
		s.published = append(s.published, event)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

func (s *stubPublisher) publishedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		ids = append(ids, msg.ID)
	}
	return ids
}
