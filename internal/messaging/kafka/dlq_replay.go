package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// ReplayConfig — параметры повторной публикации событий из DLQ.
type ReplayConfig struct {
	SourceTopic string
	Limit       int
	FromNewest  bool
	IdleTimeout time.Duration
	// Без Execute кандидаты только логируются.
	Execute bool
}

type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// DLQReplayer читает DLQ-топик и заново публикует исходные события заказов.
type DLQReplayer struct {
	cfg       ReplayConfig
	client    offsetClient
	consumer  partitionConsumerSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

// NewDLQReplayer подключается к брокерам. publisher обязателен только при cfg.Execute.
func NewDLQReplayer(brokers []string, cfg ReplayConfig, publisher domain.OutboxPublisher, logger *log.Entry) (*DLQReplayer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return newDLQReplayer(cfg, client, saramaConsumerAdapter{consumer: consumer}, publisher, logger), nil
}

func newDLQReplayer(cfg ReplayConfig, client offsetClient, consumer partitionConsumerSource, publisher domain.OutboxPublisher, logger *log.Entry) *DLQReplayer {
	if cfg.SourceTopic == "" {
		cfg.SourceTopic = TopicDeadLetterQueue
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultReplayLimit
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &DLQReplayer{cfg: cfg, client: client, consumer: consumer, publisher: publisher, logger: logger}
}

// Close закрывает consumer и client.
func (r *DLQReplayer) Close() error {
	var errs []error
	if r.consumer != nil {
		errs = append(errs, r.consumer.Close())
	}
	if r.client != nil {
		errs = append(errs, r.client.Close())
	}
	return errors.Join(errs...)
}

// Run проходит партиции DLQ по возрастанию номера, пока не наберёт Limit сообщений.
func (r *DLQReplayer) Run(ctx context.Context) (ReplayStats, error) {
	var total ReplayStats
	if r.cfg.Execute && r.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.SourceTopic).Warn("в DLQ-топике нет партиций")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= r.cfg.Limit {
			break
		}
		stats, err := r.processPartition(ctx, partition, r.cfg.Limit-total.Processed)
		total.Processed += stats.Processed
		total.Replayed += stats.Replayed
		total.Skipped += stats.Skipped
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("проход по DLQ завершён")

	return total, nil
}

func (r *DLQReplayer) processPartition(ctx context.Context, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(r.cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.IdleTimeout)

			stats.Processed++
			if err := r.replay(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

func (r *DLQReplayer) replay(msg *sarama.ConsumerMessage, stats *ReplayStats) error {
	event, ok, err := DecodeDLQMessage(msg.Value)
	if err != nil || !ok {
		stats.Skipped++
		r.logger.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("сообщение DLQ пропущено")
		return nil
	}

	if r.cfg.Execute {
		if err := r.publisher.Publish(event); err != nil {
			return fmt.Errorf("replay outbox message %s: %w", event.ID, err)
		}
	} else {
		r.logger.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"outbox_id":    event.ID,
			"aggregate_id": event.AggregateID,
		}).Info("кандидат на повторную публикацию")
	}
	stats.Replayed++
	return nil
}

// dlqPayload — тело, которое relay-воркер кладёт в DLQ вместо исходного payload.
type dlqPayload struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// DecodeDLQMessage восстанавливает исходное outbox-сообщение из DLQ-конверта.
// ok=false означает чужое сообщение, которое нужно пропустить.
func DecodeDLQMessage(value []byte) (domain.OutboxMessage, bool, error) {
	var envelope Envelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.OutboxMessage{}, false, nil
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return domain.OutboxMessage{}, false, nil
	}

	var inner dlqPayload
	if err := json.Unmarshal(envelope.Payload, &inner); err != nil {
		return domain.OutboxMessage{}, false, fmt.Errorf("decode dlq payload: %w", err)
	}
	if len(inner.Payload) == 0 {
		return domain.OutboxMessage{}, false, errors.New("dlq payload does not contain original event payload")
	}

	return domain.OutboxMessage{
		ID:            firstNonEmpty(inner.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(inner.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(inner.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(inner.EventType, envelope.EventType),
		Payload:       []byte(inner.Payload),
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
