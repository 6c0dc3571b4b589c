package kafka

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka topic.
// Ключ сообщения — id заказа, так события одного заказа попадают в одну партицию.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт publisher; пустой topic заменяется на TopicPurchaseOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicPurchaseOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// Topic возвращает целевой topic.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	value, err := json.Marshal(NewEnvelope(event, p.producer.now()))
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	return p.producer.Send(p.topic, key, value, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderOutboxID:      event.ID,
		HeaderAggregateType: event.AggregateType,
	})
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
