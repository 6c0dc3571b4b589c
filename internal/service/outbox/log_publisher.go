package outbox

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
)

// LogPublisher пишет события в лог. Используется relay, когда Kafka не настроена.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт publisher поверх logger.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.EventType,
		"payload":        string(event.Payload),
	}).Info("событие outbox опубликовано")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
