package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/scm/internal/domain"
	"github.com/vladislavdragonenkov/scm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/scm/internal/metrics"
	"github.com/vladislavdragonenkov/scm/internal/service/outbox"
	"github.com/vladislavdragonenkov/scm/internal/version"
)

// Relay — outbox-воркер вместе с producer, который нужно закрыть после остановки.
type Relay struct {
	Worker   *outbox.Worker
	producer *kafka.Producer
	logger   *log.Entry
}

// NewRelay собирает relay поверх outbox-репозитория. Без kafka.brokers события уходят в лог.
func NewRelay(cfg Config, repo domain.OutboxRepository, m *metrics.OutboxMetrics, logger *log.Entry) (*Relay, error) {
	if logger == nil {
		logger = log.WithField("component", "outbox-relay")
	}

	publisher, dlq, producer, err := initPublishers(cfg.Kafka, logger)
	if err != nil {
		return nil, err
	}

	options := []outbox.Option{
		outbox.WithLogger(logger),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.Outbox.RetryBaseDelay),
	}
	if dlq != nil {
		options = append(options, outbox.WithDLQPublisher(dlq))
	}
	if m != nil {
		options = append(options, outbox.WithMetrics(m))
	}

	return &Relay{
		Worker:   outbox.NewWorker(repo, publisher, options...),
		producer: producer,
		logger:   logger,
	}, nil
}

// initPublishers возвращает основной publisher, DLQ (может быть nil) и producer для закрытия.
func initPublishers(cfg KafkaConfig, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher, *kafka.Producer, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka.brokers не задан, события outbox пишутся в лог")
		return outbox.NewLogPublisher(logger), nil, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.Brokers, version.ClientID("scm-relay"))
	if err != nil {
		return nil, nil, nil, err
	}
	logger.WithField("brokers", cfg.Brokers).Info("kafka producer initialized")

	var dlq domain.OutboxPublisher
	if cfg.DLQTopic != "" {
		dlq = kafka.NewOutboxPublisher(producer, cfg.DLQTopic)
	}
	return kafka.NewOutboxPublisher(producer, cfg.Topic), dlq, producer, nil
}

// Close закрывает Kafka producer, если он был создан.
func (r *Relay) Close() error {
	if r == nil || r.producer == nil {
		return nil
	}
	if err := r.producer.Close(); err != nil {
		r.logger.WithError(err).Warn("failed to close kafka producer")
		return err
	}
	r.logger.Info("kafka producer closed")
	return nil
}
