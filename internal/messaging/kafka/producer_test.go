package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerMap(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func TestProducer_Send(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducer(mockProducer, nil)
	fixed := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	producer.now = func() time.Time { return fixed }

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPurchaseOrderEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		if !msg.Timestamp.Equal(fixed) {
			return errors.New("unexpected timestamp")
		}
		if headerMap(msg)[HeaderEventType] != "purchase_order.registered" {
			return errors.New("event type header is missing")
		}
		return nil
	})

	err := producer.Send(TopicPurchaseOrderEvents, "42", []byte(`{"ok":true}`), map[string]string{
		HeaderEventType: "purchase_order.registered",
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_SendError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	logger, hook := logtest.NewNullLogger()
	producer := newProducer(mockProducer, logger.WithField("component", "kafka-producer"))

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Send(TopicPurchaseOrderEvents, "1", []byte(`{}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, TopicPurchaseOrderEvents, hook.LastEntry().Data["topic"])
	require.NoError(t, producer.Close())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil, "scm")
	require.Error(t, err)
}
