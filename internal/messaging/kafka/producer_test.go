package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, metrics.NewPipelineMetricsWithRegisterer(prometheus.NewRegistry()))
	producer.now = func() time.Time { return fixedNow }
	return producer, mockProducer
}

func TestProducer_PublishUsesAggregateKey(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != string(domain.TopicOrder) {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(domain.CommandKindOrder) {
			return fmt.Errorf("unexpected headers %+v", msg.Headers)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		cmd, env, err := pipeline.Decode(value)
		if err != nil {
			return err
		}
		if env.Key != "order-1" || !env.PublishedAt.Equal(fixedNow) {
			return fmt.Errorf("unexpected envelope %+v", env)
		}
		if got, ok := cmd.(domain.OrderCommand); !ok || got.Op != domain.OrderOpConfirm {
			return fmt.Errorf("unexpected command %+v", cmd)
		}
		return nil
	})

	err := producer.Publish(context.Background(), domain.OrderCommand{
		Op:      domain.OrderOpConfirm,
		OrderID: "order-1",
		ActorID: "admin-1",
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestProducer_PublishError(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Publish(context.Background(), domain.CartCommand{Op: domain.CartOpClear, UserID: "user-1"})
	require.Error(t, err)
	require.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, producer.Close())
}

func TestProducer_DeadLetter(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	letter := pipeline.DeadLetter{
		Topic:    domain.TopicCart,
		Key:      "user-1",
		Envelope: json.RawMessage(`{"kind":"cart"}`),
		Error:    "boom",
		Attempts: 3,
		FailedAt: fixedNow,
	}

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeadLetterQueue {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderOriginalTopic] != string(domain.TopicCart) || headers[HeaderRetryCount] != "3" {
			return fmt.Errorf("unexpected headers %v", headers)
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded pipeline.DeadLetter
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded.Topic != letter.Topic || decoded.Error != "boom" || decoded.Attempts != 3 {
			return fmt.Errorf("unexpected dead letter %+v", decoded)
		}
		return nil
	})

	require.NoError(t, producer.DeadLetter(context.Background(), letter))
	require.NoError(t, producer.Close())
}

func TestNewSaramaConfig(t *testing.T) {
	config := NewSaramaConfig()
	require.True(t, config.Producer.Idempotent)
	require.Equal(t, sarama.WaitForAll, config.Producer.RequiredAcks)
	require.Equal(t, 1, config.Net.MaxOpenRequests)
	require.NoError(t, config.Validate())
}
