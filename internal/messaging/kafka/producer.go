package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
)

// Producer публикует команды конвейера и dead letters в Kafka.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	metrics  *metrics.PipelineMetrics
	now      func() time.Time
}

// NewSaramaConfig возвращает конфигурацию идемпотентного продюсера.
func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Producer.Partitioner = sarama.NewHashPartitioner // Один ключ — одна партиция.
	config.Net.MaxOpenRequests = 1                          // Требование идемпотентности.
	return config
}

// NewProducer создает новый Kafka producer.
func NewProducer(brokers []string, m *metrics.PipelineMetrics) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFromSync(producer, m), nil
}

// NewProducerFromSync оборачивает готовый SyncProducer.
func NewProducerFromSync(producer sarama.SyncProducer, m *metrics.PipelineMetrics) *Producer {
	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
		metrics:  m,
		now:      time.Now,
	}
}

// Publish кодирует команду в конверт и отправляет в её топик с ключом агрегата.
func (p *Producer) Publish(_ context.Context, cmd domain.Command) error {
	data, err := pipeline.Encode(cmd, p.now())
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     string(cmd.Topic()),
		Key:       sarama.StringEncoder(cmd.Key()),
		Value:     sarama.ByteEncoder(data),
		Timestamp: p.now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderCommandKind), Value: []byte(cmd.Kind())},
		},
	}
	if err := p.send(msg); err != nil {
		return err
	}
	p.metrics.RecordPublished(string(cmd.Topic()))
	return nil
}

// DeadLetter отправляет необработанную команду в storefront.dlq.
func (p *Producer) DeadLetter(_ context.Context, letter pipeline.DeadLetter) error {
	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     TopicDeadLetterQueue,
		Key:       sarama.StringEncoder(letter.Key),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: p.now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderOriginalTopic), Value: []byte(letter.Topic)},
			{Key: []byte(HeaderErrorMessage), Value: []byte(letter.Error)},
			{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(letter.Attempts))},
			{Key: []byte(HeaderFailedAt), Value: []byte(letter.FailedAt.UTC().Format(time.RFC3339))},
		},
	}
	return p.send(msg)
}

func (p *Producer) send(msg *sarama.ProducerMessage) error {
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithField("topic", msg.Topic).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

var (
	_ pipeline.Publisher      = (*Producer)(nil)
	_ pipeline.DeadLetterSink = (*Producer)(nil)
)
