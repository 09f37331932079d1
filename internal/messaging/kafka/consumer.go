package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
)

// ConsumerOption меняет конфигурацию consumer group.
type ConsumerOption func(*sarama.Config)

// FromNewest: новая группа начинает с конца топика, а не с начала.
func FromNewest() ConsumerOption {
	return func(c *sarama.Config) { c.Consumer.Offsets.Initial = sarama.OffsetNewest }
}

// WithClientID подписывает соединения группы в логах брокера.
func WithClientID(id string) ConsumerOption {
	return func(c *sarama.Config) {
		if id != "" {
			c.ClientID = id
		}
	}
}

func newConsumerConfig(opts ...ConsumerOption) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "storefront"
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Consumer читает один топик команд своей consumer group.
// Повторы и dead letter делает handler (pipeline.Dispatcher), Consumer только коммитит offset.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   domain.Topic
	handler pipeline.HandlerFunc
	logger  *log.Entry

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

var _ sarama.ConsumerGroupHandler = (*Consumer)(nil)

func NewConsumer(brokers []string, groupID string, topic domain.Topic, handler pipeline.HandlerFunc, opts ...ConsumerOption) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("kafka consumer: handler is required")
	}
	group, err := sarama.NewConsumerGroup(brokers, groupID, newConsumerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("create consumer group %s: %w", groupID, err)
	}
	return newConsumer(group, groupID, topic, handler), nil
}

func newConsumer(group sarama.ConsumerGroup, groupID string, topic domain.Topic, handler pipeline.HandlerFunc) *Consumer {
	return &Consumer{
		group:   group,
		topic:   topic,
		handler: handler,
		logger: log.WithFields(log.Fields{
			"component": "kafka-consumer",
			"group":     groupID,
			"topic":     topic,
		}),
	}
}

// Start не блокирует: чтение идёт в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go c.logErrors()

	c.logger.Info("kafka consumer started")
	return nil
}

// consumeLoop: Consume возвращается после каждого rebalance, сессию нужно открывать заново.
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	topics := []string{string(c.topic)}
	for {
		err := c.group.Consume(ctx, topics, c)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return
		case err != nil:
			c.logger.WithError(err).Error("consumer session failed")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Consumer) logErrors() {
	defer c.wg.Done()
	for err := range c.group.Errors() {
		c.logger.WithError(err).Warn("consumer group error")
	}
}

// Stop закрывает группу и ждёт фоновые горутины. Повторный вызов возвращает тот же результат.
func (c *Consumer) Stop() error {
	c.stopOnce.Do(func() {
		if err := c.group.Close(); err != nil {
			c.stopErr = fmt.Errorf("close consumer group: %w", err)
		}
		c.wg.Wait()
		c.logger.Info("kafka consumer stopped")
	})
	return c.stopErr
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.WithField("claims", session.Claims()).Debug("partitions assigned")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает партицию строго по порядку.
// Ошибка handler завершает сессию без коммита: сообщение придёт снова после rebalance.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok || msg == nil {
				return nil
			}
			if err := c.handle(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			session.MarkMessage(msg, "")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	entry := c.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
		"kind":      header(msg, HeaderCommandKind),
	})
	entry.Debug("command received")

	if err := c.handler(ctx, domain.Topic(msg.Topic), msg.Value); err != nil {
		if ctx.Err() == nil {
			entry.WithError(err).Error("command handling failed")
		}
		return err
	}
	return nil
}

// Probe отвечает на readiness по метаданным кластера.
type Probe struct {
	client sarama.Client
}

func NewProbe(brokers []string) (*Probe, error) {
	client, err := sarama.NewClient(brokers, newConsumerConfig(WithClientID("storefront-probe")))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Probe{client: client}, nil
}

func (p *Probe) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.RefreshMetadata(); err != nil {
		return fmt.Errorf("kafka metadata: %w", err)
	}
	if len(p.client.Brokers()) == 0 {
		return errors.New("kafka metadata: no brokers available")
	}
	return nil
}

func (p *Probe) Close() error {
	return p.client.Close()
}
