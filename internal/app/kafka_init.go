package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
)

// consumedTopics — топики, у которых есть обработчик в процессе.
var consumedTopics = []domain.Topic{domain.TopicOrder, domain.TopicCart}

// commandPipeline — транспорт команд: Kafka при заданных брокерах, иначе шина в памяти.
type commandPipeline struct {
	cfg     Config
	logger  *log.Entry
	metrics *metrics.PipelineMetrics

	producer  *kafka.Producer
	probe     *kafka.Probe
	consumers []*kafka.Consumer

	bus         *pipeline.MemoryBus
	deadLetters *pipeline.MemoryDeadLetters

	cancel context.CancelFunc
}

// newCommandPipeline создаёт публикующую сторону. Потребители запускаются
// позже в Start, когда готовы сервисы, исполняющие команды.
func newCommandPipeline(cfg Config, m *metrics.PipelineMetrics, logger *log.Entry) (*commandPipeline, error) {
	p := &commandPipeline{cfg: cfg, logger: logger, metrics: m}

	if len(cfg.Kafka.Brokers) == 0 {
		p.bus = pipeline.NewMemoryBus(cfg.Pipeline.Buffer, logger.WithField("component", "memory-bus"), m)
		p.deadLetters = pipeline.NewMemoryDeadLetters()
		logger.Info("kafka brokers not configured, using in-memory command bus")
		return p, nil
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, m)
	if err != nil {
		return nil, err
	}
	p.producer = producer

	probe, err := kafka.NewProbe(cfg.Kafka.Brokers)
	if err != nil {
		_ = producer.Close()
		return nil, err
	}
	p.probe = probe

	logger.WithField("brokers", cfg.Kafka.Brokers).Info("kafka producer initialized")
	return p, nil
}

// Publisher возвращает сторону, через которую сервисы ставят команды в очередь.
func (p *commandPipeline) Publisher() pipeline.Publisher {
	if p.bus != nil {
		return p.bus
	}
	return p.producer
}

// Checker проверяет доступность транспорта для readiness.
func (p *commandPipeline) Checker() healthcheck.Checker {
	if p.bus != nil {
		return healthcheck.NewPingChecker("pipeline", p.bus.Ping)
	}
	return healthcheck.NewPingChecker("kafka", p.probe.Ping)
}

// Start запускает по одному потребителю на топик с диспетчером поверх visitor.
// Отмена ctx вызывающего не прерывает обработку: потребители живут до Close.
func (p *commandPipeline) Start(ctx context.Context, visitor domain.CommandVisitor) error {
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	var sink pipeline.DeadLetterSink = p.deadLetters
	if p.producer != nil {
		sink = p.producer
	}
	dispatcher := pipeline.NewDispatcher(visitor,
		pipeline.WithRetryConfig(p.cfg.Pipeline.RetryConfig()),
		pipeline.WithDeadLetterSink(sink),
		pipeline.WithLogger(p.logger.WithField("component", "dispatcher")),
		pipeline.WithMetrics(p.metrics),
	)

	if p.bus != nil {
		for _, topic := range consumedTopics {
			if err := p.bus.Subscribe(topic, dispatcher.Handle); err != nil {
				return err
			}
		}
		p.bus.Start(ctx)
		return nil
	}

	for _, topic := range consumedTopics {
		consumer, err := kafka.NewConsumer(p.cfg.Kafka.Brokers, kafka.GroupID(p.cfg.Kafka.GroupID, topic), topic, dispatcher.Handle)
		if err != nil {
			return fmt.Errorf("consumer for %s: %w", topic, err)
		}
		if err := consumer.Start(ctx); err != nil {
			_ = consumer.Stop()
			return fmt.Errorf("start consumer for %s: %w", topic, err)
		}
		p.consumers = append(p.consumers, consumer)
	}
	return nil
}

// Close останавливает потребителей, затем публикующую сторону.
// Шина в памяти перед остановкой дорабатывает очередь в пределах ctx.
func (p *commandPipeline) Close(ctx context.Context) error {
	var errs []error
	if p.cancel != nil && len(p.consumers) > 0 {
		// Незакоммиченное сообщение будет доставлено повторно после рестарта.
		p.cancel()
	}
	for _, consumer := range p.consumers {
		if err := consumer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.bus != nil {
		if err := p.bus.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		} else {
			p.logger.Info("kafka producer closed")
		}
	}
	if p.probe != nil {
		if err := p.probe.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
	return errors.Join(errs...)
}
