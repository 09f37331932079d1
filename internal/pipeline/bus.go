package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// ErrBusClosed возвращается при публикации в остановленную шину.
var ErrBusClosed = errors.New("command bus is closed")

const defaultBusBuffer = 256

// MemoryBus — внутрипроцессная шина: буферизованный канал и один воркер на топик.
// Порядок сохраняется в пределах топика, а значит и в пределах ключа.
type MemoryBus struct {
	mu       sync.RWMutex
	queues   map[domain.Topic]chan []byte
	handlers map[domain.Topic]HandlerFunc
	buffer   int
	started  bool
	closed   bool

	wg      sync.WaitGroup
	logger  *log.Entry
	metrics *metrics.PipelineMetrics
	now     func() time.Time
}

// NewMemoryBus создаёт шину с заданным размером буфера на топик.
func NewMemoryBus(buffer int, logger *log.Entry, m *metrics.PipelineMetrics) *MemoryBus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	if logger == nil {
		logger = log.WithField("component", "memory-bus")
	}
	return &MemoryBus{
		queues:   make(map[domain.Topic]chan []byte),
		handlers: make(map[domain.Topic]HandlerFunc),
		buffer:   buffer,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Subscribe регистрирует единственный обработчик топика. Вызывается до Start.
func (b *MemoryBus) Subscribe(topic domain.Topic, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started || b.closed {
		return fmt.Errorf("subscribe %s: bus already started", topic)
	}
	if _, ok := b.handlers[topic]; ok {
		return fmt.Errorf("subscribe %s: topic already has a consumer", topic)
	}
	b.handlers[topic] = handler
	b.queues[topic] = make(chan []byte, b.buffer)
	return nil
}

// Start запускает по одному воркеру на каждый топик с подписчиком.
// ctx передаётся обработчикам; остановка воркеров — через Close.
func (b *MemoryBus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return
	}
	b.started = true

	for topic, queue := range b.queues {
		handler := b.handlers[topic]
		b.wg.Add(1)
		go b.work(ctx, topic, queue, handler)
	}
	b.logger.WithField("topics", len(b.queues)).Info("memory bus started")
}

func (b *MemoryBus) work(ctx context.Context, topic domain.Topic, queue <-chan []byte, handler HandlerFunc) {
	defer b.wg.Done()

	for data := range queue {
		if err := handler(ctx, topic, data); err != nil {
			b.logger.WithError(err).WithField("topic", topic).Error("command handling failed")
		}
	}
}

// Publish ставит команду в очередь её топика. Топики без подписчика пропускаются.
func (b *MemoryBus) Publish(ctx context.Context, cmd domain.Command) error {
	data, err := Encode(cmd, b.now())
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	queue, ok := b.queues[cmd.Topic()]
	if !ok {
		b.logger.WithField("topic", cmd.Topic()).Debug("no consumer for topic, command dropped")
		return nil
	}

	select {
	case queue <- data:
		b.metrics.RecordPublished(string(cmd.Topic()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close прекращает приём команд и ждёт, пока воркеры обработают очередь.
func (b *MemoryBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, queue := range b.queues {
		close(queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("memory bus drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain memory bus: %w", ctx.Err())
	}
}

// Ping сообщает о готовности шины принимать команды.
func (b *MemoryBus) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	return nil
}

var _ Publisher = (*MemoryBus)(nil)
