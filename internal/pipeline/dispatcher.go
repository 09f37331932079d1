package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Publisher отправляет команду в топик, ключ партиционирования — cmd.Key().
type Publisher interface {
	Publish(ctx context.Context, cmd domain.Command) error
}

// HandlerFunc обрабатывает сырое сообщение топика.
type HandlerFunc func(ctx context.Context, topic domain.Topic, data []byte) error

// Dispatcher декодирует конверт и передаёт команду visitor'у.
// Постоянные ошибки уходят в dead letter сразу, временные повторяются с backoff.
type Dispatcher struct {
	visitor domain.CommandVisitor
	sink    DeadLetterSink
	retry   RetryConfig
	logger  *log.Entry
	metrics *metrics.PipelineMetrics
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithRetryConfig задаёт политику повторов.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(d *Dispatcher) {
		d.retry = cfg
	}
}

// WithDeadLetterSink задаёт получателя необработанных команд.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics подключает метрики конвейера.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher создаёт диспетчер команд.
func NewDispatcher(visitor domain.CommandVisitor, options ...Option) *Dispatcher {
	d := &Dispatcher{
		visitor: visitor,
		retry:   DefaultRetryConfig(),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, option := range options {
		option(d)
	}
	if d.logger == nil {
		d.logger = log.WithField("component", "dispatcher")
	}
	d.retry = d.retry.normalized()
	return d
}

// Handle обрабатывает одно сообщение. nil означает, что сообщение можно подтвердить:
// команда применена или сохранена в dead letter.
func (d *Dispatcher) Handle(ctx context.Context, topic domain.Topic, data []byte) error {
	start := d.now()
	d.metrics.InFlightStarted()
	defer func() {
		d.metrics.InFlightFinished()
		d.metrics.RecordHandleDuration(string(topic), d.now().Sub(start))
	}()

	cmd, env, err := Decode(data)
	if err != nil {
		return d.deadLetter(ctx, topic, env.Key, data, err, 0)
	}

	logger := d.logger.WithFields(log.Fields{
		"topic": topic,
		"kind":  cmd.Kind(),
		"key":   cmd.Key(),
	})

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		lastErr = cmd.Accept(ctx, d.visitor)
		if lastErr == nil {
			d.metrics.RecordProcessed(string(topic), metrics.ResultOK)
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("command applied after retry")
			}
			return nil
		}

		if IsPermanent(lastErr) {
			return d.deadLetter(ctx, topic, cmd.Key(), data, lastErr, attempt)
		}

		d.metrics.RecordProcessed(string(topic), metrics.ResultRetry)
		if attempt == d.retry.MaxAttempts {
			break
		}

		delay := d.retry.Delay(attempt)
		logger.WithError(lastErr).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("command failed, retrying")

		if err := d.sleep(ctx, delay); err != nil {
			// Сообщение не подтверждается и будет доставлено повторно.
			return err
		}
	}

	return d.deadLetter(ctx, topic, cmd.Key(), data, lastErr, d.retry.MaxAttempts)
}

func (d *Dispatcher) deadLetter(ctx context.Context, topic domain.Topic, key string, data []byte, cause error, attempts int) error {
	d.metrics.RecordProcessed(string(topic), metrics.ResultDeadLetter)

	logger := d.logger.WithError(cause).WithFields(log.Fields{
		"topic":    topic,
		"key":      key,
		"attempts": attempts,
	})
	logger.Error("command dead-lettered")

	if d.sink == nil {
		return nil
	}
	letter := DeadLetter{
		Topic:    topic,
		Key:      key,
		Envelope: append([]byte(nil), data...),
		Error:    cause.Error(),
		Attempts: attempts,
		FailedAt: d.now().UTC(),
	}
	if err := d.sink.DeadLetter(ctx, letter); err != nil {
		logger.WithField("dlq_error", err).Error("failed to store dead letter")
		return fmt.Errorf("store dead letter: %w", err)
	}
	return nil
}

// IsPermanent сообщает, что повтор обработки не изменит результат.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope) || domain.IsPermanent(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
