package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// partitionMeta отвечает на вопросы о партициях и их границах.
type partitionMeta interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, at int64) (int64, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionReader interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type replaySink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// connections держит всё, что нужно закрыть после replay. В dry-run sink пустой.
type connections struct {
	meta   partitionMeta
	reader partitionReader
	sink   replaySink
}

func (c *connections) Close() {
	if c.sink != nil {
		_ = c.sink.Close()
	}
	if c.reader != nil {
		_ = c.reader.Close()
	}
	if c.meta != nil {
		_ = c.meta.Close()
	}
}

type saramaReader struct {
	consumer sarama.Consumer
}

func (r saramaReader) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	return r.consumer.ConsumePartition(topic, partition, offset)
}

func (r saramaReader) Close() error {
	return r.consumer.Close()
}

// connect подменяется в тестах.
var connect = func(opts options) (*connections, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "storefront-dlq-reprocess"
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	conns := &connections{meta: client, reader: saramaReader{consumer: consumer}}
	if opts.dryRun {
		return conns, nil
	}

	// Профиль основного продюсера: порядок команд одного ключа сохраняется.
	producer, err := sarama.NewSyncProducer(opts.brokers, kafka.NewSaramaConfig())
	if err != nil {
		conns.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	conns.sink = producer
	return conns, nil
}

type summary struct {
	scanned  int
	replayed int
	filtered int
	skipped  int
}

func (s *summary) merge(other summary) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.filtered += other.filtered
	s.skipped += other.skipped
}

type replayer struct {
	opts   options
	meta   partitionMeta
	reader partitionReader
	sink   replaySink
	logger *log.Entry
	now    func() time.Time
}

// run обходит партиции по возрастанию номера, пока не исчерпан общий лимит.
func (r *replayer) run(ctx context.Context) (summary, error) {
	var total summary
	if r.meta == nil || r.reader == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if !r.opts.dryRun && r.sink == nil {
		return total, errors.New("producer is required when dry-run is disabled")
	}

	r.logger.WithFields(log.Fields{
		"source_topic": r.opts.sourceTopic,
		"topic_filter": r.opts.topicFilter,
		"limit":        r.opts.limit,
		"mode":         r.opts.mode(),
	}).Info("dlq replay started")

	partitions, err := r.meta.Partitions(r.opts.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.opts.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.opts.limit - total.scanned
		if budget <= 0 {
			break
		}
		part, err := r.scanPartition(ctx, partition, budget)
		total.merge(part)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"mode":     r.opts.mode(),
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"filtered": total.filtered,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// window возвращает [start, end) для чтения. Письма, пришедшие после старта,
// не читаются: их мог породить сам replay.
func (r *replayer) window(partition int32, budget int) (start, end int64, err error) {
	start, err = r.meta.GetOffset(r.opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	end, err = r.meta.GetOffset(r.opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if r.opts.fromNewest {
		start = max(end-int64(budget), start)
	}
	return start, end, nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) (summary, error) {
	var sum summary

	start, end, err := r.window(partition, budget)
	if err != nil || end <= start {
		return sum, err
	}

	stream, err := r.reader.ConsumePartition(r.opts.sourceTopic, partition, start)
	if err != nil {
		return sum, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	errs := stream.Errors()

	for sum.scanned < budget {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition idle, moving on")
			return sum, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return sum, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return sum, nil
			}
			idle.Reset(r.opts.idleTimeout)

			sum.scanned++
			if err := r.handle(msg, &sum); err != nil {
				return sum, err
			}
			if msg.Offset+1 >= end {
				return sum, nil
			}
		}
	}
	return sum, nil
}

// handle учитывает письмо в sum; ошибка возвращается только при сбое публикации.
func (r *replayer) handle(msg *sarama.ConsumerMessage, sum *summary) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	c, ok, err := parseLetter(msg, r.opts.topicFilter)
	switch {
	case err != nil:
		sum.skipped++
		entry.WithError(err).Warn("letter cannot be replayed, skipping")
		return nil
	case !ok:
		sum.filtered++
		return nil
	}

	entry = entry.WithFields(log.Fields{"target_topic": c.topic, "key": c.key, "kind": c.kind})
	if r.opts.dryRun {
		entry.Info("replay candidate")
		sum.replayed++
		return nil
	}

	if _, _, err := r.sink.SendMessage(c.producerMessage(msg, r.now())); err != nil {
		return fmt.Errorf("republish %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	entry.Info("command replayed")
	sum.replayed++
	return nil
}
