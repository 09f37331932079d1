package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
)

// candidate исходная команда, извлечённая из dead letter.
type candidate struct {
	topic    string
	key      string
	kind     domain.CommandKind
	envelope []byte
}

// parseLetter разбирает dead letter. ok=false без ошибки: письмо не прошло фильтр по топику.
func parseLetter(msg *sarama.ConsumerMessage, topicFilter string) (candidate, bool, error) {
	var letter pipeline.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return candidate{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(letter.Envelope) == 0 {
		return candidate{}, false, errors.New("dead letter has no original envelope")
	}

	topic := coalesce(string(letter.Topic), headerValue(msg, kafka.HeaderOriginalTopic))
	switch {
	case topic == "":
		return candidate{}, false, errors.New("dead letter has no original topic")
	case topicFilter != "" && topic != topicFilter:
		return candidate{}, false, nil
	}

	// Конверт, который не декодируется, снова уйдёт в DLQ.
	_, env, err := pipeline.Decode(letter.Envelope)
	if err != nil {
		return candidate{}, false, fmt.Errorf("original envelope: %w", err)
	}

	return candidate{
		topic:    topic,
		key:      coalesce(letter.Key, env.Key),
		kind:     env.Kind,
		envelope: letter.Envelope,
	}, true, nil
}

// producerMessage помечает повтор ссылкой на письмо, из которого он взят.
func (c candidate) producerMessage(source *sarama.ConsumerMessage, now time.Time) *sarama.ProducerMessage {
	origin := source.Topic + "/" + strconv.Itoa(int(source.Partition)) + "@" + strconv.FormatInt(source.Offset, 10)
	return &sarama.ProducerMessage{
		Topic:     c.topic,
		Key:       sarama.StringEncoder(c.key),
		Value:     sarama.ByteEncoder(c.envelope),
		Timestamp: now.UTC(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderCommandKind), Value: []byte(c.kind)},
			{Key: []byte(kafka.HeaderReplayedFrom), Value: []byte(origin)},
		},
	}
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
