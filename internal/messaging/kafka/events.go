package kafka

import (
	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TopicDeadLetterQueue — топик для команд, которые не удалось обработать.
const TopicDeadLetterQueue = "storefront.dlq"

// Kafka headers конверта и dead letter.
const (
	HeaderCommandKind   = "x-command-kind"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderReplayedFrom  = "x-replayed-from"
)

// CommandTopics — все топики конвейера команд.
func CommandTopics() []string {
	return []string{
		string(domain.TopicCart),
		string(domain.TopicOrder),
		string(domain.TopicProduct),
		string(domain.TopicReview),
		string(domain.TopicWishlist),
		string(domain.TopicAddress),
	}
}

// GroupID возвращает consumer group для топика: одна группа на топик.
func GroupID(prefix string, topic domain.Topic) string {
	if prefix == "" {
		prefix = "storefront"
	}
	return prefix + "." + string(topic)
}

func header(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
