package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrMalformedEnvelope — сообщение нельзя декодировать; повтор не поможет.
var ErrMalformedEnvelope = errors.New("malformed command envelope")

// Envelope — формат команды на проводе.
type Envelope struct {
	Kind        domain.CommandKind `json:"kind"`
	Topic       domain.Topic       `json:"topic"`
	Key         string             `json:"key"`
	Payload     json.RawMessage    `json:"payload"`
	PublishedAt time.Time          `json:"publishedAt"`
}

// Encode сериализует команду в конверт.
func Encode(cmd domain.Command, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s command: %w", cmd.Kind(), err)
	}
	data, err := json.Marshal(Envelope{
		Kind:        cmd.Kind(),
		Topic:       cmd.Topic(),
		Key:         cmd.Key(),
		Payload:     payload,
		PublishedAt: now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode восстанавливает команду по тегу Kind.
func Decode(data []byte) (domain.Command, Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Kind {
	case domain.CommandKindOrder:
		var cmd domain.OrderCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, env, fmt.Errorf("%w: order payload: %v", ErrMalformedEnvelope, err)
		}
		return cmd, env, nil
	case domain.CommandKindCart:
		var cmd domain.CartCommand
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			return nil, env, fmt.Errorf("%w: cart payload: %v", ErrMalformedEnvelope, err)
		}
		return cmd, env, nil
	}
	return nil, env, fmt.Errorf("%w: kind %q", domain.ErrUnknownCommand, env.Kind)
}
