package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DeadLetter — команда, которую не удалось обработать.
type DeadLetter struct {
	Topic    domain.Topic    `json:"original_topic"`
	Key      string          `json:"original_key"`
	Envelope json.RawMessage `json:"original_value"`
	Error    string          `json:"error_message"`
	Attempts int             `json:"retry_count"`
	FailedAt time.Time       `json:"failed_at"`
}

// DeadLetterSink принимает необработанные команды.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, letter DeadLetter) error
}

// MemoryDeadLetters хранит dead letters в памяти.
type MemoryDeadLetters struct {
	mu      sync.Mutex
	letters []DeadLetter
}

// NewMemoryDeadLetters создаёт пустой in-memory sink.
func NewMemoryDeadLetters() *MemoryDeadLetters {
	return &MemoryDeadLetters{}
}

func (m *MemoryDeadLetters) DeadLetter(_ context.Context, letter DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, letter)
	return nil
}

// List возвращает копию накопленных dead letters.
func (m *MemoryDeadLetters) List() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeadLetter, len(m.letters))
	copy(out, m.letters)
	return out
}

// Len возвращает количество dead letters.
func (m *MemoryDeadLetters) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.letters)
}

var _ DeadLetterSink = (*MemoryDeadLetters)(nil)
