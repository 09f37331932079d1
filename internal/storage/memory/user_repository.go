package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// userRepositoryInMemory хранит историю покупок в порядке первой покупки.
type userRepositoryInMemory struct {
	mu        sync.RWMutex
	purchases map[string][]string
}

// NewUserRepository создаёт in-memory реализацию UserRepository.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{purchases: make(map[string][]string)}
}

func (r *userRepositoryInMemory) AppendPurchases(_ context.Context, userID string, productIDs []string) error {
	if userID == "" {
		return domain.ErrUserRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.purchases[userID]
	for _, id := range productIDs {
		if !contains(history, id) {
			history = append(history, id)
		}
	}
	r.purchases[userID] = history
	return nil
}

func (r *userRepositoryInMemory) ListPurchases(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string{}, r.purchases[userID]...), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
