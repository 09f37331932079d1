package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type paymentRepositoryInMemory struct {
	mu              sync.RWMutex
	items           map[string]domain.Payment
	byProviderOrder map[string]string
}

// NewPaymentRepository создаёт in-memory реализацию PaymentRepository.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		items:           make(map[string]domain.Payment),
		byProviderOrder: make(map[string]string),
	}
}

func (r *paymentRepositoryInMemory) Create(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[payment.ID]; exists {
		return domain.ErrPaymentExists
	}
	// provider_order_id уникален, как и в PostgreSQL.
	if _, exists := r.byProviderOrder[payment.ProviderOrderID]; exists {
		return domain.ErrPaymentExists
	}
	r.items[payment.ID] = payment
	r.byProviderOrder[payment.ProviderOrderID] = payment.ID
	return nil
}

func (r *paymentRepositoryInMemory) Get(_ context.Context, id string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.items[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (r *paymentRepositoryInMemory) GetByProviderOrderID(_ context.Context, providerOrderID string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProviderOrder[providerOrderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.items[id], nil
}

func (r *paymentRepositoryInMemory) GetByProviderPaymentID(_ context.Context, providerPaymentID string) (domain.Payment, error) {
	return r.find(func(p domain.Payment) bool {
		return providerPaymentID != "" && p.ProviderPaymentID == providerPaymentID
	})
}

func (r *paymentRepositoryInMemory) GetByOrderID(_ context.Context, orderID string) (domain.Payment, error) {
	return r.find(func(p domain.Payment) bool {
		return orderID != "" && p.OrderID == orderID
	})
}

func (r *paymentRepositoryInMemory) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, p := range r.items {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if offset > 0 {
		if offset >= len(result) {
			return []domain.Payment{}, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *paymentRepositoryInMemory) Update(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.updateLocked(payment)
}

// updateLocked требует удержания r.mu. Статус не откатывается: запись,
// прочитанная до параллельного обновления, не перетирает более старший статус.
func (r *paymentRepositoryInMemory) updateLocked(payment domain.Payment) error {
	current, ok := r.items[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	payment.Status = current.Status.Stronger(payment.Status)
	if current.OrderID != "" {
		if payment.OrderID != "" && payment.OrderID != current.OrderID {
			return domain.ErrPaymentAlreadyLinked
		}
		payment.OrderID = current.OrderID
	}
	payment.ProviderOrderID = current.ProviderOrderID
	r.items[payment.ID] = payment
	return nil
}

func (r *paymentRepositoryInMemory) find(match func(domain.Payment) bool) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.items {
		if match(p) {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
