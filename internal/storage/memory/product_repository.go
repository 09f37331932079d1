package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — каталог в памяти; остаток меняется под одной блокировкой.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository создаёт in-memory каталог.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{items: make(map[string]domain.Product)}
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) Upsert(_ context.Context, product domain.Product) error {
	if product.Quantity < 0 {
		return domain.ErrQtyInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	r.items[product.ID] = product
	return nil
}

// AdjustQuantity меняет остаток на delta, не допуская отрицательного значения.
func (r *productRepositoryInMemory) AdjustQuantity(_ context.Context, id string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if product.Quantity+delta < 0 {
		return product.Quantity, &domain.InsufficientStockError{
			ProductID: id,
			Requested: -delta,
			Available: product.Quantity,
		}
	}
	product.Quantity += delta
	product.UpdatedAt = time.Now().UTC()
	r.items[id] = product
	return product.Quantity, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
