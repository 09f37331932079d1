package inventory

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Направления движения склада для метрик.
const (
	DirectionDeduct  = "deduct"
	DirectionRestock = "restock"
)

// Ledger применяет складские эффекты переходов заказа.
// Остаток меняется только через AdjustQuantity репозитория, который не даёт уйти в минус.
type Ledger struct {
	products domain.ProductRepository
	cache    cache.Store
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
}

// NewLedger создаёт складской журнал. store и m могут быть nil.
func NewLedger(products domain.ProductRepository, store cache.Store, logger *log.Entry, m *metrics.OrderMetrics) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &Ledger{
		products: products,
		cache:    store,
		logger:   logger,
		metrics:  m,
	}
}

// Deduct списывает qty единиц товара.
func (l *Ledger) Deduct(ctx context.Context, productID string, qty int32) error {
	return l.adjust(ctx, productID, qty, DirectionDeduct)
}

// Restock возвращает qty единиц товара на склад.
func (l *Ledger) Restock(ctx context.Context, productID string, qty int32) error {
	return l.adjust(ctx, productID, qty, DirectionRestock)
}

func (l *Ledger) adjust(ctx context.Context, productID string, qty int32, direction string) error {
	if qty <= 0 {
		return domain.ErrQtyInvalid
	}
	delta := int64(qty)
	if direction == DirectionDeduct {
		delta = -delta
	}

	left, err := l.products.AdjustQuantity(ctx, productID, delta)
	if err != nil {
		return err
	}

	cache.Evict(ctx, l.cache, l.logger, cache.ProductKey(productID))
	l.metrics.RecordStockMove(direction, int64(qty))
	l.logger.WithFields(log.Fields{
		"product_id": productID,
		"direction":  direction,
		"qty":        qty,
		"left":       left,
	}).Debug("stock adjusted")
	return nil
}

// Apply выполняет эффект перехода построчно. Если строка не прошла,
// уже применённые строки откатываются обратной операцией.
func (l *Ledger) Apply(ctx context.Context, effect domain.Effect, items []domain.OrderItem) error {
	step, undo, ok := l.operations(effect)
	if !ok {
		return nil
	}

	for i, item := range items {
		if err := step(ctx, item.ProductID, item.Qty); err != nil {
			l.compensate(ctx, undo, items[:i])
			return err
		}
	}
	return nil
}

// Revert откатывает ранее применённый эффект, например когда запись статуса заказа не удалась.
func (l *Ledger) Revert(ctx context.Context, effect domain.Effect, items []domain.OrderItem) {
	_, undo, ok := l.operations(effect)
	if !ok {
		return
	}
	l.compensate(ctx, undo, items)
}

type stockOp func(ctx context.Context, productID string, qty int32) error

func (l *Ledger) operations(effect domain.Effect) (step, undo stockOp, ok bool) {
	switch effect {
	case domain.EffectDeductStock:
		return l.Deduct, l.Restock, true
	case domain.EffectRestock:
		return l.Restock, l.Deduct, true
	}
	return nil, nil, false
}

func (l *Ledger) compensate(ctx context.Context, undo stockOp, items []domain.OrderItem) {
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if err := undo(ctx, item.ProductID, item.Qty); err != nil {
			// Остаток расходится с заказом; нужна ручная сверка.
			l.logger.WithError(err).WithFields(log.Fields{
				"product_id": item.ProductID,
				"qty":        item.Qty,
			}).Error("stock compensation failed")
		}
	}
}
