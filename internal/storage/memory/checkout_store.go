package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type checkoutStoreInMemory struct {
	orders   *orderRepositoryInMemory
	payments *paymentRepositoryInMemory
}

// NewCheckoutStore связывает in-memory репозитории заказов и платежей в одну
// атомарную операцию оформления. Принимает только репозитории этого пакета.
func NewCheckoutStore(orders domain.OrderRepository, payments domain.PaymentRepository) domain.CheckoutStore {
	return &checkoutStoreInMemory{
		orders:   orders.(*orderRepositoryInMemory),
		payments: payments.(*paymentRepositoryInMemory),
	}
}

// PlaceOrder держит блокировку платежей на всё время операции: проверка привязки,
// создание заказа и запись платежа либо проходят вместе, либо не меняют ничего.
func (s *checkoutStoreInMemory) PlaceOrder(_ context.Context, order domain.Order, payment *domain.Payment) error {
	s.payments.mu.Lock()
	defer s.payments.mu.Unlock()

	if payment != nil {
		current, ok := s.payments.items[payment.ID]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		if current.OrderID != "" && current.OrderID != order.ID {
			return domain.ErrPaymentAlreadyLinked
		}
	}

	if err := s.orders.create(order); err != nil {
		return err
	}

	if payment != nil {
		return s.payments.updateLocked(*payment)
	}
	return nil
}

var _ domain.CheckoutStore = (*checkoutStoreInMemory)(nil)
