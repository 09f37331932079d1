package domain

import "context"

// OrderFilter ограничивает выборку заказов для административных списков.
type OrderFilter struct {
	Status OrderStatus // Пустой статус — без фильтра.
	Limit  int
	Offset int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми, с опциональным limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	// List возвращает заказы всех пользователей с фильтром по статусу и пагинацией.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// CheckoutStore атомарно сохраняет новый заказ вместе с привязкой платежа.
type CheckoutStore interface {
	// PlaceOrder создаёт заказ; если payment не nil, в той же транзакции
	// сохраняет его расчёт и привязку к заказу. При ошибке не меняется ничего.
	PlaceOrder(ctx context.Context, order Order, payment *Payment) error
}

// PaymentRepository хранит локальные записи платежей.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id string) (Payment, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (Payment, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (Payment, error)
	// GetByOrderID — производный поиск платежа по заказу.
	GetByOrderID(ctx context.Context, orderID string) (Payment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Payment, error)
	// Update перезаписывает изменяемые поля; OrderID, раз установленный, не перезаписывается.
	Update(ctx context.Context, payment Payment) error
}

// ProductRepository — контракт каталога: цена и остаток товара.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	Upsert(ctx context.Context, product Product) error
	// AdjustQuantity атомарно меняет остаток на delta и возвращает новое значение.
	// Если остаток стал бы отрицательным, возвращает *InsufficientStockError и ничего не меняет.
	AdjustQuantity(ctx context.Context, id string, delta int64) (int64, error)
}

// CartRepository хранит корзины пользователей.
type CartRepository interface {
	// Get возвращает корзину; для пользователя без корзины — пустую корзину.
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Clear(ctx context.Context, userID string) error
}

// UserRepository — контракт пользовательского сервиса: история покупок.
type UserRepository interface {
	// AppendPurchases добавляет товары в историю покупок; повторы игнорируются.
	AppendPurchases(ctx context.Context, userID string, productIDs []string) error
	ListPurchases(ctx context.Context, userID string) ([]string, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}
