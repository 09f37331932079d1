package cache

import "time"

// Kind — тип кэшируемой сущности; используется в метриках и логах.
type Kind string

const (
	KindCart      Kind = "cart"
	KindOrderList Kind = "order_list"
	KindProduct   Kind = "product"
)

const (
	DefaultTTL        = 10 * time.Minute
	DefaultOrderTTL   = 20 * time.Minute
	DefaultProductTTL = 15 * time.Minute
)

// TTLs задаёт время жизни записей по типам сущностей.
type TTLs struct {
	Cart      time.Duration
	OrderList time.Duration
	Product   time.Duration
}

// DefaultTTLs возвращает значения по умолчанию.
func DefaultTTLs() TTLs {
	return TTLs{Cart: DefaultTTL, OrderList: DefaultOrderTTL, Product: DefaultProductTTL}
}

// CartKey — ключ корзины пользователя.
func CartKey(userID string) string { return "cart:" + userID }

// OrderListKey — ключ списка заказов пользователя.
func OrderListKey(userID string) string { return "orders:user:" + userID }

// ProductKey — ключ карточки товара.
func ProductKey(productID string) string { return "product:detail:" + productID }
