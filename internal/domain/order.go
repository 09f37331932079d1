package domain

import "time"

// OrderStatus описывает жизненный цикл заказа витрины.
type OrderStatus string

const (
	// OrderStatusPending — заказ оформлен, склад ещё не списан.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed — администратор подтвердил заказ, товар списан со склада.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered — заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — заказ отменён владельцем (терминальный статус).
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusReturnRequested — покупатель запросил возврат.
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	// OrderStatusReturnApproved — возврат одобрен администратором.
	OrderStatusReturnApproved OrderStatus = "RETURN_APPROVED"
	// OrderStatusReturned — возврат завершён, товар вернулся на склад (терминальный статус).
	OrderStatusReturned OrderStatus = "RETURNED"
)

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered,
		OrderStatusCancelled, OrderStatusReturnRequested, OrderStatusReturnApproved, OrderStatusReturned:
		return true
	}
	return false
}

// Terminal возвращает true для статусов, из которых переходов нет.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// PaymentMethod — способ оплаты, выбранный при оформлении.
type PaymentMethod string

const (
	PaymentMethodCOD        PaymentMethod = "COD"
	PaymentMethodCard       PaymentMethod = "CARD"
	PaymentMethodUPI        PaymentMethod = "UPI"
	PaymentMethodNetBanking PaymentMethod = "NETBANKING"
	PaymentMethodWallet     PaymentMethod = "WALLET"
)

// Valid сообщает, поддерживается ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodUPI, PaymentMethodNetBanking, PaymentMethodWallet:
		return true
	}
	return false
}

// Online возвращает true, если оплата проходит через платёжного провайдера.
func (m PaymentMethod) Online() bool {
	return m != PaymentMethodCOD
}

// Address — снимок адреса доставки на момент оформления.
// Копируется в заказ по значению: последующие правки адреса пользователя заказ не меняют.
type Address struct {
	DoorNumber   string `json:"doorNumber"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	PinCode      string `json:"pinCode"`
}

// Validate проверяет обязательные поля адреса.
func (a Address) Validate() error {
	if a.AddressLine1 == "" || a.City == "" || a.PinCode == "" {
		return ErrAddressIncomplete
	}
	return nil
}

// OrderItem — позиция заказа с ценой, зафиксированной при оформлении.
type OrderItem struct {
	ID         string
	ProductID  string
	Qty        int32
	PriceMinor int64
	// TotalMinor = PriceMinor * Qty.
	TotalMinor int64
	CreatedAt  time.Time
}

// NewOrderItem собирает позицию и считает её сумму.
func NewOrderItem(id, productID string, qty int32, priceMinor int64, now time.Time) OrderItem {
	return OrderItem{
		ID:         id,
		ProductID:  productID,
		Qty:        qty,
		PriceMinor: priceMinor,
		TotalMinor: int64(qty) * priceMinor,
		CreatedAt:  now,
	}
}

// Order агрегирует заказ и его позиции.
type Order struct {
	ID            string
	UserID        string
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Address       Address
	TotalMinor    int64
	Items         []OrderItem
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemsTotal возвращает сумму всех позиций.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.TotalMinor
	}
	return total
}

// ProductIDs возвращает идентификаторы товаров заказа без повторов.
func (o *Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrOrderStatusInvalid)
	}
	if !o.PaymentMethod.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.TotalMinor != int64(item.Qty)*item.PriceMinor {
			errs = append(errs, ErrItemTotalMismatch)
		}
	}
	if o.ItemsTotal() != o.TotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
