package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы позиции цене и количеству.
	ErrItemTotalMismatch = errors.New("item total does not match price * qty")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrOrderStatusInvalid = errors.New("order status is invalid")
	// Ошибка неподдерживаемого способа оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method is invalid")
	// Ошибка неполного адреса доставки.
	ErrAddressIncomplete = errors.New("address line1, city and pin code are required")
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrQtyInvalid — количество в операции со складом или корзиной вне допустимого диапазона.
	ErrQtyInvalid = errors.New("quantity is out of range")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrProductNotFound — товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrPaymentNotFound — платёж по идентификатору провайдера не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentAlreadyLinked — платёж уже привязан к другому заказу.
	ErrPaymentAlreadyLinked = errors.New("payment already linked to another order")
	// ErrPaymentExists — платёж с таким provider_order_id уже сохранён.
	ErrPaymentExists = errors.New("payment already exists")
	// ErrProviderOrderIDRequired — для онлайн-оплаты нужен идентификатор заказа у провайдера.
	ErrProviderOrderIDRequired = errors.New("provider order id is required for online payment")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountInvalid = errors.New("payment amount must be greater than zero")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// ErrInvalidSignature — подпись webhook не совпала.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrForbidden — действие над чужим заказом или админская операция без прав.
	ErrForbidden = errors.New("forbidden")
	// ErrUnknownOrderOp — операция отсутствует в таблице переходов.
	ErrUnknownOrderOp = errors.New("unknown order operation")
	// ErrUnknownCommand — в конверте пришла неизвестная команда.
	ErrUnknownCommand = errors.New("unknown command kind")
	// ErrIdempotencyInProgress — запрос с тем же ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
)

// InsufficientStockError — запрошенное количество превышает остаток.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// IllegalTransitionError — переход отсутствует в таблице для текущего статуса.
type IllegalTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("order %s: illegal transition %s -> %s", e.OrderID, e.From, e.To)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой остатка.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// IsIllegalTransition проверяет, является ли ошибка недопустимым переходом.
func IsIllegalTransition(err error) bool {
	var target *IllegalTransitionError
	return errors.As(err, &target)
}

// IsPermanent отделяет бизнес-ошибки, повтор которых не поможет, от временных сбоев.
func IsPermanent(err error) bool {
	switch {
	case err == nil:
		return false
	case IsInsufficientStock(err), IsIllegalTransition(err):
		return true
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, ErrUnknownOrderOp),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrQtyInvalid):
		return true
	}
	return false
}
