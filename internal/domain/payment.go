package domain

import (
	"slices"
	"time"
)

// PaymentStatus описывает состояние платежа в системе.
type PaymentStatus string

const (
	// PaymentStatusCreated — заказ у провайдера создан, клиент ещё не заплатил.
	PaymentStatusCreated PaymentStatus = "created"
	// PaymentStatusPaid — клиент подтвердил оплату, подпись проверена.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusCaptured — провайдер подтвердил списание (финальный расчёт).
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusFailed — провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
)

// paymentStatusOrder задаёт порядок статусов: статус платежа только продвигается вперёд.
var paymentStatusOrder = []PaymentStatus{
	PaymentStatusCreated,
	PaymentStatusFailed,
	PaymentStatusPaid,
	PaymentStatusCaptured,
}

// PaymentStatusesByRank возвращает статусы от младшего к старшему.
func PaymentStatusesByRank() []PaymentStatus {
	return slices.Clone(paymentStatusOrder)
}

func (s PaymentStatus) rank() int {
	return slices.Index(paymentStatusOrder, s)
}

// Stronger возвращает старший из двух статусов; при равенстве остаётся s.
func (s PaymentStatus) Stronger(other PaymentStatus) PaymentStatus {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// Payment описывает платёж у провайдера и его локальную запись.
// Связь с заказом однонаправленная: Payment хранит OrderID, заказ платёж не хранит.
type Payment struct {
	ID                string
	UserID            string
	ProviderOrderID   string
	ProviderPaymentID string // Пусто, пока провайдер не завершил оплату.
	Status            PaymentStatus
	AmountMinor       int64
	Currency          string
	Method            string
	Receipt           string
	OrderID           string // Устанавливается один раз при оформлении заказа.
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	switch {
	case p.ProviderOrderID == "":
		errs = append(errs, ErrProviderOrderIDRequired)
	case p.AmountMinor <= 0:
		errs = append(errs, ErrPaymentAmountInvalid)
	case p.Currency == "":
		errs = append(errs, ErrCurrencyRequired)
	}

	return errs
}

// Advance переводит платёж в новый статус, если тот не откатывает его назад.
func (p *Payment) Advance(status PaymentStatus, now time.Time) bool {
	if status.rank() <= p.Status.rank() {
		return false
	}
	p.Status = status
	p.UpdatedAt = now
	return true
}

// LinkOrder привязывает платёж к заказу. Повторная привязка к тому же заказу допустима.
func (p *Payment) LinkOrder(orderID string) error {
	if p.OrderID != "" && p.OrderID != orderID {
		return ErrPaymentAlreadyLinked
	}
	p.OrderID = orderID
	return nil
}
