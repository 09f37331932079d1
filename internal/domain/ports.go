package domain

import "context"

// ProviderOrder — заказ, созданный у платёжного провайдера.
type ProviderOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
	Status      string
}

// ProviderPayment — состояние платежа у провайдера.
type ProviderPayment struct {
	ID      string
	OrderID string
	Status  PaymentStatus
	Method  string
}

// PaymentProvider описывает взаимодействие с платёжным провайдером.
type PaymentProvider interface {
	// CreateOrder создаёт заказ на оплату у провайдера.
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (ProviderOrder, error)
	// FetchPayment возвращает актуальный статус платежа.
	FetchPayment(ctx context.Context, providerPaymentID string) (ProviderPayment, error)
}

// Actor — аутентифицированный пользователь, от имени которого выполняется вызов.
type Actor struct {
	UserID string
	Admin  bool
}

// Can проверяет право актёра на переход над заказом владельца ownerID.
func (a Actor) Can(t Transition, ownerID string) bool {
	switch t.Role {
	case RoleAdmin:
		return a.Admin
	case RoleOwner:
		return a.UserID == ownerID
	}
	return false
}
