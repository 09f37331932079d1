package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FakeProvider — провайдер в памяти для локального запуска и тестов.
type FakeProvider struct {
	mu       sync.Mutex
	orders   map[string]domain.ProviderOrder
	payments map[string]domain.ProviderPayment

	// CreateErr и FetchErr позволяют сымитировать сбой провайдера.
	CreateErr error
	FetchErr  error
}

// NewFakeProvider создаёт пустой фейковый провайдер.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		orders:   make(map[string]domain.ProviderOrder),
		payments: make(map[string]domain.ProviderPayment),
	}
}

func (f *FakeProvider) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (domain.ProviderOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return domain.ProviderOrder{}, f.CreateErr
	}
	order := domain.ProviderOrder{
		ID:          "order_" + compactID(),
		AmountMinor: amountMinor,
		Currency:    currency,
		Receipt:     receipt,
		Status:      "created",
	}
	f.orders[order.ID] = order
	return order, nil
}

// Pay имитирует оплату заказа клиентом и возвращает id платежа провайдера.
func (f *FakeProvider) Pay(providerOrderID, method string, status domain.PaymentStatus) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	payment := domain.ProviderPayment{
		ID:      "pay_" + compactID(),
		OrderID: providerOrderID,
		Status:  status,
		Method:  method,
	}
	f.payments[payment.ID] = payment
	return payment.ID
}

func (f *FakeProvider) FetchPayment(_ context.Context, providerPaymentID string) (domain.ProviderPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FetchErr != nil {
		return domain.ProviderPayment{}, f.FetchErr
	}
	payment, ok := f.payments[providerPaymentID]
	if !ok {
		return domain.ProviderPayment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func compactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

var _ domain.PaymentProvider = (*FakeProvider)(nil)
