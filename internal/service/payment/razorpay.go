package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RazorpayProvider — адаптер PaymentProvider поверх REST API Razorpay.
// SDK не принимает context, поэтому отмена запроса не прерывает HTTP-вызов.
type RazorpayProvider struct {
	client *razorpay.Client
}

// NewRazorpayProvider создаёт клиента с парой ключей API.
func NewRazorpayProvider(keyID, keySecret string) *RazorpayProvider {
	return &RazorpayProvider{client: razorpay.NewClient(keyID, keySecret)}
}

func (p *RazorpayProvider) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (domain.ProviderOrder, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProviderOrder{}, err
	}
	body, err := p.client.Order.Create(map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}, nil)
	if err != nil {
		return domain.ProviderOrder{}, fmt.Errorf("razorpay create order: %w", err)
	}
	return parseOrder(body)
}

func (p *RazorpayProvider) FetchPayment(ctx context.Context, providerPaymentID string) (domain.ProviderPayment, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProviderPayment{}, err
	}
	body, err := p.client.Payment.Fetch(providerPaymentID, nil, nil)
	if err != nil {
		return domain.ProviderPayment{}, fmt.Errorf("razorpay fetch payment: %w", err)
	}
	return parsePayment(body)
}

func parseOrder(body map[string]interface{}) (domain.ProviderOrder, error) {
	id := stringField(body, "id")
	if id == "" {
		return domain.ProviderOrder{}, fmt.Errorf("razorpay order response without id")
	}
	return domain.ProviderOrder{
		ID:          id,
		AmountMinor: int64Field(body, "amount"),
		Currency:    stringField(body, "currency"),
		Receipt:     stringField(body, "receipt"),
		Status:      stringField(body, "status"),
	}, nil
}

func parsePayment(body map[string]interface{}) (domain.ProviderPayment, error) {
	id := stringField(body, "id")
	if id == "" {
		return domain.ProviderPayment{}, fmt.Errorf("razorpay payment response without id")
	}
	return domain.ProviderPayment{
		ID:      id,
		OrderID: stringField(body, "order_id"),
		Status:  mapStatus(stringField(body, "status")),
		Method:  stringField(body, "method"),
	}, nil
}

// mapStatus переводит статус Razorpay в локальный.
func mapStatus(status string) domain.PaymentStatus {
	switch status {
	case "captured":
		return domain.PaymentStatusCaptured
	case "authorized":
		return domain.PaymentStatusPaid
	case "failed":
		return domain.PaymentStatusFailed
	}
	return domain.PaymentStatusCreated
}

func stringField(body map[string]interface{}, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

// JSON-числа приходят из SDK как float64.
func int64Field(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

var _ domain.PaymentProvider = (*RazorpayProvider)(nil)
