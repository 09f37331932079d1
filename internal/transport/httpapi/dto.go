package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderItemResponse struct {
	ID         string `json:"id"`
	ProductID  string `json:"productId"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"priceMinor"`
	TotalMinor int64  `json:"totalMinor"`
}

type orderResponse struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	Status        domain.OrderStatus  `json:"status"`
	PaymentMethod string              `json:"paymentMethod"`
	Address       domain.Address      `json:"address"`
	TotalMinor    int64               `json:"totalMinor"`
	Items         []orderItemResponse `json:"items"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			TotalMinor: item.TotalMinor,
		})
	}
	return orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: string(o.PaymentMethod),
		Address:       o.Address,
		TotalMinor:    o.TotalMinor,
		Items:         items,
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func newOrderList(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	return out
}

type timelineEventResponse struct {
	Op       string    `json:"op,omitempty"`
	From     string    `json:"from,omitempty"`
	Status   string    `json:"status"`
	ActorID  string    `json:"actorId,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type acceptedResponse struct {
	Status  string         `json:"status"`
	OrderID string         `json:"orderId"`
	Op      domain.OrderOp `json:"op"`
}

type productResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"priceMinor"`
	Quantity   int64     `json:"quantity"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		PriceMinor: p.PriceMinor,
		Quantity:   p.Quantity,
		UpdatedAt:  p.UpdatedAt,
	}
}

type paymentResponse struct {
	ID                string               `json:"id"`
	KeyID             string               `json:"keyId,omitempty"`
	ProviderOrderID   string               `json:"providerOrderId"`
	ProviderPaymentID string               `json:"providerPaymentId,omitempty"`
	Status            domain.PaymentStatus `json:"status"`
	AmountMinor       int64                `json:"amountMinor"`
	Currency          string               `json:"currency"`
	Method            string               `json:"method,omitempty"`
	Receipt           string               `json:"receipt,omitempty"`
	OrderID           string               `json:"orderId,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
}

func newPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		ProviderOrderID:   p.ProviderOrderID,
		ProviderPaymentID: p.ProviderPaymentID,
		Status:            p.Status,
		AmountMinor:       p.AmountMinor,
		Currency:          p.Currency,
		Method:            p.Method,
		Receipt:           p.Receipt,
		OrderID:           p.OrderID,
		CreatedAt:         p.CreatedAt,
	}
}

type checkoutRequest struct {
	Address           domain.Address       `json:"address"`
	PaymentMethod     domain.PaymentMethod `json:"paymentMethod" binding:"required"`
	ProviderOrderID   string               `json:"providerOrderId"`
	ProviderPaymentID string               `json:"providerPaymentId"`
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Qty       int32  `json:"qty"`
}

type productRequest struct {
	Name       string `json:"name" binding:"required"`
	PriceMinor int64  `json:"priceMinor"`
	Quantity   int64  `json:"quantity"`
}

type createPaymentRequest struct {
	AmountMinor int64  `json:"amountMinor" binding:"required"`
	Currency    string `json:"currency"`
}

type verifyPaymentRequest struct {
	ProviderOrderID   string `json:"providerOrderId" binding:"required"`
	ProviderPaymentID string `json:"providerPaymentId" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
}
