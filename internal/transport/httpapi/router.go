package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// CheckoutService оформляет заказ из корзины.
type CheckoutService interface {
	Checkout(ctx context.Context, userID string, req checkout.Request) (domain.Order, error)
}

// OrderService читает заказы и принимает запросы переходов.
type OrderService interface {
	RequestTransition(ctx context.Context, actor domain.Actor, orderID string, op domain.OrderOp, reason string) error
	Get(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) ([]domain.Order, error)
	Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error)
	Purchases(ctx context.Context, userID string) ([]string, error)
}

// CartService читает корзину и ставит её изменения в очередь.
type CartService interface {
	Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error)
	Request(ctx context.Context, cmd domain.CartCommand) error
}

// CatalogService отдаёт и обновляет товары.
type CatalogService interface {
	Product(ctx context.Context, id string) (domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (domain.Product, error)
}

// PaymentService — сверка платежей с провайдером.
type PaymentService interface {
	CreatePaymentOrder(ctx context.Context, userID string, amountMinor int64, currency string) (domain.Payment, error)
	VerifyAndComplete(ctx context.Context, userID, providerOrderID, providerPaymentID, signature string) (bool, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Get(ctx context.Context, userID, id string) (domain.Payment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error)
}

// Services — зависимости HTTP API.
type Services struct {
	Checkout CheckoutService
	Orders   OrderService
	Carts    CartService
	Catalog  CatalogService
	Payments PaymentService
	// PaymentKeyID отдаётся клиенту вместе с заказом провайдера.
	PaymentKeyID string
}

type handler struct {
	svc Services
}

// NewRouter собирает gin-роутер публичного API.
func NewRouter(svc Services, verifier *TokenVerifier, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	h := &handler{svc: svc}

	router := gin.New()
	router.Use(gin.Recovery(), Metrics(), RequestLogger(logger))

	router.GET("/products/:id", h.getProduct)
	router.POST("/payments/webhook", h.paymentWebhook)

	api := router.Group("/", Authenticate(verifier))
	api.POST("/checkout", h.checkout)

	api.GET("/order", h.listOrders)
	api.GET("/order/:id", h.getOrder)
	api.GET("/order/:id/timeline", h.orderTimeline)
	api.PATCH("/order/:id/cancel", h.transition(domain.OrderOpCancel))
	api.POST("/order/:id/return", h.transition(domain.OrderOpRequestReturn))

	api.GET("/cart", h.getCart)
	api.POST("/cart/items", h.addCartItem)
	api.PUT("/cart/items/:productId", h.updateCartItem)
	api.DELETE("/cart/items/:productId", h.removeCartItem)
	api.DELETE("/cart", h.clearCart)

	api.GET("/purchases", h.purchases)

	api.POST("/payments", h.createPayment)
	api.POST("/payments/verify", h.verifyPayment)
	api.GET("/payments", h.listPayments)
	api.GET("/payments/:id", h.getPayment)

	admin := api.Group("/admin", RequireAdmin())
	admin.POST("/order/:id/confirm", h.transition(domain.OrderOpConfirm))
	admin.POST("/order/:id/ship", h.transition(domain.OrderOpShip))
	admin.POST("/order/:id/deliver", h.transition(domain.OrderOpDeliver))
	admin.POST("/order/:id/approve-return", h.transition(domain.OrderOpApproveReturn))
	admin.POST("/order/:id/complete-return", h.transition(domain.OrderOpCompleteReturn))
	admin.GET("/orders", h.adminListOrders)
	admin.PUT("/products/:id", h.upsertProduct)

	return router
}
