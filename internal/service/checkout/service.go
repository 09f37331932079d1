package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Результаты оформления для метрик.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultReplayed = "replayed"
	resultError    = "error"
)

const idempotencyScope = "checkout"

// Request — параметры оформления заказа из корзины.
type Request struct {
	Address           domain.Address
	PaymentMethod     domain.PaymentMethod
	ProviderOrderID   string
	ProviderPaymentID string
	// IdempotencyKey — необязательный ключ повтора запроса клиентом.
	IdempotencyKey string
}

// Dependencies — хранилища, с которыми работает оформление.
type Dependencies struct {
	Carts    domain.CartRepository
	Products domain.ProductRepository
	Payments domain.PaymentRepository
	Orders   domain.OrderRepository
	Store    domain.CheckoutStore
	Timeline domain.TimelineRepository
}

// Service превращает корзину в заказ PENDING.
type Service struct {
	deps        Dependencies
	cache       cache.Store
	idempotency *cache.IdempotencyStore
	logger      *log.Entry
	metrics     *metrics.OrderMetrics
	now         func() time.Time
	newID       func() string
}

// NewService создаёт сервис оформления. idempotency может быть nil:
// тогда ключ повтора игнорируется.
func NewService(deps Dependencies, store cache.Store, idempotency *cache.IdempotencyStore, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		deps:        deps,
		cache:       store,
		idempotency: idempotency,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Checkout оформляет корзину пользователя.
// Повтор с тем же ключом идемпотентности возвращает ранее созданный заказ.
func (s *Service) Checkout(ctx context.Context, userID string, req Request) (domain.Order, error) {
	if req.IdempotencyKey == "" || s.idempotency == nil {
		order, err := s.place(ctx, userID, req)
		s.record(err)
		return order, err
	}

	var placed domain.Order
	orderID, replayed, err := s.idempotency.Do(ctx, idempotencyScope+":"+userID, req.IdempotencyKey, func(ctx context.Context) (string, error) {
		order, err := s.place(ctx, userID, req)
		if err != nil {
			return "", err
		}
		placed = order
		return order.ID, nil
	})
	if err != nil {
		s.record(err)
		return domain.Order{}, err
	}
	if !replayed {
		s.record(nil)
		return placed, nil
	}

	s.metrics.RecordCheckout(resultReplayed)
	s.logger.WithFields(log.Fields{
		"user_id":  userID,
		"order_id": orderID,
	}).Info("checkout replayed by idempotency key")
	return s.deps.Orders.Get(ctx, orderID)
}

func (s *Service) place(ctx context.Context, userID string, req Request) (domain.Order, error) {
	if userID == "" {
		return domain.Order{}, domain.ErrUserRequired
	}
	if !req.PaymentMethod.Valid() {
		return domain.Order{}, domain.ErrPaymentMethodInvalid
	}
	if err := req.Address.Validate(); err != nil {
		return domain.Order{}, err
	}

	cart, err := s.deps.Carts.Get(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	if cart.Empty() {
		return domain.Order{}, domain.ErrEmptyCart
	}

	now := s.now().UTC()
	order := domain.Order{
		ID:            s.newID(),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		Address:       req.Address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Проверка остатка оптимистичная: склад списывается только при подтверждении.
	for _, item := range cart.Items {
		product, err := s.deps.Products.Get(ctx, item.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if int64(item.Qty) > product.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: int64(item.Qty),
				Available: product.Quantity,
			}
		}
		order.Items = append(order.Items, domain.NewOrderItem(s.newID(), item.ProductID, item.Qty, product.PriceMinor, now))
	}
	order.TotalMinor = order.ItemsTotal()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	payment, err := s.settlePayment(ctx, userID, order, req, now)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.deps.Store.PlaceOrder(ctx, order, payment); err != nil {
		return domain.Order{}, err
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"user_id":     userID,
		"total_minor": order.TotalMinor,
	})

	if err := s.deps.Carts.Clear(ctx, userID); err != nil {
		logger.WithError(err).Warn("failed to clear cart after checkout")
	}
	if err := s.deps.Timeline.Append(ctx, domain.NewPlacedEvent(order)); err != nil {
		logger.WithError(err).Warn("failed to append timeline event")
	} else {
		s.metrics.RecordTimelineEvent()
	}
	cache.Evict(ctx, s.cache, logger, cache.CartKey(userID), cache.OrderListKey(userID))

	logger.Info("order placed")
	return order, nil
}

// settlePayment находит платёж пользователя, отмечает его оплаченным и привязывает к заказу.
// Для COD возвращает nil.
func (s *Service) settlePayment(ctx context.Context, userID string, order domain.Order, req Request, now time.Time) (*domain.Payment, error) {
	if !req.PaymentMethod.Online() {
		return nil, nil
	}
	if req.ProviderOrderID == "" {
		return nil, domain.ErrProviderOrderIDRequired
	}

	payment, err := s.deps.Payments.GetByProviderOrderID(ctx, req.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, domain.ErrPaymentNotFound
	}
	if err := payment.LinkOrder(order.ID); err != nil {
		return nil, err
	}
	if req.ProviderPaymentID != "" && payment.ProviderPaymentID == "" {
		payment.ProviderPaymentID = req.ProviderPaymentID
	}
	payment.Advance(domain.PaymentStatusPaid, now)
	return &payment, nil
}

func (s *Service) record(err error) {
	switch {
	case err == nil:
		s.metrics.RecordCheckout(resultOK)
	case isRejection(err):
		s.metrics.RecordCheckout(resultRejected)
	default:
		s.metrics.RecordCheckout(resultError)
	}
}

func isRejection(err error) bool {
	return domain.IsInsufficientStock(err) ||
		errors.Is(err, domain.ErrEmptyCart) ||
		errors.Is(err, domain.ErrProductNotFound) ||
		errors.Is(err, domain.ErrPaymentNotFound) ||
		errors.Is(err, domain.ErrPaymentAlreadyLinked) ||
		errors.Is(err, domain.ErrIdempotencyInProgress)
}
