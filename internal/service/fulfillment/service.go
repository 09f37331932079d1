package fulfillment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
)

// Результаты переходов для метрик.
const (
	resultRequested = "requested"
	resultApplied   = "applied"
	resultRejected  = "rejected"
	resultFailed    = "failed"
)

// Service ведёт заказ по конечному автомату: принимает запросы переходов
// от HTTP и применяет их в consumer'е топика заказов.
type Service struct {
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	users     domain.UserRepository
	ledger    *inventory.Ledger
	publisher pipeline.Publisher
	lists     *cache.ReadThrough[[]domain.Order]
	listStore cache.Store
	listTTL   time.Duration
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithMetrics подключает метрики переходов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOrderListCache включает кэш списков заказов пользователя.
func WithOrderListCache(store cache.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.listStore = store
		s.listTTL = ttl
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис исполнения заказов.
func NewService(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	users domain.UserRepository,
	ledger *inventory.Ledger,
	publisher pipeline.Publisher,
	logger *log.Entry,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "fulfillment")
	}
	s := &Service{
		orders:    orders,
		timeline:  timeline,
		users:     users,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.listStore == nil {
		s.listStore = cache.NewMemoryStore()
	}
	s.lists = cache.NewReadThrough[[]domain.Order](s.listStore, cache.KindOrderList, s.listTTL, s.logger, s.metrics)
	return s
}

// RequestTransition проверяет права и допустимость перехода по текущему статусу
// и ставит команду в очередь. Принятый запрос предварительный: consumer
// перепроверит переход на момент применения.
func (s *Service) RequestTransition(ctx context.Context, actor domain.Actor, orderID string, op domain.OrderOp, reason string) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	t, ok := domain.LookupTransition(op)
	if !ok {
		return domain.ErrUnknownOrderOp
	}
	if !actor.Can(t, order.UserID) {
		return domain.ErrForbidden
	}
	if _, err := domain.PlanTransition(order, op); err != nil {
		s.metrics.RecordTransition(string(op), resultRejected)
		return err
	}

	cmd := domain.OrderCommand{
		Op:          op,
		OrderID:     order.ID,
		ActorID:     actor.UserID,
		Reason:      reason,
		RequestedAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, cmd); err != nil {
		return err
	}

	s.metrics.RecordTransition(string(op), resultRequested)
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"op":       op,
		"actor_id": actor.UserID,
	}).Info("order transition requested")
	return nil
}

// Apply исполняет команду перехода. Переход перепроверяется по свежему статусу,
// поэтому повторная доставка не применяет эффект дважды.
// Складской эффект выполняется до записи статуса и откатывается, если запись не удалась.
func (s *Service) Apply(ctx context.Context, cmd domain.OrderCommand) error {
	logger := s.logger.WithFields(log.Fields{
		"order_id": cmd.OrderID,
		"op":       cmd.Op,
	})

	order, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}

	t, err := domain.PlanTransition(order, cmd.Op)
	if err != nil {
		s.metrics.RecordTransition(string(cmd.Op), resultRejected)
		logger.WithError(err).Warn("transition rejected on apply")
		return err
	}

	if err := s.ledger.Apply(ctx, t.Effect, order.Items); err != nil {
		if domain.IsPermanent(err) {
			s.metrics.RecordTransition(string(cmd.Op), resultRejected)
		} else {
			s.metrics.RecordTransition(string(cmd.Op), resultFailed)
		}
		logger.WithError(err).Warn("inventory effect failed")
		return err
	}

	from := order.Status
	order.Status = t.To
	order.UpdatedAt = s.now().UTC()
	if err := s.orders.Save(ctx, order); err != nil {
		s.ledger.Revert(ctx, t.Effect, order.Items)
		s.metrics.RecordTransition(string(cmd.Op), resultFailed)
		logger.WithError(err).Warn("order save failed, inventory effect reverted")
		return err
	}

	if t.Effect == domain.EffectRecordPurchase {
		if err := s.users.AppendPurchases(ctx, order.UserID, order.ProductIDs()); err != nil {
			logger.WithError(err).Error("failed to record purchase history")
		}
	}

	if err := s.timeline.Append(ctx, domain.NewTransitionEvent(cmd, from, t, order.UpdatedAt)); err != nil {
		logger.WithError(err).Warn("failed to append timeline event")
	} else {
		s.metrics.RecordTimelineEvent()
	}

	s.lists.Evict(ctx, cache.OrderListKey(order.UserID))
	s.metrics.RecordTransition(string(cmd.Op), resultApplied)
	logger.WithFields(log.Fields{
		"from": from,
		"to":   order.Status,
	}).Info("order transition applied")
	return nil
}

// Get возвращает заказ владельцу или администратору.
func (s *Service) Get(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.Admin && actor.UserID != order.UserID {
		return domain.Order{}, domain.ErrForbidden
	}
	return order, nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return s.lists.Get(ctx, cache.OrderListKey(userID), func(ctx context.Context) ([]domain.Order, error) {
		orders, err := s.orders.ListByUser(ctx, userID, 0)
		if err != nil {
			return nil, err
		}
		if orders == nil {
			orders = []domain.Order{}
		}
		return orders, nil
	})
}

// List — административный список заказов всех пользователей.
func (s *Service) List(ctx context.Context, actor domain.Actor, filter domain.OrderFilter) ([]domain.Order, error) {
	if !actor.Admin {
		return nil, domain.ErrForbidden
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ErrOrderStatusInvalid
	}
	return s.orders.List(ctx, filter)
}

// Timeline возвращает историю переходов заказа.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.timeline.List(ctx, orderID)
}

// Purchases возвращает историю покупок пользователя.
func (s *Service) Purchases(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}
	return s.users.ListPurchases(ctx, userID)
}
