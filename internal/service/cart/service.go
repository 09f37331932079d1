package cart

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
)

// Service читает корзину через кэш и меняет её асинхронно через топик корзин.
type Service struct {
	carts     domain.CartRepository
	products  domain.ProductRepository
	publisher pipeline.Publisher
	snapshots *cache.ReadThrough[domain.CartSnapshot]
	logger    *log.Entry
	now       func() time.Time
}

// NewService создаёт сервис корзин.
func NewService(
	carts domain.CartRepository,
	products domain.ProductRepository,
	publisher pipeline.Publisher,
	store cache.Store,
	ttl time.Duration,
	logger *log.Entry,
	observer cache.Observer,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Service{
		carts:     carts,
		products:  products,
		publisher: publisher,
		snapshots: cache.NewReadThrough[domain.CartSnapshot](store, cache.KindCart, ttl, logger, observer),
		logger:    logger,
		now:       time.Now,
	}
}

// Snapshot возвращает корзину с текущими ценами каталога.
func (s *Service) Snapshot(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	if userID == "" {
		return domain.CartSnapshot{}, domain.ErrUserRequired
	}
	return s.snapshots.Get(ctx, cache.CartKey(userID), func(ctx context.Context) (domain.CartSnapshot, error) {
		return s.price(ctx, userID)
	})
}

func (s *Service) price(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	snapshot := domain.CartSnapshot{UserID: userID, Lines: []domain.CartLine{}}
	for _, item := range cart.Items {
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				// Товар сняли с продажи; позиция не показывается и не оформится.
				s.logger.WithField("product_id", item.ProductID).Warn("cart item references missing product")
				continue
			}
			return domain.CartSnapshot{}, err
		}
		line := domain.CartLine{
			ProductID:  item.ProductID,
			Name:       product.Name,
			Qty:        item.Qty,
			PriceMinor: product.PriceMinor,
			TotalMinor: int64(item.Qty) * product.PriceMinor,
		}
		snapshot.Lines = append(snapshot.Lines, line)
		snapshot.TotalMinor += line.TotalMinor
	}
	return snapshot, nil
}

// Request проверяет команду и публикует её в топик корзин.
func (s *Service) Request(ctx context.Context, cmd domain.CartCommand) error {
	if err := validate(cmd); err != nil {
		return err
	}
	if cmd.Op == domain.CartOpAdd || cmd.Op == domain.CartOpUpdate {
		if _, err := s.products.Get(ctx, cmd.ProductID); err != nil {
			return err
		}
	}
	return s.publisher.Publish(ctx, cmd)
}

// Apply применяет команду к корзине и сбрасывает её кэш.
func (s *Service) Apply(ctx context.Context, cmd domain.CartCommand) error {
	if err := validate(cmd); err != nil {
		return err
	}

	if cmd.Op == domain.CartOpClear {
		if err := s.carts.Clear(ctx, cmd.UserID); err != nil {
			return err
		}
		s.snapshots.Evict(ctx, cache.CartKey(cmd.UserID))
		return nil
	}

	cart, err := s.carts.Get(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	cart.UserID = cmd.UserID

	switch cmd.Op {
	case domain.CartOpAdd:
		if err := cart.Add(cmd.ProductID, cmd.Qty); err != nil {
			return err
		}
	case domain.CartOpUpdate:
		cart.Set(cmd.ProductID, cmd.Qty)
	case domain.CartOpRemove:
		cart.Set(cmd.ProductID, 0)
	}
	cart.UpdatedAt = s.now().UTC()

	if err := s.carts.Save(ctx, cart); err != nil {
		return err
	}
	s.snapshots.Evict(ctx, cache.CartKey(cmd.UserID))

	s.logger.WithFields(log.Fields{
		"user_id":    cmd.UserID,
		"op":         cmd.Op,
		"product_id": cmd.ProductID,
	}).Debug("cart updated")
	return nil
}

func validate(cmd domain.CartCommand) error {
	if cmd.UserID == "" {
		return domain.ErrUserRequired
	}
	switch cmd.Op {
	case domain.CartOpClear:
		return nil
	case domain.CartOpRemove:
		if cmd.ProductID == "" {
			return domain.ErrProductNotFound
		}
		return nil
	case domain.CartOpAdd:
		if cmd.ProductID == "" {
			return domain.ErrProductNotFound
		}
		if cmd.Qty <= 0 || cmd.Qty > domain.MaxCartLineQty {
			return domain.ErrQtyInvalid
		}
		return nil
	case domain.CartOpUpdate:
		if cmd.ProductID == "" {
			return domain.ErrProductNotFound
		}
		if cmd.Qty < 0 || cmd.Qty > domain.MaxCartLineQty {
			return domain.ErrQtyInvalid
		}
		return nil
	}
	return domain.ErrUnknownCommand
}
