package inventory

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Catalog отдаёт карточки товаров через read-through кэш.
type Catalog struct {
	products domain.ProductRepository
	detail   *cache.ReadThrough[domain.Product]
	logger   *log.Entry
	now      func() time.Time
}

// NewCatalog создаёт каталог поверх репозитория товаров.
func NewCatalog(products domain.ProductRepository, store cache.Store, ttl time.Duration, logger *log.Entry, observer cache.Observer) *Catalog {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Catalog{
		products: products,
		detail:   cache.NewReadThrough[domain.Product](store, cache.KindProduct, ttl, logger, observer),
		logger:   logger,
		now:      time.Now,
	}
}

// Product возвращает карточку товара.
func (c *Catalog) Product(ctx context.Context, id string) (domain.Product, error) {
	return c.detail.Get(ctx, cache.ProductKey(id), func(ctx context.Context) (domain.Product, error) {
		return c.products.Get(ctx, id)
	})
}

// Upsert создаёт или перезаписывает товар и сбрасывает его карточку в кэше.
func (c *Catalog) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if product.PriceMinor < 0 {
		return domain.Product{}, domain.ErrItemPriceInvalid
	}
	product.UpdatedAt = c.now().UTC()

	if err := c.products.Upsert(ctx, product); err != nil {
		return domain.Product{}, err
	}
	c.detail.Evict(ctx, cache.ProductKey(product.ID))
	c.logger.WithField("product_id", product.ID).Info("product upserted")
	return product, nil
}
