package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct {
	store *Store
}

// NewCartRepository создаёт PostgreSQL-реализацию корзин.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{store: store}
}

func (r *cartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT product_id, qty, updated_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY position
	`, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	cart := domain.Cart{UserID: userID}
	for rows.Next() {
		var (
			item      domain.CartItem
			updatedAt time.Time
		)
		if err := rows.Scan(&item.ProductID, &item.Qty, &updatedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		if updatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = updatedAt
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart: %w", err)
	}
	return cart, nil
}

// Save заменяет содержимое корзины целиком.
func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.UserID == "" {
		return domain.ErrUserRequired
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, cart.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		for i, item := range cart.Items {
			if item.Qty <= 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cart_items (user_id, product_id, qty, position, updated_at)
				VALUES ($1,$2,$3,$4,$5)
			`, cart.UserID, item.ProductID, item.Qty, i, cart.UpdatedAt); err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		}
		return nil
	})
}

func (r *cartRepository) Clear(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.store.DB().ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-хранилище истории покупок.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) AppendPurchases(ctx context.Context, userID string, productIDs []string) error {
	if userID == "" {
		return domain.ErrUserRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	for _, productID := range productIDs {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO purchase_history (user_id, product_id, purchased_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id, product_id) DO NOTHING
		`, userID, productID); err != nil {
			return fmt.Errorf("append purchase: %w", err)
		}
	}
	return nil
}

func (r *userRepository) ListPurchases(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id
		FROM purchase_history
		WHERE user_id = $1
		ORDER BY purchased_at, product_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	result := []string{}
	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		result = append(result, productID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchases: %w", err)
	}
	return result, nil
}

var (
	_ domain.CartRepository = (*cartRepository)(nil)
	_ domain.UserRepository = (*userRepository)(nil)
)
