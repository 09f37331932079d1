package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const paymentColumns = `
	id, user_id, provider_order_id, provider_payment_id, status, amount_minor,
	currency, method, receipt, order_id, created_at, updated_at`

// statusRankSQL переводит статус платежа в его ранг прямо в SQL.
func statusRankSQL(expr string) string {
	var b strings.Builder
	b.WriteString("CASE " + expr)
	for rank, status := range domain.PaymentStatusesByRank() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", status, rank)
	}
	b.WriteString(" ELSE -1 END")
	return b.String()
}

// advanceStatusSQL оставляет текущий статус, если новый (param) не старше его.
func advanceStatusSQL(param string) string {
	incoming := param + "::TEXT"
	return "CASE WHEN " + statusRankSQL(incoming) + " > " + statusRankSQL("status") +
		" THEN " + incoming + " ELSE status END"
}

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p                 domain.Payment
		status            string
		providerPaymentID sql.NullString
		orderID           sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.ProviderOrderID, &providerPaymentID, &status, &p.AmountMinor,
		&p.Currency, &p.Method, &p.Receipt, &orderID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	p.ProviderPaymentID = providerPaymentID.String
	p.OrderID = orderID.String
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		p.ID, p.UserID, p.ProviderOrderID, nullable(p.ProviderPaymentID), string(p.Status), p.AmountMinor,
		p.Currency, p.Method, p.Receipt, nullable(p.OrderID), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	return r.getBy(ctx, "id", id)
}

func (r *paymentRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (domain.Payment, error) {
	return r.getBy(ctx, "provider_order_id", providerOrderID)
}

func (r *paymentRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (domain.Payment, error) {
	return r.getBy(ctx, "provider_payment_id", providerPaymentID)
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.getBy(ctx, "order_id", orderID)
}

// getBy ищет платёж по одной колонке; column приходит только из констант выше.
func (r *paymentRepository) getBy(ctx context.Context, column, value string) (domain.Payment, error) {
	if value == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment by %s: %w", column, err)
	}
	return p, nil
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// Update перезаписывает изменяемые поля. order_id меняется только с NULL,
// статус только продвигается вперёд.
func (r *paymentRepository) Update(ctx context.Context, p domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET provider_payment_id = COALESCE($1, provider_payment_id),
		    status = `+advanceStatusSQL("$2")+`,
		    method = $3,
		    order_id = COALESCE(order_id, $4),
		    updated_at = $5
		WHERE id = $6 AND (order_id IS NULL OR $4::TEXT IS NULL OR order_id = $4)
	`, nullable(p.ProviderPaymentID), string(p.Status), p.Method, nullable(p.OrderID), p.UpdatedAt, p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyLinked
		}
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := r.Get(ctx, p.ID); err != nil {
		return err
	}
	return domain.ErrPaymentAlreadyLinked
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
