package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const timelineColumns = `order_id, op, from_status, status, actor_id, reason, occurred`

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-хранилище истории переходов заказа.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func scanTimelineEvent(row rowScanner) (domain.TimelineEvent, error) {
	var (
		event          domain.TimelineEvent
		op, from, into string
	)
	if err := row.Scan(&event.OrderID, &op, &from, &into, &event.ActorID, &event.Reason, &event.Occurred); err != nil {
		return domain.TimelineEvent{}, err
	}
	event.Op = domain.OrderOp(op)
	event.From = domain.OrderStatus(from)
	event.Status = domain.OrderStatus(into)
	return event, nil
}

// Append дописывает событие; история только растёт, записи не обновляются.
func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderNotFound
	}
	if !event.Status.Valid() {
		return domain.ErrOrderStatusInvalid
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (`+timelineColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.OrderID, string(event.Op), string(event.From), string(event.Status), event.ActorID, event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+timelineColumns+`
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		event, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
