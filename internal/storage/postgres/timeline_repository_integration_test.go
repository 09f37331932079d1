package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)
	ctx := context.Background()

	placedAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	cancel, ok := domain.LookupTransition(domain.OrderOpCancel)
	require.True(t, ok)

	// Нулевой occurred заполняется текущим временем, поэтому событие окажется последним.
	require.NoError(t, repo.Append(ctx, domain.NewTransitionEvent(
		domain.OrderCommand{Op: domain.OrderOpCancel, OrderID: "timeline-order", ActorID: "u1", Reason: "changed my mind"},
		domain.OrderStatusPending, cancel, time.Time{},
	)))
	require.NoError(t, repo.Append(ctx, domain.NewPlacedEvent(domain.Order{
		ID: "timeline-order", UserID: "u1", Status: domain.OrderStatusPending, CreatedAt: placedAt,
	})))

	events, err := repo.List(ctx, "timeline-order")
	require.NoError(t, err)
	require.Len(t, events, 2)

	placed := events[0]
	require.Equal(t, domain.OrderStatusPending, placed.Status)
	require.Empty(t, placed.Op)
	require.Empty(t, placed.From)
	require.True(t, placed.Occurred.Equal(placedAt))

	cancelled := events[1]
	require.Equal(t, domain.OrderOpCancel, cancelled.Op)
	require.Equal(t, domain.OrderStatusPending, cancelled.From)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, "u1", cancelled.ActorID)
	require.Equal(t, "changed my mind", cancelled.Reason)

	empty, err := repo.List(ctx, "missing-order")
	require.NoError(t, err)
	require.Empty(t, empty)

	require.ErrorIs(t, repo.Append(ctx, domain.TimelineEvent{Status: domain.OrderStatusPending}), domain.ErrOrderNotFound)
	require.ErrorIs(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "timeline-order", Status: "x"}), domain.ErrOrderStatusInvalid)
}
