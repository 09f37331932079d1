package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestTimelineRepository_OrderAndValidation(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cmd := domain.OrderCommand{Op: domain.OrderOpConfirm, OrderID: "o1", ActorID: "admin"}
	confirm, ok := domain.LookupTransition(domain.OrderOpConfirm)
	require.True(t, ok)

	require.NoError(t, repo.Append(ctx, domain.NewTransitionEvent(cmd, domain.OrderStatusPending, confirm, base.Add(time.Minute))))
	require.NoError(t, repo.Append(ctx, domain.NewPlacedEvent(domain.Order{
		ID: "o1", UserID: "u1", Status: domain.OrderStatusPending, CreatedAt: base,
	})))

	events, err := repo.List(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.OrderStatusPending, events[0].Status)
	require.Equal(t, "u1", events[0].ActorID)
	require.Equal(t, domain.OrderOpConfirm, events[1].Op)
	require.Equal(t, domain.OrderStatusPending, events[1].From)
	require.Equal(t, "admin", events[1].ActorID)

	events[0].Reason = "mutated"
	again, err := repo.List(ctx, "o1")
	require.NoError(t, err)
	require.Empty(t, again[0].Reason, "List must return a copy")

	require.ErrorIs(t, repo.Append(ctx, domain.TimelineEvent{Status: domain.OrderStatusPending}), domain.ErrOrderNotFound)
	require.ErrorIs(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "o1", Status: "LOST"}), domain.ErrOrderStatusInvalid)

	empty, err := repo.List(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}
