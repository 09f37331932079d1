package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type capturePublisher struct {
	cmds []domain.Command
}

func (p *capturePublisher) Publish(_ context.Context, cmd domain.Command) error {
	p.cmds = append(p.cmds, cmd)
	return nil
}

func newTestService(t *testing.T) (*Service, *capturePublisher, domain.ProductRepository) {
	t.Helper()
	products := memory.NewProductRepository()
	require.NoError(t, products.Upsert(context.Background(), domain.Product{ID: "p1", Name: "Mug", PriceMinor: 250, Quantity: 5}))
	require.NoError(t, products.Upsert(context.Background(), domain.Product{ID: "p2", Name: "Tea", PriceMinor: 100, Quantity: 5}))

	publisher := &capturePublisher{}
	svc := NewService(memory.NewCartRepository(), products, publisher, cache.NewMemoryStore(), cache.DefaultTTL, nil, nil)
	return svc, publisher, products
}

func TestService_ApplyAndSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	empty, err := svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, empty.Lines)

	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpAdd, UserID: "user-1", ProductID: "p1", Qty: 1}))
	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpAdd, UserID: "user-1", ProductID: "p1", Qty: 1}))
	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpAdd, UserID: "user-1", ProductID: "p2", Qty: 3}))

	snapshot, err := svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, snapshot.Lines, 2)
	require.Equal(t, int32(2), snapshot.Lines[0].Qty)
	require.Equal(t, int64(500), snapshot.Lines[0].TotalMinor)
	require.Equal(t, int64(800), snapshot.TotalMinor)

	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpUpdate, UserID: "user-1", ProductID: "p2", Qty: 1}))
	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpRemove, UserID: "user-1", ProductID: "p1"}))

	snapshot, err = svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, []domain.CartLine{{ProductID: "p2", Name: "Tea", Qty: 1, PriceMinor: 100, TotalMinor: 100}}, snapshot.Lines)

	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpClear, UserID: "user-1"}))
	snapshot, err = svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, snapshot.Lines)
	require.Zero(t, snapshot.TotalMinor)
}

func TestService_SnapshotSkipsMissingProducts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpAdd, UserID: "user-1", ProductID: "gone", Qty: 1}))
	require.NoError(t, svc.Apply(ctx, domain.CartCommand{Op: domain.CartOpAdd, UserID: "user-1", ProductID: "p1", Qty: 1}))

	snapshot, err := svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, snapshot.Lines, 1)
	require.Equal(t, "p1", snapshot.Lines[0].ProductID)
}

func TestService_Request(t *testing.T) {
	tests := []struct {
		name    string
		cmd     domain.CartCommand
		wantErr error
	}{
		{name: "add", cmd: domain.CartCommand{Op: domain.CartOpAdd, UserID: "u", ProductID: "p1", Qty: 1}},
		{name: "update to zero", cmd: domain.CartCommand{Op: domain.CartOpUpdate, UserID: "u", ProductID: "p1"}},
		{name: "remove", cmd: domain.CartCommand{Op: domain.CartOpRemove, UserID: "u", ProductID: "p1"}},
		{name: "clear", cmd: domain.CartCommand{Op: domain.CartOpClear, UserID: "u"}},
		{name: "no user", cmd: domain.CartCommand{Op: domain.CartOpClear}, wantErr: domain.ErrUserRequired},
		{name: "zero qty add", cmd: domain.CartCommand{Op: domain.CartOpAdd, UserID: "u", ProductID: "p1"}, wantErr: domain.ErrQtyInvalid},
		{name: "add above line limit", cmd: domain.CartCommand{Op: domain.CartOpAdd, UserID: "u", ProductID: "p1", Qty: domain.MaxCartLineQty + 1}, wantErr: domain.ErrQtyInvalid},
		{name: "update above line limit", cmd: domain.CartCommand{Op: domain.CartOpUpdate, UserID: "u", ProductID: "p1", Qty: domain.MaxCartLineQty + 1}, wantErr: domain.ErrQtyInvalid},
		{name: "unknown product", cmd: domain.CartCommand{Op: domain.CartOpAdd, UserID: "u", ProductID: "ghost", Qty: 1}, wantErr: domain.ErrProductNotFound},
		{name: "unknown op", cmd: domain.CartCommand{Op: "MERGE", UserID: "u"}, wantErr: domain.ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, publisher, _ := newTestService(t)
			err := svc.Request(context.Background(), tt.cmd)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Empty(t, publisher.cmds)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []domain.Command{tt.cmd}, publisher.cmds)
		})
	}
}

func TestService_ApplyRejectsLineOverflow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	add := domain.CartCommand{Op: domain.CartOpAdd, UserID: "user-1", ProductID: "p1", Qty: domain.MaxCartLineQty}

	require.NoError(t, svc.Apply(ctx, add))
	err := svc.Apply(ctx, add)
	require.ErrorIs(t, err, domain.ErrQtyInvalid)
	require.True(t, domain.IsPermanent(err), "overflow must be dead-lettered, not retried")

	snapshot, err := svc.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, snapshot.Lines, 1)
	require.Equal(t, domain.MaxCartLineQty, snapshot.Lines[0].Qty)
}
