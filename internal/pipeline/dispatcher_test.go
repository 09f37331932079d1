package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// scriptedVisitor возвращает ошибки из очереди, затем nil.
type scriptedVisitor struct {
	mu     sync.Mutex
	errs   []error
	orders []domain.OrderCommand
	carts  []domain.CartCommand
}

func (v *scriptedVisitor) next() error {
	if len(v.errs) == 0 {
		return nil
	}
	err := v.errs[0]
	v.errs = v.errs[1:]
	return err
}

func (v *scriptedVisitor) VisitOrder(_ context.Context, cmd domain.OrderCommand) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders = append(v.orders, cmd)
	return v.next()
}

func (v *scriptedVisitor) VisitCart(_ context.Context, cmd domain.CartCommand) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.carts = append(v.carts, cmd)
	return v.next()
}

func (v *scriptedVisitor) orderCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.orders)
}

type failingSink struct{}

func (failingSink) DeadLetter(context.Context, DeadLetter) error { return errors.New("dlq down") }

func newTestDispatcher(visitor domain.CommandVisitor, sink DeadLetterSink, attempts int) *Dispatcher {
	d := NewDispatcher(visitor,
		WithDeadLetterSink(sink),
		WithRetryConfig(RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}),
	)
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func encodeOrder(t *testing.T, op domain.OrderOp, orderID string) []byte {
	t.Helper()
	data, err := Encode(domain.OrderCommand{Op: op, OrderID: orderID}, time.Now())
	require.NoError(t, err)
	return data
}

func TestDispatcher_Handle(t *testing.T) {
	errTransient := errors.New("db timeout")
	illegal := &domain.IllegalTransitionError{OrderID: "o1", From: domain.OrderStatusConfirmed, To: domain.OrderStatusConfirmed}

	tests := []struct {
		name          string
		errs          []error
		attempts      int
		wantCalls     int
		wantDead      int
		wantDeadCount int
	}{
		{name: "success first try", errs: nil, attempts: 3, wantCalls: 1},
		{name: "transient then success", errs: []error{errTransient, errTransient}, attempts: 3, wantCalls: 3},
		{name: "transient exhausted", errs: []error{errTransient, errTransient, errTransient}, attempts: 3, wantCalls: 3, wantDead: 1, wantDeadCount: 3},
		{name: "permanent dead-lettered at once", errs: []error{illegal}, attempts: 3, wantCalls: 1, wantDead: 1, wantDeadCount: 1},
		{name: "insufficient stock is permanent", errs: []error{&domain.InsufficientStockError{ProductID: "p1", Requested: 2}}, attempts: 3, wantCalls: 1, wantDead: 1, wantDeadCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visitor := &scriptedVisitor{errs: tt.errs}
			sink := NewMemoryDeadLetters()
			d := newTestDispatcher(visitor, sink, tt.attempts)

			err := d.Handle(context.Background(), domain.TopicOrder, encodeOrder(t, domain.OrderOpConfirm, "o1"))
			require.NoError(t, err)
			require.Equal(t, tt.wantCalls, visitor.orderCalls())
			require.Equal(t, tt.wantDead, sink.Len())

			if tt.wantDead > 0 {
				letter := sink.List()[0]
				require.Equal(t, domain.TopicOrder, letter.Topic)
				require.Equal(t, "o1", letter.Key)
				require.Equal(t, tt.wantDeadCount, letter.Attempts)
				require.NotEmpty(t, letter.Error)

				// Конверт сохраняется без изменений и может быть переотправлен.
				cmd, _, err := Decode(letter.Envelope)
				require.NoError(t, err)
				require.Equal(t, "o1", cmd.Key())
			}
		})
	}
}

func TestDispatcher_MalformedGoesToDeadLetter(t *testing.T) {
	visitor := &scriptedVisitor{}
	sink := NewMemoryDeadLetters()
	d := newTestDispatcher(visitor, sink, 3)

	require.NoError(t, d.Handle(context.Background(), domain.TopicCart, []byte("garbage")))
	require.Equal(t, 1, sink.Len())
	require.Zero(t, sink.List()[0].Attempts)
	require.Empty(t, visitor.carts)
}

func TestDispatcher_SinkFailureIsReturned(t *testing.T) {
	d := newTestDispatcher(&scriptedVisitor{errs: []error{domain.ErrOrderNotFound}}, failingSink{}, 3)

	err := d.Handle(context.Background(), domain.TopicOrder, encodeOrder(t, domain.OrderOpShip, "o1"))
	require.Error(t, err)
}

func TestDispatcher_CancelledWhileBackingOff(t *testing.T) {
	visitor := &scriptedVisitor{errs: []error{errors.New("temporary")}}
	sink := NewMemoryDeadLetters()
	d := NewDispatcher(visitor,
		WithDeadLetterSink(sink),
		WithRetryConfig(RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Handle(ctx, domain.TopicOrder, encodeOrder(t, domain.OrderOpConfirm, "o1"))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, sink.Len(), "cancelled command must be redelivered, not dead-lettered")
}
