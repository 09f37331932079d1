package app

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

type recordingVisitor struct {
	mu     sync.Mutex
	orders []domain.OrderCommand
	carts  []domain.CartCommand
	fail   error
}

func (v *recordingVisitor) VisitOrder(_ context.Context, cmd domain.OrderCommand) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.orders = append(v.orders, cmd)
	return v.fail
}

func (v *recordingVisitor) VisitCart(_ context.Context, cmd domain.CartCommand) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.carts = append(v.carts, cmd)
	return v.fail
}

func TestCommandPipeline_MemoryBus(t *testing.T) {
	logger := log.WithField("test", "pipeline")
	p, err := newCommandPipeline(validConfig(), nil, logger)
	require.NoError(t, err)
	require.NotNil(t, p.bus)
	require.Nil(t, p.producer)

	visitor := &recordingVisitor{}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx, visitor))
	// Отмена контекста запуска не останавливает обработку.
	cancel()

	publisher := p.Publisher()
	require.NoError(t, publisher.Publish(context.Background(), domain.OrderCommand{Op: domain.OrderOpConfirm, OrderID: "o1", RequestedAt: time.Now()}))
	require.NoError(t, publisher.Publish(context.Background(), domain.CartCommand{Op: domain.CartOpClear, UserID: "u1"}))
	require.Equal(t, healthcheck.StatusHealthy, p.Checker().Check(context.Background()).Status)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()
	require.NoError(t, p.Close(closeCtx))

	visitor.mu.Lock()
	require.Len(t, visitor.orders, 1)
	require.Len(t, visitor.carts, 1)
	visitor.mu.Unlock()
	require.Equal(t, healthcheck.StatusUnhealthy, p.Checker().Check(context.Background()).Status)
}

func TestCommandPipeline_PermanentFailureDeadLettered(t *testing.T) {
	logger := log.WithField("test", "pipeline-dlq")
	p, err := newCommandPipeline(validConfig(), nil, logger)
	require.NoError(t, err)

	visitor := &recordingVisitor{fail: domain.ErrOrderNotFound}
	require.NoError(t, p.Start(context.Background(), visitor))
	require.NoError(t, p.Publisher().Publish(context.Background(), domain.OrderCommand{Op: domain.OrderOpShip, OrderID: "ghost"}))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Close(closeCtx))

	letters := p.deadLetters.List()
	require.Len(t, letters, 1)
	require.Equal(t, "ghost", letters[0].Key)
	require.Equal(t, 1, len(visitor.orders), "permanent errors are not retried")
}

func TestCommandPipeline_InvalidBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = []string{"127.0.0.1:1"}

	p, err := newCommandPipeline(cfg, nil, log.WithField("test", "kafka"))
	require.Error(t, err)
	require.Nil(t, p)
}
