package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

// localConfig слушает на случайных портах, чтобы тесты не конфликтовали.
func localConfig() Config {
	cfg := validConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	return cfg
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	require.ErrorIs(t, Run(ctx, localConfig()), context.Canceled)
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	cfg := localConfig()
	cfg.Storage.Driver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_ListenFailure(t *testing.T) {
	cfg := localConfig()
	cfg.MetricsAddr = "256.0.0.1:80"

	require.Error(t, Run(context.Background(), cfg))
}

func TestRun_PostgresStorage(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("STOREFRONT_POSTGRES_TEST_DSN is not set")
	}

	cfg := localConfig()
	cfg.Storage.Driver = StorageDriverPostgres
	cfg.Postgres.DSN = dsn
	cfg.Postgres.MaxOpenConns = 4

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, Run(ctx, cfg), context.DeadlineExceeded)
}

func TestGRPCServingStatus(t *testing.T) {
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, grpcServingStatus(healthcheck.StatusHealthy))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, grpcServingStatus(healthcheck.StatusDegraded))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, grpcServingStatus(healthcheck.StatusUnhealthy))
}
