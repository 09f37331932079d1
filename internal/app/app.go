package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	shutdownTimeout     = 5 * time.Second
	healthWatchInterval = 10 * time.Second
)

// Run поднимает API, ops-сервер (/metrics, /healthz, /livez, /readyz), gRPC health
// и потребителей конвейера команд. Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	pipelineMetrics := metrics.NewPipelineMetrics()
	orderMetrics := metrics.NewOrderMetrics()

	commands, err := newCommandPipeline(cfg, pipelineMetrics, logger)
	if err != nil {
		return err
	}

	svc := newServices(cfg, deps, commands.Publisher(), orderMetrics, logger)
	if err := commands.Start(ctx, commandRouter{orders: svc.orders, carts: svc.carts}); err != nil {
		_ = commands.Close(context.Background())
		return err
	}

	healthHandler := healthcheck.NewHandler(version.Get().Version)
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	healthHandler.RegisterChecker("pipeline", commands.Checker())

	verifier := httpapi.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	apiSrv := &http.Server{
		Handler:           httpapi.NewRouter(svc.http(cfg.Payment.KeyID), verifier, logger.WithField("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	opsSrv := &http.Server{
		Handler:           newOpsMux(healthHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer, healthServer := newGRPCServer(logger)

	listeners, err := listenAll(cfg.HTTPAddr, cfg.MetricsAddr, cfg.GRPCAddr)
	if err != nil {
		shutdownPipeline(commands, logger)
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go healthHandler.Watch(watchCtx, healthWatchInterval, func(status healthcheck.Status) {
		logger.WithField("status", status).Info("статус готовности изменился")
		healthServer.SetServingStatus("", grpcServingStatus(status))
	})

	errCh := make(chan error, 3)
	go func() {
		logger.Infof("HTTP API слушает %s", listeners[0].Addr())
		errCh <- serveHTTP(apiSrv, listeners[0])
	}()
	go func() {
		logger.Infof("метрики и health checks доступны по адресу %s", listeners[1].Addr())
		errCh <- serveHTTP(opsSrv, listeners[1])
	}()
	go func() {
		logger.Infof("gRPC сервер слушает %s", listeners[2].Addr())
		errCh <- grpcServer.Serve(listeners[2])
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервисы")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	stopWatch()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownPipeline(commands, logger)
	shutdownHTTP(opsSrv, logger)

	return runErr
}

// listenAll открывает все адреса заранее: занятый порт обнаруживается до старта.
func listenAll(addrs ...string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			for _, opened := range listeners {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		listeners = append(listeners, lis)
	}
	return listeners, nil
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newOpsMux собирает обработчики для Prometheus и проб.
func newOpsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом и reflection.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	return grpcServer, healthServer
}

// grpcServingStatus: degraded сервис продолжает принимать запросы.
func grpcServingStatus(status healthcheck.Status) healthpb.HealthCheckResponse_ServingStatus {
	if status == healthcheck.StatusUnhealthy {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// shutdownPipeline дорабатывает принятые команды в пределах таймаута.
func shutdownPipeline(commands *commandPipeline, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := commands.Close(ctx); err != nil {
		logger.WithError(err).Warn("command pipeline shutdown with error")
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
