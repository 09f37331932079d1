package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	dotenvPath    = ".env"
	envConfigPath = "STOREFRONT_CONFIG"
)

// loadConfig подхватывает .env (если есть), затем YAML и переменные STOREFRONT_*.
// Уже выставленные переменные окружения .env не перезаписывает.
func loadConfig(dotenv string) (app.Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return app.Config{}, fmt.Errorf("load %s: %w", dotenv, err)
	}

	path := app.DefaultConfigPath
	if v := strings.TrimSpace(os.Getenv(envConfigPath)); v != "" {
		path = v
	}
	return app.LoadConfig(path)
}

func main() {
	cfg, err := loadConfig(dotenvPath)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	logCloser, err := app.ConfigureLogging(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("не удалось настроить логирование")
	}
	defer func() { _ = logCloser.Close() }()

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Get().Fields()).WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.Storage.Driver,
	}).Info("запускаем storefront")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront остановлен")
}
