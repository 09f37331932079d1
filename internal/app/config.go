package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/pipeline"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"

	// PaymentProviderRazorpay ходит в API Razorpay.
	PaymentProviderRazorpay = "razorpay"
	// PaymentProviderFake — внутрипроцессный провайдер для локального запуска.
	PaymentProviderFake = "fake"

	// EnvPrefix — префикс переменных окружения; вложенность через "__".
	EnvPrefix = "STOREFRONT_"
	// DefaultConfigPath — YAML с базовыми настройками.
	DefaultConfigPath = "configs/base.yaml"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string `koanf:"http_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	GRPCAddr    string `koanf:"grpc_addr"`

	Log         LogConfig         `koanf:"log"`
	Storage     StorageConfig     `koanf:"storage"`
	Postgres    PostgresConfig    `koanf:"postgres"`
	Redis       RedisConfig       `koanf:"redis"`
	Kafka       KafkaConfig       `koanf:"kafka"`
	Pipeline    PipelineConfig    `koanf:"pipeline"`
	Cache       CacheConfig       `koanf:"cache"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Auth        AuthConfig        `koanf:"auth"`
	Payment     PaymentConfig     `koanf:"payment"`
}

// LogConfig — уровень, формат (text|json) и опциональный файл с ротацией.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"`
}

type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// PoolOptions переводит настройки пула в опции postgres.Open.
func (c PostgresConfig) PoolOptions() []postgres.Option {
	return []postgres.Option{
		postgres.WithPoolSize(c.MaxOpenConns, c.MaxIdleConns),
		postgres.WithConnLifetime(c.ConnMaxLifetime, 0),
	}
}

// RedisConfig — пустой Addr означает кэш в памяти процесса.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// KafkaConfig — пустой Brokers означает внутрипроцессную шину.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	GroupID string   `koanf:"group_id"`
}

type PipelineConfig struct {
	Buffer       int           `koanf:"buffer"`
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

type CacheConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl"`
	ProductTTL time.Duration `koanf:"product_ttl"`
	OrderTTL   time.Duration `koanf:"order_ttl"`
}

type IdempotencyConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
	Audience  string `koanf:"audience"`
}

type PaymentConfig struct {
	Provider      string `koanf:"provider"`
	KeyID         string `koanf:"key_id"`
	KeySecret     string `koanf:"key_secret"`
	WebhookSecret string `koanf:"webhook_secret"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	retry := pipeline.DefaultRetryConfig()
	ttls := cache.DefaultTTLs()
	pool := postgres.DefaultPoolSettings()
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		GRPCAddr:    ":50051",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage:  StorageConfig{Driver: StorageDriverMemory},
		Postgres: PostgresConfig{
			AutoMigrate:     true,
			MaxOpenConns:    pool.MaxOpenConns,
			MaxIdleConns:    pool.MaxIdleConns,
			ConnMaxLifetime: pool.ConnMaxLifetime,
		},
		Kafka:    KafkaConfig{GroupID: "storefront"},
		Pipeline: PipelineConfig{
			Buffer:       256,
			MaxAttempts:  retry.MaxAttempts,
			InitialDelay: retry.InitialDelay,
			MaxDelay:     retry.MaxDelay,
		},
		Cache: CacheConfig{
			DefaultTTL: ttls.Cart,
			ProductTTL: ttls.Product,
			OrderTTL:   ttls.OrderList,
		},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
		Auth:        AuthConfig{Issuer: "storefront"},
		Payment:     PaymentConfig{Provider: PaymentProviderFake},
	}
}

// LoadConfig накладывает слои: значения по умолчанию, YAML-файл (если есть),
// переменные окружения STOREFRONT_*, например STOREFRONT_POSTGRES__DSN.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr required"))
	}
	if c.MetricsAddr == "" {
		errs = append(errs, errors.New("metrics_addr required"))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc_addr required"))
	}

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn required for postgres storage"))
		}
		if c.Postgres.MaxOpenConns < 0 || c.Postgres.MaxIdleConns < 0 {
			errs = append(errs, errors.New("postgres pool sizes must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.Storage.Driver))
	}

	switch c.Payment.Provider {
	case PaymentProviderFake:
	case PaymentProviderRazorpay:
		if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
			errs = append(errs, errors.New("payment.key_id and payment.key_secret required for razorpay"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported payment provider %q", c.Payment.Provider))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret required"))
	}
	if c.Pipeline.MaxAttempts <= 0 {
		errs = append(errs, errors.New("pipeline.max_attempts must be > 0"))
	}
	if c.Cache.DefaultTTL <= 0 || c.Cache.ProductTTL <= 0 || c.Cache.OrderTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be > 0"))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, errors.New("idempotency.ttl must be > 0"))
	}
	return errors.Join(errs...)
}

// RetryConfig переводит настройки конвейера в конфигурацию повторов.
func (c PipelineConfig) RetryConfig() pipeline.RetryConfig {
	retry := pipeline.DefaultRetryConfig()
	retry.MaxAttempts = c.MaxAttempts
	retry.InitialDelay = c.InitialDelay
	retry.MaxDelay = c.MaxDelay
	return retry
}

// TTLs переводит настройки кэша в TTL по типам сущностей.
func (c CacheConfig) TTLs() cache.TTLs {
	return cache.TTLs{Cart: c.DefaultTTL, OrderList: c.OrderTTL, Product: c.ProductTTL}
}
