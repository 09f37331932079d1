package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pingTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second

	uniqueViolationCode = "23505"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolSettings задаёт лимиты пула соединений database/sql.
type PoolSettings struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolSettings подходит для одного экземпляра витрины.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Option настраивает Store при открытии.
type Option func(*PoolSettings)

// WithPoolSize ограничивает число открытых и простаивающих соединений.
// Нулевые значения оставляют значения по умолчанию.
func WithPoolSize(maxOpen, maxIdle int) Option {
	return func(p *PoolSettings) {
		if maxOpen > 0 {
			p.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			p.MaxIdleConns = maxIdle
		}
		if p.MaxIdleConns > p.MaxOpenConns {
			p.MaxIdleConns = p.MaxOpenConns
		}
	}
}

// WithConnLifetime задаёт время жизни соединения и простоя.
func WithConnLifetime(lifetime, idle time.Duration) Option {
	return func(p *PoolSettings) {
		if lifetime > 0 {
			p.ConnMaxLifetime = lifetime
		}
		if idle > 0 {
			p.ConnMaxIdleTime = idle
		}
	}
}

func resolvePoolSettings(opts ...Option) PoolSettings {
	settings := DefaultPoolSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	return settings
}

// Store оборачивает пул соединений к PostgreSQL.
type Store struct {
	db   *sql.DB
	pool PoolSettings
}

// Open открывает пул через драйвер pgx и дожидается ответа базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	pool := resolvePoolSettings(opts...)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := &Store{db: db, pool: pool}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт *sql.DB для миграций и низкоуровневых запросов.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Pool возвращает применённые настройки пула.
func (s *Store) Pool() PoolSettings {
	return s.pool
}

// Ping используется health-чекером и при открытии.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema накатывает все ещё не применённые миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withTx откатывает транзакцию, если fn вернула ошибку.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// nullable: пустая строка пишется как NULL, чтобы не ломать уникальные индексы.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
