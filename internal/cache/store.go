package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss возвращается, когда ключа нет в кэше или он истёк.
var ErrMiss = errors.New("cache miss")

// Store — минимальный key-value контракт кэша.
type Store interface {
	// Get возвращает значение или ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX записывает значение, только если ключа ещё нет.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
