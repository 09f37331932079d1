package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Observer получает события попаданий и промахов кэша.
type Observer interface {
	CacheHit(kind Kind)
	CacheMiss(kind Kind)
}

type noopObserver struct{}

func (noopObserver) CacheHit(Kind)  {}
func (noopObserver) CacheMiss(Kind) {}

// ReadThrough кэширует значения одного типа сущности.
// Ошибки кэша не ломают чтение: значение берётся из источника.
type ReadThrough[T any] struct {
	store    Store
	kind     Kind
	ttl      time.Duration
	logger   *log.Entry
	observer Observer
}

// NewReadThrough создаёт read-through кэш для kind с заданным TTL.
func NewReadThrough[T any](store Store, kind Kind, ttl time.Duration, logger *log.Entry, observer Observer) *ReadThrough[T] {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ReadThrough[T]{
		store:    store,
		kind:     kind,
		ttl:      ttl,
		logger:   logger.WithFields(log.Fields{"component": "cache", "kind": string(kind)}),
		observer: observer,
	}
}

// Get возвращает значение из кэша или вызывает load и сохраняет результат.
func (r *ReadThrough[T]) Get(ctx context.Context, key string, load func(ctx context.Context) (T, error)) (T, error) {
	raw, err := r.store.Get(ctx, key)
	switch {
	case err == nil:
		var value T
		uerr := json.Unmarshal(raw, &value)
		if uerr == nil {
			r.observer.CacheHit(r.kind)
			return value, nil
		}
		r.logger.WithError(uerr).WithField("key", key).Warn("corrupted cache entry, reloading")
	case !errors.Is(err, ErrMiss):
		r.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	}
	r.observer.CacheMiss(r.kind)

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("encode cache entry")
		return value, nil
	}
	if err := r.store.Set(ctx, key, encoded, r.ttl); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return value, nil
}

// Evict удаляет ключи после того, как запись в хранилище зафиксирована.
func (r *ReadThrough[T]) Evict(ctx context.Context, keys ...string) {
	Evict(ctx, r.store, r.logger, keys...)
}

// Evict удаляет ключи из store; ошибка только логируется, устаревшая запись доживёт до TTL.
func Evict(ctx context.Context, store Store, logger *log.Entry, keys ...string) {
	if store == nil || len(keys) == 0 {
		return
	}
	if err := store.Delete(ctx, keys...); err != nil && logger != nil {
		logger.WithError(err).WithField("keys", keys).Warn("cache eviction failed")
	}
}
