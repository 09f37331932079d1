package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	idempotencyLockPrefix   = "idemp:"
	idempotencyResultPrefix = "idemp:map:"
	inProgressMarker        = "1"
)

// IdempotencyStore хранит ключи идемпотентности запросов с TTL.
type IdempotencyStore struct {
	store  Store
	ttl    time.Duration
	logger *log.Entry
}

// NewIdempotencyStore создаёт хранилище поверх любого Store.
func NewIdempotencyStore(store Store, ttl time.Duration, logger *log.Entry) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &IdempotencyStore{
		store:  store,
		ttl:    ttl,
		logger: logger.WithField("component", "idempotency"),
	}
}

// TryLock захватывает ключ; false означает, что запрос с этим ключом уже был.
func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	return s.store.SetNX(ctx, idempotencyLockPrefix+scope+":"+key, []byte(inProgressMarker), s.ttl)
}

// Remember сохраняет результат обработки ключа.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.store.Set(ctx, idempotencyResultPrefix+scope+":"+key, []byte(value), s.ttl)
}

// Recall возвращает сохранённый результат.
func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	raw, err := s.store.Get(ctx, idempotencyResultPrefix+scope+":"+key)
	if errors.Is(err, ErrMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// Release снимает блокировку после неуспешной обработки, чтобы клиент мог повторить запрос.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	return s.store.Delete(ctx, idempotencyLockPrefix+scope+":"+key)
}

// Do выполняет fn не более одного раза на ключ. Повтор после успеха возвращает
// сохранённый результат, повтор во время обработки — ErrIdempotencyInProgress.
func (s *IdempotencyStore) Do(ctx context.Context, scope, key string, fn func(ctx context.Context) (string, error)) (string, bool, error) {
	if value, ok, err := s.Recall(ctx, scope, key); err != nil {
		return "", false, fmt.Errorf("recall idempotency key: %w", err)
	} else if ok {
		return value, true, nil
	}

	locked, err := s.TryLock(ctx, scope, key)
	if err != nil {
		return "", false, fmt.Errorf("lock idempotency key: %w", err)
	}
	if !locked {
		// Обработка могла завершиться между Recall и TryLock.
		if value, ok, err := s.Recall(ctx, scope, key); err == nil && ok {
			return value, true, nil
		}
		return "", false, domain.ErrIdempotencyInProgress
	}

	value, err := fn(ctx)
	if err != nil {
		_ = s.Release(ctx, scope, key)
		return "", false, err
	}
	if err := s.Remember(ctx, scope, key, value); err != nil {
		// Результат уже получен; ключ остаётся заблокированным до истечения TTL.
		s.logger.WithError(err).WithFields(log.Fields{"scope": scope, "key": key}).Warn("remember idempotency result failed")
	}
	return value, false, nil
}
