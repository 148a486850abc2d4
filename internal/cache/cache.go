package cache

import (
	"context"
	"time"
)

// BytesCache — минимальный контракт кэша "байты по ключу".
// Кэш всегда best-effort: промах или ошибка не должны ломать чтение из БД.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
