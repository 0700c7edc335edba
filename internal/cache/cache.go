// Package cache содержит реализации порта domain.Cache.
package cache

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// Noop — кэш, который ничего не хранит. Используется при CACHE_DRIVER=none.
type Noop struct{}

// NewNoop возвращает пустой кэш.
func NewNoop() Noop {
	return Noop{}
}

func (Noop) Get(context.Context, domain.CacheKey) ([]byte, error) {
	return nil, domain.ErrCacheMiss
}

func (Noop) Set(context.Context, domain.CacheKey, []byte, time.Duration) error {
	return nil
}

func (Noop) Invalidate(context.Context, ...domain.CacheKey) error {
	return nil
}

var _ domain.Cache = Noop{}
