package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory — in-memory кэш с TTL на запись (для разработки и тестов).
type Memory struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]memoryEntry
	now     func() time.Time
}

// NewMemory создаёт пустой in-memory кэш.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[domain.CacheKey]memoryEntry),
		now:     time.Now,
	}
}

// Get возвращает копию значения или ErrCacheMiss для отсутствующего/просроченного ключа.
func (m *Memory) Get(_ context.Context, key domain.CacheKey) ([]byte, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// Запись могли перезаписать между RUnlock и Lock.
		if current, ok := m.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, domain.ErrCacheMiss
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set сохраняет значение; ttl <= 0 означает запись без срока жизни.
func (m *Memory) Set(_ context.Context, key domain.CacheKey, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Invalidate удаляет ключи; отсутствующие ключи игнорируются.
func (m *Memory) Invalidate(_ context.Context, keys ...domain.CacheKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Len возвращает количество записей, включая просроченные.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

var _ domain.Cache = (*Memory)(nil)
