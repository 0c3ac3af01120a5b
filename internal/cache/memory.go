package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/checkout"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache keeps state in process. Entries are stored serialized so a
// caller mutating a loaded state never changes the cached copy.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, sessionID string) (*checkout.State, error) {
	m.mu.Lock()
	e, ok := m.entries[sessionID]
	if ok && m.now().After(e.expiresAt) {
		delete(m.entries, sessionID)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrCacheMiss
	}

	var st checkout.State
	if err := json.Unmarshal(e.data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state failed: %w", err)
	}
	return &st, nil
}

func (m *MemoryCache) Set(_ context.Context, sessionID string, st *checkout.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state failed: %w", err)
	}
	m.mu.Lock()
	m.entries[sessionID] = memoryEntry{data: data, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries until ctx is done.
func (m *MemoryCache) Sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for k, e := range m.entries {
				if now.After(e.expiresAt) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
