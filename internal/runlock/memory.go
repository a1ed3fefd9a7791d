package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	token    string
	expireAt time.Time
}

// MemoryLocker 是进程内的锁实现, 用于单实例部署和测试。
// 语义与 Redis/租约实现一致: 带 TTL, 过期后可被再次获取。
type MemoryLocker struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
	tokens  map[string]string
}

// NewMemoryLocker 创建进程内锁实例
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		tokens:  make(map[string]string),
	}
}

func (m *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && e.expireAt.After(now) {
		return false, nil
	}

	token := generateToken()
	m.entries[key] = memoryEntry{token: token, expireAt: now.Add(ttl)}
	m.tokens[key] = token
	return true, nil
}

func (m *MemoryLocker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, exists := m.tokens[key]
	if !exists {
		return fmt.Errorf("lock not held: %s", key)
	}
	delete(m.tokens, key)

	e, ok := m.entries[key]
	if !ok || e.token != token {
		return fmt.Errorf("lock not held or expired: %s", key)
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryLocker) Extend(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, exists := m.tokens[key]
	if !exists {
		return fmt.Errorf("lock not held: %s", key)
	}
	e, ok := m.entries[key]
	if !ok || e.token != token {
		return fmt.Errorf("lock not held or expired: %s", key)
	}
	e.expireAt = m.now().Add(ttl)
	m.entries[key] = e
	return nil
}

func (m *MemoryLocker) Token(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[key]
}

func (m *MemoryLocker) Close() error {
	return nil
}
