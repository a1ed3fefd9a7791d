package runlock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LeaseStore 是数据库租约行需要的最小存储接口, 由 store 包实现
type LeaseStore interface {
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, key, token string) error
	ExtendLease(ctx context.Context, key, token string, ttl time.Duration, now time.Time) error
}

// LeaseLocker 把运行锁落在主数据库的租约行上。
// 不需要额外的 Redis 部署, 单数据库多进程也能保证互斥。
type LeaseLocker struct {
	store LeaseStore
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]string
}

// NewLeaseLocker 创建基于数据库租约的锁实例
func NewLeaseLocker(store LeaseStore) *LeaseLocker {
	return &LeaseLocker{
		store:  store,
		now:    time.Now,
		tokens: make(map[string]string),
	}
}

func (l *LeaseLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := generateToken()

	ok, err := l.store.AcquireLease(ctx, key, token, ttl, l.now())
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[key] = token
		l.mu.Unlock()
	}
	return ok, nil
}

func (l *LeaseLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, exists := l.tokens[key]
	l.mu.Unlock()
	if !exists {
		return fmt.Errorf("lock not held: %s", key)
	}

	err := l.store.ReleaseLease(ctx, key, token)

	l.mu.Lock()
	delete(l.tokens, key)
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (l *LeaseLocker) Extend(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	token, exists := l.tokens[key]
	l.mu.Unlock()
	if !exists {
		return fmt.Errorf("lock not held: %s", key)
	}

	if err := l.store.ExtendLease(ctx, key, token, ttl, l.now()); err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	return nil
}

func (l *LeaseLocker) Token(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[key]
}

func (l *LeaseLocker) Close() error {
	return nil
}
