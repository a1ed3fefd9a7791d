package runlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tnb-trading-bot-go/internal/models"
)

// TestMemoryLockerMutualExclusion verifies only one holder at a time.
func TestMemoryLockerMutualExclusion(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, m.Token("bot-1"))

	ok, err = m.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must not be acquired twice")

	// a different key is independent
	ok, err = m.TryAcquire(ctx, "bot-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Release(ctx, "bot-1"))
	ok, err = m.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a released lock is acquirable again")
}

// TestMemoryLockerExpiry verifies an expired lock can be re-acquired.
func TestMemoryLockerExpiry(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	base := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	ok, err := m.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = base.Add(30 * time.Second)
	ok, _ = m.TryAcquire(ctx, "bot-1", time.Minute)
	assert.False(t, ok, "lock is still live before the TTL")

	now = base.Add(2 * time.Minute)
	ok, err = m.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lock is up for grabs")
}

// TestMemoryLockerExtend verifies extending pushes the expiry forward.
func TestMemoryLockerExtend(t *testing.T) {
	m := NewMemoryLocker()
	ctx := context.Background()

	base := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	ok, err := m.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = base.Add(50 * time.Second)
	require.NoError(t, m.Extend(ctx, "bot-1", time.Minute))

	now = base.Add(100 * time.Second)
	ok, _ = m.TryAcquire(ctx, "bot-1", time.Minute)
	assert.False(t, ok, "the extended lock must still be held")
}

// TestMemoryLockerReleaseUnheld verifies releasing a lock we never took fails.
func TestMemoryLockerReleaseUnheld(t *testing.T) {
	m := NewMemoryLocker()
	assert.Error(t, m.Release(context.Background(), "bot-1"))
}

// mockLeaseStore is an in-memory implementation of the LeaseStore interface.
type mockLeaseStore struct {
	sync.Mutex
	leases map[string]struct {
		token    string
		expireAt time.Time
	}
}

func newMockLeaseStore() *mockLeaseStore {
	return &mockLeaseStore{leases: make(map[string]struct {
		token    string
		expireAt time.Time
	})}
}

func (m *mockLeaseStore) AcquireLease(_ context.Context, key, token string, ttl time.Duration, now time.Time) (bool, error) {
	m.Lock()
	defer m.Unlock()
	if lease, ok := m.leases[key]; ok && lease.expireAt.After(now) {
		return false, nil
	}
	m.leases[key] = struct {
		token    string
		expireAt time.Time
	}{token, now.Add(ttl)}
	return true, nil
}

func (m *mockLeaseStore) ReleaseLease(_ context.Context, key, token string) error {
	m.Lock()
	defer m.Unlock()
	if lease, ok := m.leases[key]; ok && lease.token == token {
		delete(m.leases, key)
	}
	return nil
}

func (m *mockLeaseStore) ExtendLease(_ context.Context, key, token string, ttl time.Duration, now time.Time) error {
	m.Lock()
	defer m.Unlock()
	lease, ok := m.leases[key]
	if !ok || lease.token != token {
		return nil
	}
	lease.expireAt = now.Add(ttl)
	m.leases[key] = lease
	return nil
}

// TestLeaseLocker verifies the store-backed locker round trip.
func TestLeaseLocker(t *testing.T) {
	st := newMockLeaseStore()
	l := NewLeaseLocker(st)
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, l.Token("bot-1"))

	other := NewLeaseLocker(st)
	ok, err = other.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second process must not win the same lease")

	require.NoError(t, l.Release(ctx, "bot-1"))
	ok, err = other.TryAcquire(ctx, "bot-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestFactory verifies locker construction by config type.
func TestFactory(t *testing.T) {
	mem, err := New(&models.LockConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLocker{}, mem)

	lease, err := New(&models.LockConfig{Type: "store"}, newMockLeaseStore())
	require.NoError(t, err)
	assert.IsType(t, &LeaseLocker{}, lease)

	_, err = New(&models.LockConfig{Type: "store"}, nil)
	assert.Error(t, err, "store lock without a lease store must fail")

	_, err = New(&models.LockConfig{Type: "zookeeper"}, nil)
	assert.Error(t, err)
}
