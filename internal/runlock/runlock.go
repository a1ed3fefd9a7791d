package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Locker 是 per-bot 运行互斥锁的抽象。
// 锁带 TTL: 持有者崩溃后锁在 TTL 到期时自动失效, 不会永久卡死。
// TryAcquire 永不阻塞, 抢不到就跳过本次运行。
type Locker interface {
	// TryAcquire 尝试获取锁, 立即返回。
	// 返回 true 表示成功获取, false 表示锁已被占用。
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release 释放锁。只有当前持有者能释放, 过期后被他人获取的锁不受影响。
	Release(ctx context.Context, key string) error

	// Extend 延长锁的过期时间
	Extend(ctx context.Context, key string, ttl time.Duration) error

	// Token 返回当前对某个 key 持有的 token, 未持有时为空串
	Token(key string) string

	// Close 关闭底层连接
	Close() error
}

// generateToken 为每次获取生成唯一的持有者标识
func generateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
