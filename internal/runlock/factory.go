package runlock

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"tnb-trading-bot-go/internal/models"
)

// New 根据配置创建运行锁实例。
// "store" 把锁落在主数据库的租约行上, "redis" 用于多实例部署,
// "memory" 仅用于单进程或测试。
func New(cfg *models.LockConfig, leaseStore LeaseStore) (Locker, error) {
	switch cfg.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisLocker(client, cfg.Prefix), nil

	case "store":
		if leaseStore == nil {
			return nil, fmt.Errorf("store lock requires a lease store")
		}
		return NewLeaseLocker(leaseStore), nil

	case "memory":
		return NewMemoryLocker(), nil

	default:
		return nil, fmt.Errorf("unsupported lock type: %s", cfg.Type)
	}
}
