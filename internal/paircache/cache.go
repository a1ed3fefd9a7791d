package paircache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// historyDepth 限制每个交易对保留的历史价格点数量
const historyDepth = 32

// PairFetcher 是缓存对交易所的最小依赖
type PairFetcher interface {
	GetAssetPairs(ctx context.Context) ([]models.AssetPair, error)
}

// Cache 维护交易对的内存快照, 由后台定期刷新。
// 读路径 (策略决策) 永远不会触发远端请求: 刷新失败时继续提供上一份快照。
// 快照整体替换, 读方拿到的是副本, 不会观察到半更新状态。
type Cache struct {
	fetcher  PairFetcher
	repo     SnapshotRepository
	interval time.Duration
	logger   *zap.SugaredLogger

	mu        sync.RWMutex
	pairs     map[string]*models.AssetPair // key 为 Symbol
	refreshed time.Time

	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewCache 创建交易对缓存。repo 可以为 nil, 此时不做持久化。
func NewCache(fetcher PairFetcher, repo SnapshotRepository, interval time.Duration, logger *zap.SugaredLogger) *Cache {
	return &Cache{
		fetcher:     fetcher,
		repo:        repo,
		interval:    interval,
		logger:      logger,
		pairs:       make(map[string]*models.AssetPair),
		stopChannel: make(chan struct{}),
	}
}

// Start 先尝试一次立即刷新, 再启动后台刷新循环。
// 首次刷新失败时回退到持久化的快照, 两者都没有则以空快照启动。
func (c *Cache) Start(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warnf("首次刷新交易对失败: %v", err)
		c.loadPersisted()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopChannel:
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					// 保留旧快照继续服务
					c.logger.Warnf("刷新交易对失败, 继续使用旧快照: %v", err)
				}
			}
		}
	}()
}

// Stop 停止后台刷新循环
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChannel) })
	c.wg.Wait()
}

// Refresh 从交易所拉取最新交易对并整体替换快照。
// 每个交易对的历史价格在旧快照基础上延续, 最多保留 historyDepth 个点。
func (c *Cache) Refresh(ctx context.Context) error {
	fetched, err := c.fetcher.GetAssetPairs(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*models.AssetPair, len(fetched))
	c.mu.RLock()
	for i := range fetched {
		p := fetched[i]
		if prev, ok := c.pairs[p.Symbol]; ok {
			p.History = appendBounded(prev.History, p.LastPrice)
		} else if p.LastPrice > 0 {
			p.History = []float64{p.LastPrice}
		}
		next[p.Symbol] = &p
	}
	c.mu.RUnlock()

	c.mu.Lock()
	c.pairs = next
	c.refreshed = time.Now()
	c.mu.Unlock()

	c.logger.Debugf("交易对快照已刷新, 共 %d 个", len(next))

	if c.repo != nil {
		if err := c.repo.SaveSnapshot(c.Snapshot()); err != nil {
			c.logger.Warnf("持久化交易对快照失败: %v", err)
		}
	}
	return nil
}

// UpdatePrice 由行情推送调用, 就地更新某个交易对的最新价
func (c *Cache) UpdatePrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pairs[symbol]
	if !ok {
		return
	}
	p.LastPrice = price
	p.History = appendBounded(p.History, price)
}

// Get 返回某个交易对的副本
func (c *Cache) Get(symbol string) (models.AssetPair, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pairs[symbol]
	if !ok {
		return models.AssetPair{}, false
	}
	return copyPair(p), true
}

// Snapshot 返回当前全部交易对的副本
func (c *Cache) Snapshot() []models.AssetPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.AssetPair, 0, len(c.pairs))
	for _, p := range c.pairs {
		out = append(out, copyPair(p))
	}
	return out
}

// LastRefreshed 返回最近一次成功刷新的时间, 从未成功过则为零值
func (c *Cache) LastRefreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

// loadPersisted 从持久化仓库恢复上一份快照
func (c *Cache) loadPersisted() {
	if c.repo == nil {
		return
	}
	pairs, err := c.repo.LoadSnapshot()
	if err != nil {
		c.logger.Warnf("加载持久化快照失败: %v", err)
		return
	}
	if pairs == nil {
		return
	}

	restored := make(map[string]*models.AssetPair, len(pairs))
	for i := range pairs {
		p := pairs[i]
		restored[p.Symbol] = &p
	}

	c.mu.Lock()
	c.pairs = restored
	c.mu.Unlock()
	c.logger.Infof("已从本地缓存恢复 %d 个交易对", len(restored))
}

func copyPair(p *models.AssetPair) models.AssetPair {
	out := *p
	out.History = append([]float64(nil), p.History...)
	return out
}

func appendBounded(history []float64, price float64) []float64 {
	if price <= 0 {
		return append([]float64(nil), history...)
	}
	next := append(append([]float64(nil), history...), price)
	if len(next) > historyDepth {
		next = next[len(next)-historyDepth:]
	}
	return next
}
