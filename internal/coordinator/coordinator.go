package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/executor"
	"tnb-trading-bot-go/internal/gateway"
	"tnb-trading-bot-go/internal/models"
	"tnb-trading-bot-go/internal/runlock"
	"tnb-trading-bot-go/internal/store"
	"tnb-trading-bot-go/internal/strategy"
)

var (
	// ErrBusy 表示该 bot 已有一次运行在进行中, 本次触发被跳过
	ErrBusy = errors.New("bot run already in progress")
	// ErrNotActive 表示 bot 配置存在但不处于 active 状态
	ErrNotActive = errors.New("bot is not active")
)

// runStore 是协调器对存储的最小依赖
type runStore interface {
	GetBotConfig(ctx context.Context, id int64) (*models.BotConfig, error)
	TouchBotRunStats(ctx context.Context, id int64, lastRun time.Time) error
	ListTradingPairs(ctx context.Context, botConfigID int64) ([]models.TradingPair, error)
	CreateBotRun(ctx context.Context, run *models.BotRun) (int64, error)
	CloseBotRun(ctx context.Context, id int64, status models.RunStatus, reason string, endedAt time.Time) error
	ListStaleRuns(ctx context.Context, before time.Time) ([]models.BotRun, error)
}

// pairSource 是协调器对交易对缓存的最小依赖
type pairSource interface {
	Get(symbol string) (models.AssetPair, bool)
}

// tradeExecutor 抽象出执行器, 测试时可替换
type tradeExecutor interface {
	Execute(ctx context.Context, gw gateway.Gateway, bot *models.BotConfig, pair *models.AssetPair, decision models.Decision, runID int64) executor.Outcome
}

// GatewayFactory 为一次运行构造已登录的交易所网关。
// 每个 bot 持有自己的凭证, 因此网关按运行创建而不是全局共享。
type GatewayFactory func(ctx context.Context, bot *models.BotConfig) (gateway.Gateway, error)

// StrategyFactory 按 bot 配置构造策略实例
type StrategyFactory func(bot *models.BotConfig) (strategy.Strategy, error)

// RunHandle 标识一次已完成的运行
type RunHandle struct {
	Token  string
	RunID  int64
	BotID  int64
	Status models.RunStatus
	Reason string
}

// Coordinator 负责一次 bot 运行的完整生命周期:
// 抢锁 -> 开 BotRun -> 决策与执行 -> 关 BotRun -> 放锁。
// 同一个 bot 在任意时刻最多只有一次运行, 由运行锁保证。
type Coordinator struct {
	st         runStore
	locker     runlock.Locker
	pairs      pairSource
	exec       tradeExecutor
	newGateway GatewayFactory
	newStrat   StrategyFactory
	quote      string
	leaseTTL   time.Duration
	logger     *zap.SugaredLogger

	// 可注入的依赖, 测试时替换
	now     func() time.Time
	newRand func() *rand.Rand
}

// Options 是 Coordinator 的构造参数
type Options struct {
	Store           runStore
	Locker          runlock.Locker
	Pairs           pairSource
	Executor        tradeExecutor
	GatewayFactory  GatewayFactory
	StrategyFactory StrategyFactory
	QuoteTicker     string
	LeaseTTL        time.Duration
	Logger          *zap.SugaredLogger
}

// New 创建协调器
func New(opts Options) *Coordinator {
	return &Coordinator{
		st:         opts.Store,
		locker:     opts.Locker,
		pairs:      opts.Pairs,
		exec:       opts.Executor,
		newGateway: opts.GatewayFactory,
		newStrat:   opts.StrategyFactory,
		quote:      opts.QuoteTicker,
		leaseTTL:   opts.LeaseTTL,
		logger:     opts.Logger,
		now:        time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// TriggerRun 执行一次 bot 运行。
// 锁被占用时返回 ErrBusy 且不产生任何 BotRun 记录。
// 运行一旦开始, 无论成败都会留下一条已关闭的 BotRun。
func (c *Coordinator) TriggerRun(ctx context.Context, botID int64) (*RunHandle, error) {
	bot, err := c.st.GetBotConfig(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: bot %d is %s", ErrNotActive, botID, bot.Status)
	}

	lockKey := strconv.FormatInt(botID, 10)
	acquired, err := c.locker.TryAcquire(ctx, lockKey, c.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock for bot %d: %w", botID, err)
	}
	if !acquired {
		return nil, ErrBusy
	}
	defer func() {
		if err := c.locker.Release(ctx, lockKey); err != nil {
			// 过期后锁可能已被他人获取, 只记日志
			c.logger.Warnf("释放 bot %d 的运行锁失败: %v", botID, err)
		}
	}()

	startedAt := c.now()
	run := &models.BotRun{
		BotConfigID: botID,
		StartedAt:   startedAt,
		Status:      models.RunRunning,
		LeaseToken:  c.locker.Token(lockKey),
	}
	runID, err := c.st.CreateBotRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create bot run: %w", err)
	}
	if err := c.st.TouchBotRunStats(ctx, botID, startedAt); err != nil {
		c.logger.Warnf("更新 bot %d 的运行统计失败: %v", botID, err)
	}

	status, reason := c.safeRun(ctx, bot, runID)

	if err := c.st.CloseBotRun(ctx, runID, status, reason, c.now()); err != nil {
		// 运行已经结束, 关不掉记录说明它被租约回收抢先关闭了
		c.logger.Warnf("关闭 bot %d 的运行 %d 失败: %v", botID, runID, err)
	}

	c.logger.Infow("bot 运行结束",
		"bot", bot.Name, "run", runID, "status", status, "reason", reason)

	return &RunHandle{
		Token:  string(base62.FormatInt(runID)),
		RunID:  runID,
		BotID:  botID,
		Status: status,
		Reason: reason,
	}, nil
}

// safeRun 执行运行主体并吞掉 panic: 策略或执行器的崩溃只影响本次运行,
// 运行照常关闭为 failed, 锁照常释放, 守护进程不退出。
func (c *Coordinator) safeRun(ctx context.Context, bot *models.BotConfig, runID int64) (status models.RunStatus, reason string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("bot %d 的运行 %d 发生 panic: %v", bot.ID, runID, r)
			status = models.RunFailed
			reason = fmt.Sprintf("panic: %v", r)
		}
	}()
	return c.runOnce(ctx, bot, runID)
}

// runOnce 执行运行主体, 把所有失败都折叠成终态而不是 panic
func (c *Coordinator) runOnce(ctx context.Context, bot *models.BotConfig, runID int64) (models.RunStatus, string) {
	if err := bot.Validate(); err != nil {
		return models.RunFailed, err.Error()
	}

	gw, err := c.newGateway(ctx, bot)
	if err != nil {
		return models.RunFailed, fmt.Sprintf("exchange login: %v", err)
	}

	wallets, err := gw.GetWallets(ctx)
	if err != nil {
		return models.RunFailed, fmt.Sprintf("fetch balances: %v", err)
	}
	balances := make(map[string]float64, len(wallets))
	for _, w := range wallets {
		balances[w.Currency] = w.Balance
	}

	candidates, err := c.candidatePairs(ctx, bot.ID)
	if err != nil {
		return models.RunFailed, fmt.Sprintf("resolve trading pairs: %v", err)
	}

	strat, err := c.newStrat(bot)
	if err != nil {
		return models.RunFailed, fmt.Sprintf("build strategy: %v", err)
	}

	decision, err := strat.Decide(ctx, &strategy.Input{
		Bot:      bot,
		Balances: balances,
		Quote:    c.quote,
		Pairs:    candidates,
		Rand:     c.newRand(),
	})
	if err != nil {
		return models.RunFailed, fmt.Sprintf("strategy %s: %v", strat.Name(), err)
	}

	var pair *models.AssetPair
	if decision.Action != models.ActionHold {
		p, ok := c.pairs.Get(decision.Symbol)
		if !ok {
			return models.RunFailed, fmt.Sprintf("decision pair %q not in cache", decision.Symbol)
		}
		pair = &p
	}

	outcome := c.exec.Execute(ctx, gw, bot, pair, decision, runID)
	return outcome.Status, outcome.Reason
}

// candidatePairs 把 bot 启用的交易对解析为缓存里的快照, 保持优先级顺序。
// 缓存里没有或已停牌的对直接跳过。
func (c *Coordinator) candidatePairs(ctx context.Context, botID int64) ([]models.AssetPair, error) {
	configured, err := c.st.ListTradingPairs(ctx, botID)
	if err != nil {
		return nil, err
	}

	var out []models.AssetPair
	for _, tp := range configured {
		pair, ok := c.pairs.Get(tp.PairSymbol)
		if !ok || !pair.Active {
			continue
		}
		out = append(out, pair)
	}
	return out, nil
}

// ReconcileExpired 把租约已过期但仍标记为 running 的运行关闭为 failed。
// 这些是持有进程崩溃留下的孤儿记录, 调度器每个 tick 清一次。
func (c *Coordinator) ReconcileExpired(ctx context.Context) error {
	cutoff := c.now().Add(-c.leaseTTL)
	stale, err := c.st.ListStaleRuns(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale runs: %w", err)
	}

	for _, run := range stale {
		err := c.st.CloseBotRun(ctx, run.ID, models.RunFailed, "run lease expired", c.now())
		if errors.Is(err, store.ErrNotFound) {
			continue // 持有者恰好在此刻自己关闭了
		}
		if err != nil {
			return fmt.Errorf("close stale run %d: %w", run.ID, err)
		}
		c.logger.Warnf("运行 %d (bot %d) 的租约已过期, 标记为失败", run.ID, run.BotConfigID)
	}
	return nil
}
