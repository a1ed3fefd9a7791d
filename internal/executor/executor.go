package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/gateway"
	"tnb-trading-bot-go/internal/models"
)

// 限价相对盘口对手价的定价系数
const (
	buyPriceFactor  = 0.95 // 买单挂在最低卖价下方 5%
	sellPriceFactor = 1.05 // 卖单挂在最高买价上方 5%
)

// TradeAppender 是执行器对存储的最小依赖
type TradeAppender interface {
	AppendTradeLog(ctx context.Context, trade *models.TradeLog) (int64, error)
}

// Outcome 是一次执行的结果, 直接映射为 BotRun 的终态
type Outcome struct {
	Status models.RunStatus
	Reason string
	Trade  *models.TradeLog
}

// Executor 把策略决策转化为实际订单。
// 它负责余额闸门、支出截断、临时错误重试以及成交记录的落库。
// 余额永远以交易所的实时查询为准, 不信任缓存。
type Executor struct {
	store        TradeAppender
	attempts     int
	initialDelay time.Duration
	logger       *zap.SugaredLogger

	// 可注入的依赖, 测试时替换
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New 创建执行器。attempts 是总尝试次数 (含首次), initialDelay 为首次重试前的等待。
func New(store TradeAppender, attempts int, initialDelay time.Duration, logger *zap.SugaredLogger) *Executor {
	return &Executor{
		store:        store,
		attempts:     attempts,
		initialDelay: initialDelay,
		logger:       logger,
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

// Execute 按决策执行交易并返回运行终态。
// 持有决策直接结束; 买卖决策先过余额闸门, 再截断支出, 然后带重试地下单。
// 只有订单被交易所接受后才写 TradeLog。
func (e *Executor) Execute(ctx context.Context, gw gateway.Gateway, bot *models.BotConfig, pair *models.AssetPair, decision models.Decision, runID int64) Outcome {
	if decision.Action == models.ActionHold {
		reason := decision.Reason
		if reason == "" {
			reason = "strategy held"
		}
		return Outcome{Status: models.RunNoAction, Reason: reason}
	}

	// 余额用交易所的实时数据, 不用缓存
	wallets, err := gw.GetWallets(ctx)
	if err != nil {
		return Outcome{Status: models.RunFailed, Reason: fmt.Sprintf("fetch balances: %v", err)}
	}
	balances := make(map[string]float64, len(wallets))
	for _, w := range wallets {
		balances[w.Currency] = w.Balance
	}

	if balances[pair.QuoteTicker] < bot.MinBalanceRequired {
		return Outcome{
			Status: models.RunNoAction,
			Reason: fmt.Sprintf("quote balance %.4f below minimum %.4f", balances[pair.QuoteTicker], bot.MinBalanceRequired),
		}
	}

	price := e.limitPrice(ctx, gw, pair, decision)
	if price <= 0 {
		return Outcome{Status: models.RunFailed, Reason: fmt.Sprintf("no usable price for %s", decision.Symbol)}
	}

	notional := e.clampNotional(bot, pair, decision, balances, price)
	quantity := notional / price
	if quantity <= 0 {
		return Outcome{Status: models.RunNoAction, Reason: "clamped order size is zero"}
	}

	order, err := e.placeWithRetry(ctx, gw, pair, decision.SideOf(), quantity, price)
	if err != nil {
		return Outcome{Status: models.RunFailed, Reason: err.Error()}
	}

	trade := &models.TradeLog{
		BotRunID:   runID,
		PairID:     pair.PairID,
		PairSymbol: pair.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      order.Price,
		TotalValue: order.Quantity * order.Price,
		OrderRef:   order.OrderRef,
		ExecutedAt: e.now(),
	}
	if id, err := e.store.AppendTradeLog(ctx, trade); err != nil {
		// 订单已经成交, 但审计记录没写进去, 必须暴露为失败
		e.logger.Errorf("订单 %s 已提交但成交记录写入失败: %v", order.OrderRef, err)
		return Outcome{Status: models.RunFailed, Reason: fmt.Sprintf("order %s placed but trade log write failed: %v", order.OrderRef, err)}
	} else {
		trade.ID = id
	}

	return Outcome{
		Status: models.RunSuccess,
		Reason: decision.Reason,
		Trade:  trade,
	}
}

// limitPrice 从盘口推导限价: 买单参考最低卖价, 卖单参考最高买价。
// 盘口不可用或相应一侧为空时退回决策时的快照参考价。
func (e *Executor) limitPrice(ctx context.Context, gw gateway.Gateway, pair *models.AssetPair, decision models.Decision) float64 {
	book, err := gw.GetOrderBook(ctx, pair)
	if err != nil {
		e.logger.Warnf("获取 %s 盘口失败, 使用快照参考价: %v", pair.Symbol, err)
		return decision.Price
	}
	if book == nil {
		return decision.Price
	}

	if decision.SideOf() == models.Buy {
		if ask, ok := lowestPrice(book.SellOrders); ok {
			return ask * buyPriceFactor
		}
	} else {
		if bid, ok := highestPrice(book.BuyOrders); ok {
			return bid * sellPriceFactor
		}
	}
	return decision.Price
}

func lowestPrice(entries []models.OrderBookEntry) (float64, bool) {
	var best float64
	for _, e := range entries {
		if e.Price <= 0 {
			continue
		}
		if best == 0 || e.Price < best {
			best = e.Price
		}
	}
	return best, best > 0
}

func highestPrice(entries []models.OrderBookEntry) (float64, bool) {
	var best float64
	for _, e := range entries {
		if e.Price > best {
			best = e.Price
		}
	}
	return best, best > 0
}

// clampNotional 把名义金额截断到 max_spend_per_trade 与实际可用余额之内
func (e *Executor) clampNotional(bot *models.BotConfig, pair *models.AssetPair, decision models.Decision, balances map[string]float64, price float64) float64 {
	notional := decision.Amount
	if bot.MaxSpendPerTrade > 0 && notional > bot.MaxSpendPerTrade {
		notional = bot.MaxSpendPerTrade
	}

	var available float64
	if decision.Action == models.ActionBuy {
		available = balances[pair.QuoteTicker]
	} else {
		available = balances[pair.BaseTicker] * price
	}
	if notional > available {
		e.logger.Debugf("下单金额 %.4f 超出可用 %.4f, 截断", notional, available)
		notional = available
	}
	return notional
}

// placeWithRetry 提交订单, 仅对临时错误做指数退避重试。
// 业务错误 (余额不足/订单被拒) 立即失败, 重复下单只会雪上加霜。
func (e *Executor) placeWithRetry(ctx context.Context, gw gateway.Gateway, pair *models.AssetPair, side models.Side, quantity, price float64) (*models.ExchangeOrder, error) {
	delay := e.initialDelay
	var lastErr error

	for attempt := 1; attempt <= e.attempts; attempt++ {
		order, err := gw.PlaceOrder(ctx, pair, side, quantity, price)
		if err == nil {
			return order, nil
		}
		lastErr = err

		if !models.IsTransient(err) {
			return nil, fmt.Errorf("order rejected: %w", err)
		}
		if attempt == e.attempts {
			break
		}

		e.logger.Warnf("下单遇到临时错误 (第 %d/%d 次): %v, %v 后重试", attempt, e.attempts, err, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("order retry aborted: %w", err)
		}
		delay *= 2
	}

	return nil, fmt.Errorf("order failed after %d attempts: %w", e.attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
