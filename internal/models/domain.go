package models

import (
	"fmt"
	"time"
)

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// BotType 选择 bot 使用的策略实现
type BotType string

const (
	BotTypeRandom BotType = "random" // 随机买卖 (randy)
	BotTypeRule   BotType = "rule"   // 基于均线/波动阈值的规则策略
	BotTypeModel  BotType = "model"  // 委托给外部预测服务
)

// BotStatus 是 bot 配置的生命周期状态
type BotStatus string

const (
	StatusStopped BotStatus = "stopped"
	StatusActive  BotStatus = "active"
	StatusPaused  BotStatus = "paused"
)

// BotConfig 定义了一个交易 bot 实例的全部配置。
// 配置由外部运营端写入，对核心而言是只读的。
type BotConfig struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"` // 全局唯一
	BotType            BotType   `json:"bot_type"`
	Status             BotStatus `json:"status"`
	APIUsername        string    `json:"api_username"`
	APIPassword        string    `json:"api_password"` // 不透明凭证, 核心不做任何解释
	MaxSpendPerTrade   float64   `json:"max_spend_per_trade"`
	MinBalanceRequired float64   `json:"min_balance_required"`
	SellProbability    float64   `json:"sell_probability"` // [0,1]
	IntervalSeconds    int       `json:"interval_seconds"` // >= 1
	LastRun            time.Time `json:"last_run"`
	TotalRuns          int       `json:"total_runs"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Validate 对参数范围做快速失败校验。配置本应由外部写入端校验，
// 这里兜底，违反时该次运行以 config 原因失败。
func (c *BotConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is empty")
	}
	if c.SellProbability < 0 || c.SellProbability > 1 {
		return fmt.Errorf("config: sell_probability %.4f out of range [0,1]", c.SellProbability)
	}
	if c.IntervalSeconds < 1 {
		return fmt.Errorf("config: interval_seconds %d must be >= 1", c.IntervalSeconds)
	}
	if c.MaxSpendPerTrade < 0 {
		return fmt.Errorf("config: max_spend_per_trade %.4f must be >= 0", c.MaxSpendPerTrade)
	}
	if c.MinBalanceRequired < 0 {
		return fmt.Errorf("config: min_balance_required %.4f must be >= 0", c.MinBalanceRequired)
	}
	switch c.BotType {
	case BotTypeRandom, BotTypeRule, BotTypeModel:
	default:
		return fmt.Errorf("config: unknown bot_type %q", c.BotType)
	}
	return nil
}

// TradingPair 是某个 bot 启用的交易对, 多对一关联 BotConfig
type TradingPair struct {
	ID          int64  `json:"id"`
	BotConfigID int64  `json:"bot_config_id"`
	PairSymbol  string `json:"pair_symbol"` // e.g. "VTX/TNB"
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"` // 越大越优先
}

// AssetPair 是从交易所缓存下来的可交易对。最终一致,
// 仅用于决策参考, 不能作为余额判断的依据。
type AssetPair struct {
	PairID      int64     `json:"pair_id"`
	Symbol      string    `json:"symbol"` // "BASE/QUOTE"
	BaseTicker  string    `json:"base_ticker"`
	QuoteTicker string    `json:"quote_ticker"`
	BaseName    string    `json:"base_name"`
	QuoteName   string    `json:"quote_name"`
	LastPrice   float64   `json:"last_price"`
	LastVolume  float64   `json:"last_volume"`
	History     []float64 `json:"history"` // 最近的成交价序列, 定长截断
	Active      bool      `json:"active"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// RunStatus 是一次 bot 运行的终态
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunNoAction RunStatus = "no_action"
	RunFailed   RunStatus = "failed"
)

// BotRun 记录一次调度触发的执行尝试。只追加, 完成后不可变。
type BotRun struct {
	ID          int64     `json:"id"`
	BotConfigID int64     `json:"bot_config_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Status      RunStatus `json:"status"`
	Reason      string    `json:"reason"` // 人类可读的终态原因
	LeaseToken  string    `json:"lease_token"`
}

// TradeLog 记录一笔已执行的订单, 隶属于一次成功的 BotRun。只追加。
type TradeLog struct {
	ID         int64     `json:"id"`
	BotRunID   int64     `json:"bot_run_id"`
	PairID     int64     `json:"pair_id"`
	PairSymbol string    `json:"pair_symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	TotalValue float64   `json:"total_value"`
	OrderRef   string    `json:"order_ref"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Action 是策略输出的动作类型
type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Decision 是策略的输出。Amount 以计价货币的名义金额表示,
// 执行器负责按约束截断并换算为下单数量。
type Decision struct {
	Action Action  `json:"action"`
	PairID int64   `json:"pair_id,omitempty"`
	Symbol string  `json:"symbol,omitempty"`
	Amount float64 `json:"amount,omitempty"` // 计价货币名义金额
	Price  float64 `json:"price,omitempty"`  // 决策时的参考价格 (来自快照)
	Reason string  `json:"reason,omitempty"`
}

// HoldDecision 构造一个持有决策
func HoldDecision(reason string) Decision {
	return Decision{Action: ActionHold, Reason: reason}
}

// SideOf 将决策动作映射为交易方向。ActionHold 没有方向。
func (d Decision) SideOf() Side {
	if d.Action == ActionSell {
		return Sell
	}
	return Buy
}
