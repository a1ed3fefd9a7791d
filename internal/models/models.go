package models

import (
	"errors"
	"fmt"
)

// Config 结构体定义了守护进程的所有配置参数
type Config struct {
	DBPath              string     `json:"db_path"`                 // SQLite 数据库文件路径
	CachePath           string     `json:"cache_path"`              // 交易对快照的 Badger 缓存目录
	Exchange            string     `json:"exchange"`                // 交易所类型: "tnb" 或 "binance"
	APIBaseURL          string     `json:"api_base_url"`            // REST API 基础地址
	WSBaseURL           string     `json:"ws_base_url,omitempty"`   // WebSocket 基础地址 (可选, 用于行情推送)
	QuoteTicker         string     `json:"quote_ticker"`            // 计价货币 ticker, e.g. "TNB"
	TickSeconds         int        `json:"tick_seconds"`            // 调度器全局 tick 间隔 (秒)
	PairRefreshSeconds  int        `json:"pair_refresh_seconds"`    // 交易对缓存刷新间隔 (秒)
	LeaseSeconds        int        `json:"lease_seconds"`           // 单个 bot 运行租约时长 (秒), 必须大于最长预期运行时间
	RetryAttempts       int        `json:"retry_attempts"`          // 下单失败时的重试次数
	RetryInitialDelayMs int        `json:"retry_initial_delay_ms"`  // 重试前的初始延迟毫秒数, 之后指数退避
	PredictorURL        string     `json:"predictor_url,omitempty"` // model 型 bot 的外部预测服务地址
	Lock                LockConfig `json:"lock"`                    // 运行互斥锁配置
	Rules               RuleConfig `json:"rules"`                   // rule 型策略的阈值配置
	LogConfig           LogConfig  `json:"log"`                     // 日志配置
}

// LockConfig 定义了 per-bot 运行锁的后端配置
type LockConfig struct {
	Type          string `json:"type"`   // "redis", "store" 或 "memory"
	Prefix        string `json:"prefix"` // 锁 key 前缀, e.g. "tnbbot:run:"
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
}

// RuleConfig 定义了 rule 型策略使用的阈值
type RuleConfig struct {
	TrendThreshold  float64 `json:"trend_threshold"`  // 短均线相对长均线的最小偏离百分比
	SpreadThreshold float64 `json:"spread_threshold"` // 历史价格区间的最小波动百分比
	ShortWindow     int     `json:"short_window"`     // 短均线窗口长度
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// Wallet 定义了账户中特定币种的余额信息
type Wallet struct {
	Currency string  `json:"currency"` // 币种 ticker, e.g. "TNB"
	Balance  float64 `json:"balance"`
}

// OrderBookEntry 是订单簿中的一个挂单
type OrderBookEntry struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook 定义了某个交易对的订单簿
type OrderBook struct {
	BuyOrders  []OrderBookEntry `json:"buy_orders"`
	SellOrders []OrderBookEntry `json:"sell_orders"`
}

// ExchangeOrder 是交易所对下单请求的响应
type ExchangeOrder struct {
	OrderRef string  `json:"order_ref"` // 交易所侧订单标识
	PairID   int64   `json:"pair_id"`
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// TradeStreamEvent 定义了来自 WebSocket 行情流的成交事件
type TradeStreamEvent struct {
	PairID    int64  `json:"asset_pair"`
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	TradeTime int64  `json:"trade_time"`
}

// APIError 定义了交易所 API 返回的错误信息结构。
// Transient 标记该错误是否为基础设施级的临时错误 (超时/限频/5xx)，
// 临时错误允许重试，业务级错误 (认证失败/订单被拒) 不允许。
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
	Transient  bool   `json:"transient"`
}

// Error 方法使得 APIError 实现了 error 接口
func (e *APIError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("API Error (%s): status=%d, code=%d, msg=%s", kind, e.StatusCode, e.Code, e.Msg)
}

// IsTransient 判断一个错误链中是否包含可重试的 APIError
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	return false
}

// NewTransientError 构造一个可重试的 API 错误
func NewTransientError(status int, msg string) *APIError {
	return &APIError{StatusCode: status, Msg: msg, Transient: true}
}

// NewPermanentError 构造一个不可重试的 API 错误
func NewPermanentError(status int, msg string) *APIError {
	return &APIError{StatusCode: status, Msg: msg}
}
