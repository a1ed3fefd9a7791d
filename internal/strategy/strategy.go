package strategy

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// Input 是一次决策可见的全部世界状态。
// 策略是纯决策函数: 不访问网络、不写库, 只读 Input 并返回 Decision。
type Input struct {
	Bot      *models.BotConfig
	Balances map[string]float64 // ticker -> 可用余额
	Quote    string             // 计价货币 ticker, e.g. "TNB"
	Pairs    []models.AssetPair // 候选交易对, 按优先级从高到低
	Rand     *rand.Rand         // 注入的随机源, 测试时可固定种子
}

// QuoteBalance 返回计价货币的可用余额
func (in *Input) QuoteBalance() float64 {
	return in.Balances[in.Quote]
}

// Strategy 将世界状态映射为一个交易决策
type Strategy interface {
	Name() string
	Decide(ctx context.Context, in *Input) (models.Decision, error)
}

// Options 携带各策略实现可能需要的外部依赖
type Options struct {
	Rules     models.RuleConfig
	Predictor Predictor
	Logger    *zap.SugaredLogger
}

// New 根据 bot 类型构造对应的策略实现
func New(botType models.BotType, opts Options) (Strategy, error) {
	switch botType {
	case models.BotTypeRandom:
		return &RandomStrategy{logger: opts.Logger}, nil
	case models.BotTypeRule:
		return &RuleStrategy{rules: opts.Rules, logger: opts.Logger}, nil
	case models.BotTypeModel:
		if opts.Predictor == nil {
			return nil, fmt.Errorf("strategy: bot type %q requires a predictor", botType)
		}
		return &ModelStrategy{predictor: opts.Predictor, logger: opts.Logger}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown bot type %q", botType)
	}
}
