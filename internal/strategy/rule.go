package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// RuleStrategy 基于均线趋势和波动区间做决策。
// 候选交易对按优先级依次评估, 第一个满足条件的对产生决策:
//   - 历史价格的波动区间必须超过 SpreadThreshold, 否则视为死水跳过;
//   - 短均线高于长均线 TrendThreshold 以上时买入;
//   - 短均线低于长均线 TrendThreshold 以上且有持仓时卖出。
// 所有对都不满足时持有。
type RuleStrategy struct {
	rules  models.RuleConfig
	logger *zap.SugaredLogger
}

func (s *RuleStrategy) Name() string { return "rule" }

func (s *RuleStrategy) Decide(_ context.Context, in *Input) (models.Decision, error) {
	for _, pair := range in.Pairs {
		// 短均线之外还需要至少一个点构成长均线
		if len(pair.History) < s.rules.ShortWindow+1 || pair.LastPrice <= 0 {
			continue
		}

		spread := spreadPercent(pair.History)
		if spread < s.rules.SpreadThreshold {
			continue
		}

		trend := s.trendPercent(pair.History)
		switch {
		case trend >= s.rules.TrendThreshold:
			notional := in.Bot.MaxSpendPerTrade
			if notional <= 0 {
				notional = in.QuoteBalance() * buySpendRatio
			}
			if notional <= 0 {
				continue
			}
			return models.Decision{
				Action: models.ActionBuy,
				PairID: pair.PairID,
				Symbol: pair.Symbol,
				Amount: notional,
				Price:  pair.LastPrice,
				Reason: fmt.Sprintf("uptrend %.2f%% spread %.2f%%", trend, spread),
			}, nil
		case trend <= -s.rules.TrendThreshold:
			baseBal := in.Balances[pair.BaseTicker]
			if baseBal <= 0 {
				continue
			}
			return models.Decision{
				Action: models.ActionSell,
				PairID: pair.PairID,
				Symbol: pair.Symbol,
				Amount: baseBal * pair.LastPrice,
				Price:  pair.LastPrice,
				Reason: fmt.Sprintf("downtrend %.2f%% spread %.2f%%", trend, spread),
			}, nil
		}
	}
	return models.HoldDecision("no pair met trend/spread thresholds"), nil
}

// trendPercent 返回短均线相对长均线的偏离百分比
func (s *RuleStrategy) trendPercent(history []float64) float64 {
	short := mean(history[len(history)-s.rules.ShortWindow:])
	long := mean(history)
	if long == 0 {
		return 0
	}
	return (short - long) / long * 100
}

// spreadPercent 返回历史价格区间相对最低价的波动百分比
func spreadPercent(history []float64) float64 {
	low, high := history[0], history[0]
	for _, v := range history[1:] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	if low == 0 {
		return 0
	}
	return (high - low) / low * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
