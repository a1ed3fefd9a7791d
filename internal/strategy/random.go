package strategy

import (
	"context"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// 随机策略的仓位系数
const (
	buySpendRatio = 0.1  // 单次买入最多动用计价货币余额的 10%
	minSellRatio  = 0.25 // 卖出仓位的下限比例, 上限为全部
)

// RandomStrategy 按 bot 配置的卖出概率随机决定买卖方向。
// 方向为卖时在有持仓的交易对里随机挑一个, 卖出 25%~100% 的仓位;
// 方向为买时随机挑一个候选交易对, 动用不超过一成的计价货币余额。
type RandomStrategy struct {
	logger *zap.SugaredLogger
}

func (s *RandomStrategy) Name() string { return "random" }

func (s *RandomStrategy) Decide(_ context.Context, in *Input) (models.Decision, error) {
	if len(in.Pairs) == 0 {
		return models.HoldDecision("no tradable pairs"), nil
	}

	if in.Rand.Float64() < in.Bot.SellProbability {
		if d, ok := s.decideSell(in); ok {
			return d, nil
		}
		// 想卖但没有可卖的持仓, 退回持有
		return models.HoldDecision("sell drawn but nothing to sell"), nil
	}
	return s.decideBuy(in), nil
}

// decideSell 在有基础货币持仓的候选对里随机挑一个卖出
func (s *RandomStrategy) decideSell(in *Input) (models.Decision, bool) {
	var sellable []models.AssetPair
	for _, p := range in.Pairs {
		if p.BaseTicker == in.Quote {
			continue
		}
		if in.Balances[p.BaseTicker] > 0 && p.LastPrice > 0 {
			sellable = append(sellable, p)
		}
	}
	if len(sellable) == 0 {
		return models.Decision{}, false
	}

	pair := sellable[in.Rand.Intn(len(sellable))]
	// 卖出持仓的一个随机比例, 落在 [minSellRatio, 1.0]。
	// Price 是快照参考价, 执行器下单前会按盘口重新定限价。
	ratio := minSellRatio + in.Rand.Float64()*(1.0-minSellRatio)
	notional := in.Balances[pair.BaseTicker] * pair.LastPrice * ratio

	return models.Decision{
		Action: models.ActionSell,
		PairID: pair.PairID,
		Symbol: pair.Symbol,
		Amount: notional,
		Price:  pair.LastPrice,
		Reason: "random sell",
	}, true
}

// decideBuy 随机挑一个候选对买入
func (s *RandomStrategy) decideBuy(in *Input) models.Decision {
	var buyable []models.AssetPair
	for _, p := range in.Pairs {
		if p.LastPrice > 0 {
			buyable = append(buyable, p)
		}
	}
	if len(buyable) == 0 {
		return models.HoldDecision("no pairs with a known price")
	}

	quoteBal := in.QuoteBalance()
	if quoteBal <= 0 {
		return models.HoldDecision("no quote balance to buy with")
	}

	pair := buyable[in.Rand.Intn(len(buyable))]
	notional := quoteBal * buySpendRatio
	if in.Bot.MaxSpendPerTrade > 0 && notional > in.Bot.MaxSpendPerTrade {
		notional = in.Bot.MaxSpendPerTrade
	}

	return models.Decision{
		Action: models.ActionBuy,
		PairID: pair.PairID,
		Symbol: pair.Symbol,
		Amount: notional,
		Price:  pair.LastPrice,
		Reason: "random buy",
	}
}
