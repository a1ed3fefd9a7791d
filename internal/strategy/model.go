package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// Predictor 是外部预测服务的抽象
type Predictor interface {
	Predict(ctx context.Context, req *PredictRequest) (models.Decision, error)
}

// PredictRequest 是发给预测服务的世界状态
type PredictRequest struct {
	BotName  string             `json:"bot_name"`
	Balances map[string]float64 `json:"balances"`
	Quote    string             `json:"quote"`
	Pairs    []models.AssetPair `json:"pairs"`
}

// ModelStrategy 把决策完全委托给外部预测服务。
// 预测失败视为永久错误, 该次运行直接失败而不是盲目下单。
type ModelStrategy struct {
	predictor Predictor
	logger    *zap.SugaredLogger
}

func (s *ModelStrategy) Name() string { return "model" }

func (s *ModelStrategy) Decide(ctx context.Context, in *Input) (models.Decision, error) {
	req := &PredictRequest{
		BotName:  in.Bot.Name,
		Balances: in.Balances,
		Quote:    in.Quote,
		Pairs:    in.Pairs,
	}

	decision, err := s.predictor.Predict(ctx, req)
	if err != nil {
		return models.Decision{}, fmt.Errorf("model prediction: %w", err)
	}

	switch decision.Action {
	case models.ActionHold, models.ActionBuy, models.ActionSell:
	default:
		return models.Decision{}, fmt.Errorf("model prediction: unknown action %q", decision.Action)
	}
	if decision.Action != models.ActionHold && (decision.Symbol == "" || decision.Price <= 0 || decision.Amount <= 0) {
		return models.Decision{}, fmt.Errorf("model prediction: incomplete %s decision for %q", decision.Action, decision.Symbol)
	}

	s.logger.Debugf("预测服务返回决策: %s %s", decision.Action, decision.Symbol)
	return decision, nil
}
