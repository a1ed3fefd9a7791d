package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// TNB 下单方向: 1 为买, -1 为卖
const (
	tnbSideBuy  = 1
	tnbSideSell = -1
)

// TNBGateway 实现了 Gateway 接口，用于与 thenewboston 交易所进行交互。
// 认证方式为 login 换取 Bearer token, 因此每个 bot 的运行各持有一个实例。
type TNBGateway struct {
	baseURL     string
	httpClient  *http.Client
	logger      *zap.SugaredLogger
	accessToken string
}

// NewTNBGateway 创建一个新的 TNBGateway 实例
func NewTNBGateway(baseURL string, logger *zap.SugaredLogger) *TNBGateway {
	return &TNBGateway{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Login 使用用户名密码换取访问令牌
func (g *TNBGateway) Login(ctx context.Context, username, password string) error {
	payload := map[string]string{"username": username, "password": password}
	body, err := g.doRequest(ctx, http.MethodPost, "/login", nil, payload, false)
	if err != nil {
		return err
	}

	var resp struct {
		Authentication struct {
			AccessToken string `json:"access_token"`
		} `json:"authentication"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.NewPermanentError(0, fmt.Sprintf("invalid login response: %v", err))
	}
	if resp.Authentication.AccessToken == "" {
		return models.NewPermanentError(0, "login response missing access token")
	}

	g.accessToken = resp.Authentication.AccessToken
	g.logger.Debugf("已登录交易所, 用户: %s", username)
	return nil
}

// GetWallets 获取账户下所有币种的余额
func (g *TNBGateway) GetWallets(ctx context.Context) ([]models.Wallet, error) {
	var wallets []models.Wallet

	err := g.forEachPage(ctx, "/wallets", func(results []json.RawMessage) error {
		for _, raw := range results {
			var w struct {
				Currency struct {
					Ticker string `json:"ticker"`
				} `json:"currency"`
				Balance json.Number `json:"balance"`
			}
			if err := json.Unmarshal(raw, &w); err != nil {
				return models.NewPermanentError(0, fmt.Sprintf("invalid wallet payload: %v", err))
			}
			bal, _ := w.Balance.Float64()
			wallets = append(wallets, models.Wallet{Currency: w.Currency.Ticker, Balance: bal})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

// GetAssetPairs 分页拉取全部可交易对
func (g *TNBGateway) GetAssetPairs(ctx context.Context) ([]models.AssetPair, error) {
	var pairs []models.AssetPair
	now := time.Now()

	err := g.forEachPage(ctx, "/asset-pairs", func(results []json.RawMessage) error {
		for _, raw := range results {
			var p struct {
				ID              int64 `json:"id"`
				PrimaryCurrency struct {
					Ticker string `json:"ticker"`
					Name   string `json:"name"`
				} `json:"primary_currency"`
				SecondaryCurrency struct {
					Ticker string `json:"ticker"`
					Name   string `json:"name"`
				} `json:"secondary_currency"`
				LastTradePrice json.Number `json:"last_trade_price"`
				Volume24h      json.Number `json:"volume_24h"`
			}
			if err := json.Unmarshal(raw, &p); err != nil {
				return models.NewPermanentError(0, fmt.Sprintf("invalid asset pair payload: %v", err))
			}
			price, _ := p.LastTradePrice.Float64()
			volume, _ := p.Volume24h.Float64()
			pairs = append(pairs, models.AssetPair{
				PairID:      p.ID,
				Symbol:      p.PrimaryCurrency.Ticker + "/" + p.SecondaryCurrency.Ticker,
				BaseTicker:  p.PrimaryCurrency.Ticker,
				QuoteTicker: p.SecondaryCurrency.Ticker,
				BaseName:    p.PrimaryCurrency.Name,
				QuoteName:   p.SecondaryCurrency.Name,
				LastPrice:   price,
				LastVolume:  volume,
				Active:      true,
				FetchedAt:   now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// GetOrderBook 获取某个交易对的订单簿
func (g *TNBGateway) GetOrderBook(ctx context.Context, pair *models.AssetPair) (*models.OrderBook, error) {
	params := url.Values{}
	params.Set("asset_pair", strconv.FormatInt(pair.PairID, 10))

	body, err := g.doRequest(ctx, http.MethodGet, "/exchange-orders/book", params, nil, true)
	if err != nil {
		return nil, err
	}

	var raw struct {
		BuyOrders  []rawBookEntry `json:"buy_orders"`
		SellOrders []rawBookEntry `json:"sell_orders"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, models.NewPermanentError(0, fmt.Sprintf("invalid order book payload: %v", err))
	}

	book := &models.OrderBook{}
	for _, e := range raw.BuyOrders {
		book.BuyOrders = append(book.BuyOrders, e.toEntry())
	}
	for _, e := range raw.SellOrders {
		book.SellOrders = append(book.SellOrders, e.toEntry())
	}
	return book, nil
}

// PlaceOrder 提交一笔限价单。thenewboston 的价格和数量均为整数。
func (g *TNBGateway) PlaceOrder(ctx context.Context, pair *models.AssetPair, side models.Side, quantity, price float64) (*models.ExchangeOrder, error) {
	tnbSide := tnbSideBuy
	if side == models.Sell {
		tnbSide = tnbSideSell
	}

	intPrice := int64(math.Round(price))
	intQty := int64(math.Floor(quantity))
	if intPrice <= 0 || intQty <= 0 {
		return nil, models.NewPermanentError(0,
			fmt.Sprintf("order rejected before submit: price=%d quantity=%d", intPrice, intQty))
	}

	payload := map[string]interface{}{
		"asset_pair": pair.PairID,
		"price":      intPrice,
		"quantity":   intQty,
		"side":       tnbSide,
	}

	body, err := g.doRequest(ctx, http.MethodPost, "/exchange-orders", nil, payload, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, models.NewPermanentError(0, fmt.Sprintf("invalid order response: %v", err))
	}

	g.logger.Infof("下单成功: %s %d @ %d, pair=%s, order=%s", side, intQty, intPrice, pair.Symbol, resp.ID.String())
	return &models.ExchangeOrder{
		OrderRef: resp.ID.String(),
		PairID:   pair.PairID,
		Side:     side,
		Price:    float64(intPrice),
		Quantity: float64(intQty),
	}, nil
}

// rawBookEntry 兼容字符串/数字两种价格表示
type rawBookEntry struct {
	Price    json.Number `json:"price"`
	Quantity json.Number `json:"quantity"`
}

func (e rawBookEntry) toEntry() models.OrderBookEntry {
	p, _ := e.Price.Float64()
	q, _ := e.Quantity.Float64()
	return models.OrderBookEntry{Price: p, Quantity: q}
}

// forEachPage 按页遍历一个分页接口, results 字段逐页交给回调处理
func (g *TNBGateway) forEachPage(ctx context.Context, endpoint string, fn func(results []json.RawMessage) error) error {
	page := 1
	for {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))

		body, err := g.doRequest(ctx, http.MethodGet, endpoint, params, nil, true)
		if err != nil {
			return err
		}

		var resp struct {
			Results []json.RawMessage `json:"results"`
			Next    string            `json:"next"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return models.NewPermanentError(0, fmt.Sprintf("invalid paginated payload for %s: %v", endpoint, err))
		}

		if err := fn(resp.Results); err != nil {
			return err
		}
		if resp.Next == "" {
			return nil
		}
		page++
	}
}

// doRequest 是一个通用的请求处理函数，负责编码、鉴权与错误分类。
// 网络错误、429 与 5xx 标记为临时错误, 其余 4xx 为永久错误。
func (g *TNBGateway) doRequest(ctx context.Context, method, endpoint string, params url.Values, payload interface{}, authed bool) ([]byte, error) {
	fullURL := g.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, models.NewPermanentError(0, fmt.Sprintf("encode request: %v", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, models.NewPermanentError(0, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if authed && g.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.accessToken)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// 连接失败/超时属于基础设施级错误, 可以重试
		return nil, models.NewTransientError(0, fmt.Sprintf("%s %s: %v", method, endpoint, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewTransientError(resp.StatusCode, fmt.Sprintf("read response: %v", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, models.NewTransientError(resp.StatusCode,
			fmt.Sprintf("%s %s: %s", method, endpoint, truncate(body, 256)))
	default:
		return nil, models.NewPermanentError(resp.StatusCode,
			fmt.Sprintf("%s %s: %s", method, endpoint, truncate(body, 256)))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
