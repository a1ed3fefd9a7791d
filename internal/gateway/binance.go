package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/models"
)

// BinanceGateway 实现了 Gateway 接口，用于与币安现货进行交互。
// 币安没有数字型 pair id, 以 Symbol 作为唯一标识。
type BinanceGateway struct {
	client *binance.Client
	logger *zap.SugaredLogger
}

// NewBinanceGateway 创建一个新的 BinanceGateway 实例
func NewBinanceGateway(apiKey, secretKey string, logger *zap.SugaredLogger) *BinanceGateway {
	return &BinanceGateway{
		client: binance.NewClient(apiKey, secretKey),
		logger: logger,
	}
}

// Login 对币安而言就是重建带凭证的客户端, username/password
// 对应 API key/secret (凭证在核心中是不透明的)。
func (g *BinanceGateway) Login(ctx context.Context, username, password string) error {
	g.client = binance.NewClient(username, password)
	// 用一次账户查询验证凭证有效性
	if _, err := g.client.NewGetAccountService().Do(ctx); err != nil {
		return classifyBinanceError(err)
	}
	return nil
}

// GetWallets 获取现货账户全部余额
func (g *BinanceGateway) GetWallets(ctx context.Context) ([]models.Wallet, error) {
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}

	var wallets []models.Wallet
	for _, b := range acct.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			continue
		}
		wallets = append(wallets, models.Wallet{Currency: b.Asset, Balance: free})
	}
	return wallets, nil
}

// GetAssetPairs 拉取全部现货交易对及最新成交价
func (g *BinanceGateway) GetAssetPairs(ctx context.Context) ([]models.AssetPair, error) {
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}

	prices, err := g.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}
	priceBySymbol := make(map[string]float64, len(prices))
	for _, p := range prices {
		if v, err := strconv.ParseFloat(p.Price, 64); err == nil {
			priceBySymbol[p.Symbol] = v
		}
	}

	now := time.Now()
	var pairs []models.AssetPair
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, models.AssetPair{
			Symbol:      s.BaseAsset + "/" + s.QuoteAsset,
			BaseTicker:  s.BaseAsset,
			QuoteTicker: s.QuoteAsset,
			LastPrice:   priceBySymbol[s.Symbol],
			Active:      true,
			FetchedAt:   now,
		})
	}
	return pairs, nil
}

// GetOrderBook 获取指定交易对的深度
func (g *BinanceGateway) GetOrderBook(ctx context.Context, pair *models.AssetPair) (*models.OrderBook, error) {
	depth, err := g.client.NewDepthService().Symbol(binanceSymbol(pair)).Limit(20).Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}

	book := &models.OrderBook{}
	for _, bid := range depth.Bids {
		p, _ := strconv.ParseFloat(bid.Price, 64)
		q, _ := strconv.ParseFloat(bid.Quantity, 64)
		book.BuyOrders = append(book.BuyOrders, models.OrderBookEntry{Price: p, Quantity: q})
	}
	for _, ask := range depth.Asks {
		p, _ := strconv.ParseFloat(ask.Price, 64)
		q, _ := strconv.ParseFloat(ask.Quantity, 64)
		book.SellOrders = append(book.SellOrders, models.OrderBookEntry{Price: p, Quantity: q})
	}
	return book, nil
}

// PlaceOrder 提交一笔限价单
func (g *BinanceGateway) PlaceOrder(ctx context.Context, pair *models.AssetPair, side models.Side, quantity, price float64) (*models.ExchangeOrder, error) {
	sideType := binance.SideTypeBuy
	if side == models.Sell {
		sideType = binance.SideTypeSell
	}

	order, err := g.client.NewCreateOrderService().
		Symbol(binanceSymbol(pair)).
		Side(sideType).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Price(strconv.FormatFloat(price, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, classifyBinanceError(err)
	}

	g.logger.Infof("下单成功: %s %.6f @ %.6f, symbol=%s, order=%d",
		side, quantity, price, order.Symbol, order.OrderID)
	return &models.ExchangeOrder{
		OrderRef: strconv.FormatInt(order.OrderID, 10),
		PairID:   pair.PairID,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	}, nil
}

func binanceSymbol(pair *models.AssetPair) string {
	return pair.BaseTicker + pair.QuoteTicker
}

// classifyBinanceError 将币安 SDK 的错误映射为带临时/永久标记的 APIError。
// -1000..-1099 是服务器/网络类错误码, 可以重试; 其余业务错误码不可重试。
func classifyBinanceError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		transient := apiErr.Code <= -1000 && apiErr.Code >= -1099
		return &models.APIError{
			Code:      int(apiErr.Code),
			Msg:       apiErr.Message,
			Transient: transient,
		}
	}
	// SDK 层面的网络错误
	return models.NewTransientError(0, fmt.Sprintf("binance request: %v", err))
}
