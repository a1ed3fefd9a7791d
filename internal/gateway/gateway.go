package gateway

import (
	"context"

	"tnb-trading-bot-go/internal/models"
)

// Gateway 定义了所有交易所实现必须提供的通用方法。
// 这使得执行器可以在 thenewboston 和币安之间轻松切换。
// 所有错误都以 *models.APIError 区分临时性与永久性。
type Gateway interface {
	Login(ctx context.Context, username, password string) error
	GetWallets(ctx context.Context) ([]models.Wallet, error)
	GetAssetPairs(ctx context.Context) ([]models.AssetPair, error)
	GetOrderBook(ctx context.Context, pair *models.AssetPair) (*models.OrderBook, error)
	PlaceOrder(ctx context.Context, pair *models.AssetPair, side models.Side, quantity, price float64) (*models.ExchangeOrder, error)
}
