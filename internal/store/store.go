package store

import (
	"context"
	"errors"
	"time"

	"tnb-trading-bot-go/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence interface for bot configuration and the
// append-only audit trail (BotRun/TradeLog). It abstracts the underlying
// database (SQLite here) from the rest of the application.
//
// BotRun and TradeLog rows are append-only: the only permitted mutation is
// closing a run that is still in the "running" state. Lease rows are the one
// exception to append-only and back the store-based run lock.
type Store interface {
	// Bot configuration (written by the operator surface, read-only here
	// except for run bookkeeping).
	GetBotConfig(ctx context.Context, id int64) (*models.BotConfig, error)
	ListActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error)
	SaveBotConfig(ctx context.Context, cfg *models.BotConfig) (int64, error)
	// TouchBotRunStats records that a run has started: sets last_run and
	// increments total_runs.
	TouchBotRunStats(ctx context.Context, id int64, lastRun time.Time) error

	// Trading pairs enabled per bot, highest priority first.
	ListTradingPairs(ctx context.Context, botConfigID int64) ([]models.TradingPair, error)
	SaveTradingPair(ctx context.Context, tp *models.TradingPair) (int64, error)

	// Runs.
	CreateBotRun(ctx context.Context, run *models.BotRun) (int64, error)
	// CloseBotRun writes the terminal state of a run. It only applies to
	// runs still in the "running" state; closing an already-closed run
	// returns ErrNotFound so a completed record can never be rewritten.
	CloseBotRun(ctx context.Context, id int64, status models.RunStatus, reason string, endedAt time.Time) error
	// ListStaleRuns returns runs still marked "running" that started before
	// the given cutoff. Used to reconcile runs whose process died mid-way.
	ListStaleRuns(ctx context.Context, before time.Time) ([]models.BotRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.BotRun, error)

	// Trades.
	AppendTradeLog(ctx context.Context, trade *models.TradeLog) (int64, error)
	ListRecentTrades(ctx context.Context, limit int) ([]models.TradeLog, error)
	CountTradesForRun(ctx context.Context, runID int64) (int, error)

	// Lease rows keyed by lock key with an expiry, backing the store-based
	// run lock. Acquire succeeds when no row exists or the existing row has
	// expired.
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, key, token string) error
	ExtendLease(ctx context.Context, key, token string, ttl time.Duration, now time.Time) error

	Close() error
}
