package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver

	"tnb-trading-bot-go/internal/models"
)

// sqliteStore is the SQLite implementation of the Store interface.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the database at the given
// path and ensures all tables exist.
func NewSQLiteStore(dataSourceName string) (Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; serialize access through one
	// connection to avoid SQLITE_BUSY under concurrent bot runs.
	db.SetMaxOpenConns(1)

	if err = createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

// createTables creates the necessary database tables if they don't exist.
func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bot_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			bot_type TEXT NOT NULL,
			status TEXT NOT NULL,
			api_username TEXT NOT NULL DEFAULT '',
			api_password TEXT NOT NULL DEFAULT '',
			max_spend_per_trade REAL NOT NULL DEFAULT 100,
			min_balance_required REAL NOT NULL DEFAULT 100,
			sell_probability REAL NOT NULL DEFAULT 0.25,
			interval_seconds INTEGER NOT NULL DEFAULT 60,
			last_run INTEGER NOT NULL DEFAULT 0,
			total_runs INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS trading_pairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_config_id INTEGER NOT NULL,
			pair_symbol TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL DEFAULT 0,
			UNIQUE(bot_config_id, pair_symbol)
		);`,
		// Append-only audit trail. The recovery sweep depends on started_at
		// so it is indexed together with status.
		`CREATE TABLE IF NOT EXISTS bot_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_config_id INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			lease_token TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bot_runs_status_started
			ON bot_runs(status, started_at);`,
		`CREATE TABLE IF NOT EXISTS trade_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_run_id INTEGER NOT NULL,
			pair_id INTEGER NOT NULL,
			pair_symbol TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL,
			quantity REAL NOT NULL,
			price REAL NOT NULL,
			total_value REAL NOT NULL,
			order_ref TEXT NOT NULL DEFAULT '',
			executed_at INTEGER NOT NULL
		);`,
		// Lease rows for the store-based run lock, keyed by lock key.
		`CREATE TABLE IF NOT EXISTS run_leases (
			lock_key TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) GetBotConfig(ctx context.Context, id int64) (*models.BotConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, bot_type, status, api_username, api_password,
		       max_spend_per_trade, min_balance_required, sell_probability,
		       interval_seconds, last_run, total_runs, created_at, updated_at
		FROM bot_configs WHERE id = ?`, id)
	return scanBotConfig(row)
}

func (s *sqliteStore) ListActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, bot_type, status, api_username, api_password,
		       max_spend_per_trade, min_balance_required, sell_probability,
		       interval_seconds, last_run, total_runs, created_at, updated_at
		FROM bot_configs WHERE status = ? ORDER BY id`, string(models.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []models.BotConfig
	for rows.Next() {
		cfg, err := scanBotConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *sqliteStore) SaveBotConfig(ctx context.Context, cfg *models.BotConfig) (int64, error) {
	now := time.Now()
	if cfg.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO bot_configs
				(name, bot_type, status, api_username, api_password,
				 max_spend_per_trade, min_balance_required, sell_probability,
				 interval_seconds, last_run, total_runs, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cfg.Name, string(cfg.BotType), string(cfg.Status), cfg.APIUsername, cfg.APIPassword,
			cfg.MaxSpendPerTrade, cfg.MinBalanceRequired, cfg.SellProbability,
			cfg.IntervalSeconds, toMillis(cfg.LastRun), cfg.TotalRuns, toMillis(now), toMillis(now))
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_configs SET
			name = ?, bot_type = ?, status = ?, api_username = ?, api_password = ?,
			max_spend_per_trade = ?, min_balance_required = ?, sell_probability = ?,
			interval_seconds = ?, updated_at = ?
		WHERE id = ?`,
		cfg.Name, string(cfg.BotType), string(cfg.Status), cfg.APIUsername, cfg.APIPassword,
		cfg.MaxSpendPerTrade, cfg.MinBalanceRequired, cfg.SellProbability,
		cfg.IntervalSeconds, toMillis(now), cfg.ID)
	return cfg.ID, err
}

func (s *sqliteStore) TouchBotRunStats(ctx context.Context, id int64, lastRun time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE bot_configs
		SET last_run = ?, total_runs = total_runs + 1, updated_at = ?
		WHERE id = ?`, toMillis(lastRun), toMillis(lastRun), id)
	return err
}

func (s *sqliteStore) ListTradingPairs(ctx context.Context, botConfigID int64) ([]models.TradingPair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_config_id, pair_symbol, enabled, priority
		FROM trading_pairs
		WHERE bot_config_id = ? AND enabled = 1
		ORDER BY priority DESC, id`, botConfigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []models.TradingPair
	for rows.Next() {
		var tp models.TradingPair
		var enabled int
		if err := rows.Scan(&tp.ID, &tp.BotConfigID, &tp.PairSymbol, &enabled, &tp.Priority); err != nil {
			return nil, err
		}
		tp.Enabled = enabled == 1
		pairs = append(pairs, tp)
	}
	return pairs, rows.Err()
}

func (s *sqliteStore) SaveTradingPair(ctx context.Context, tp *models.TradingPair) (int64, error) {
	enabled := 0
	if tp.Enabled {
		enabled = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trading_pairs (bot_config_id, pair_symbol, enabled, priority)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_config_id, pair_symbol)
		DO UPDATE SET enabled = excluded.enabled, priority = excluded.priority`,
		tp.BotConfigID, tp.PairSymbol, enabled, tp.Priority)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) CreateBotRun(ctx context.Context, run *models.BotRun) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_runs (bot_config_id, started_at, ended_at, status, reason, lease_token)
		VALUES (?, ?, 0, ?, '', ?)`,
		run.BotConfigID, toMillis(run.StartedAt), string(models.RunRunning), run.LeaseToken)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) CloseBotRun(ctx context.Context, id int64, status models.RunStatus, reason string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bot_runs SET status = ?, reason = ?, ended_at = ?
		WHERE id = ? AND status = ?`,
		string(status), reason, toMillis(endedAt), id, string(models.RunRunning))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListStaleRuns(ctx context.Context, before time.Time) ([]models.BotRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_config_id, started_at, ended_at, status, reason, lease_token
		FROM bot_runs WHERE status = ? AND started_at < ?`,
		string(models.RunRunning), toMillis(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (s *sqliteStore) ListRecentRuns(ctx context.Context, limit int) ([]models.BotRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_config_id, started_at, ended_at, status, reason, lease_token
		FROM bot_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (s *sqliteStore) AppendTradeLog(ctx context.Context, trade *models.TradeLog) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_logs
			(bot_run_id, pair_id, pair_symbol, side, quantity, price, total_value, order_ref, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.BotRunID, trade.PairID, trade.PairSymbol, string(trade.Side),
		trade.Quantity, trade.Price, trade.TotalValue, trade.OrderRef, toMillis(trade.ExecutedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListRecentTrades(ctx context.Context, limit int) ([]models.TradeLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_run_id, pair_id, pair_symbol, side, quantity, price, total_value, order_ref, executed_at
		FROM trade_logs ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.TradeLog
	for rows.Next() {
		var t models.TradeLog
		var side string
		var executedAt int64
		if err := rows.Scan(&t.ID, &t.BotRunID, &t.PairID, &t.PairSymbol, &side,
			&t.Quantity, &t.Price, &t.TotalValue, &t.OrderRef, &executedAt); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.ExecutedAt = fromMillis(executedAt)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *sqliteStore) CountTradesForRun(ctx context.Context, runID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trade_logs WHERE bot_run_id = ?`, runID).Scan(&count)
	return count, err
}

// AcquireLease inserts a lease row, or takes over an existing one only if it
// has expired. The conditional upsert is atomic within SQLite, which gives the
// mutual-exclusion guarantee for the store-based lock.
func (s *sqliteStore) AcquireLease(ctx context.Context, key, token string, ttl time.Duration, now time.Time) (bool, error) {
	expires := toMillis(now.Add(ttl))
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_leases (lock_key, token, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at
		WHERE run_leases.expires_at < ?`,
		key, token, expires, toMillis(now))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReleaseLease deletes the lease row only when the caller still holds it.
// Releasing an expired or stolen lease is a no-op, never an error.
func (s *sqliteStore) ReleaseLease(ctx context.Context, key, token string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM run_leases WHERE lock_key = ? AND token = ?`, key, token)
	return err
}

func (s *sqliteStore) ExtendLease(ctx context.Context, key, token string, ttl time.Duration, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE run_leases SET expires_at = ? WHERE lock_key = ? AND token = ?`,
		toMillis(now.Add(ttl)), key, token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBotConfig(row rowScanner) (*models.BotConfig, error) {
	var cfg models.BotConfig
	var botType, status string
	var lastRun, createdAt, updatedAt int64
	err := row.Scan(&cfg.ID, &cfg.Name, &botType, &status, &cfg.APIUsername, &cfg.APIPassword,
		&cfg.MaxSpendPerTrade, &cfg.MinBalanceRequired, &cfg.SellProbability,
		&cfg.IntervalSeconds, &lastRun, &cfg.TotalRuns, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg.BotType = models.BotType(botType)
	cfg.Status = models.BotStatus(status)
	cfg.LastRun = fromMillis(lastRun)
	cfg.CreatedAt = fromMillis(createdAt)
	cfg.UpdatedAt = fromMillis(updatedAt)
	return &cfg, nil
}

func collectRuns(rows *sql.Rows) ([]models.BotRun, error) {
	var runs []models.BotRun
	for rows.Next() {
		var r models.BotRun
		var status string
		var startedAt, endedAt int64
		if err := rows.Scan(&r.ID, &r.BotConfigID, &startedAt, &endedAt, &status, &r.Reason, &r.LeaseToken); err != nil {
			return nil, err
		}
		r.Status = models.RunStatus(status)
		r.StartedAt = fromMillis(startedAt)
		r.EndedAt = fromMillis(endedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
