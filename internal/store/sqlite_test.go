package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tnb-trading-bot-go/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "opening the test database should succeed")
	t.Cleanup(func() { st.Close() })
	return st
}

func seedBot(t *testing.T, st Store) int64 {
	t.Helper()
	id, err := st.SaveBotConfig(context.Background(), &models.BotConfig{
		Name:               "randy",
		BotType:            models.BotTypeRandom,
		Status:             models.StatusActive,
		MaxSpendPerTrade:   100,
		MinBalanceRequired: 10,
		SellProbability:    0.5,
		IntervalSeconds:    60,
	})
	require.NoError(t, err)
	return id
}

// TestBotConfigRoundTrip verifies insert, read back and update.
func TestBotConfigRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedBot(t, st)

	cfg, err := st.GetBotConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "randy", cfg.Name)
	assert.Equal(t, models.BotTypeRandom, cfg.BotType)
	assert.True(t, cfg.LastRun.IsZero(), "a new bot has never run")

	cfg.Status = models.StatusPaused
	_, err = st.SaveBotConfig(ctx, cfg)
	require.NoError(t, err)

	updated, err := st.GetBotConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, updated.Status)
}

// TestGetBotConfigNotFound verifies the sentinel error for unknown ids.
func TestGetBotConfigNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetBotConfig(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestListActiveBotConfigs verifies only active bots are returned.
func TestListActiveBotConfigs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedBot(t, st)

	_, err := st.SaveBotConfig(ctx, &models.BotConfig{
		Name: "sleeper", BotType: models.BotTypeRule, Status: models.StatusPaused,
		SellProbability: 0.5, IntervalSeconds: 60,
	})
	require.NoError(t, err)

	active, err := st.ListActiveBotConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "randy", active[0].Name)
}

// TestTouchBotRunStats verifies last_run and total_runs bookkeeping.
func TestTouchBotRunStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedBot(t, st)

	ts := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.TouchBotRunStats(ctx, id, ts))
	require.NoError(t, st.TouchBotRunStats(ctx, id, ts.Add(time.Minute)))

	cfg, err := st.GetBotConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.TotalRuns)
	assert.Equal(t, ts.Add(time.Minute).UnixMilli(), cfg.LastRun.UnixMilli())
}

// TestTradingPairsOrdering verifies enabled filtering and priority order.
func TestTradingPairsOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedBot(t, st)

	for _, tp := range []models.TradingPair{
		{BotConfigID: id, PairSymbol: "VTX/TNB", Enabled: true, Priority: 1},
		{BotConfigID: id, PairSymbol: "LKE/TNB", Enabled: true, Priority: 9},
		{BotConfigID: id, PairSymbol: "BAT/TNB", Enabled: false, Priority: 5},
	} {
		tp := tp
		_, err := st.SaveTradingPair(ctx, &tp)
		require.NoError(t, err)
	}

	pairs, err := st.ListTradingPairs(ctx, id)
	require.NoError(t, err)
	require.Len(t, pairs, 2, "disabled pairs are filtered out")
	assert.Equal(t, "LKE/TNB", pairs[0].PairSymbol, "highest priority first")
	assert.Equal(t, "VTX/TNB", pairs[1].PairSymbol)
}

// TestBotRunLifecycle verifies create, close and the closed-is-immutable rule.
func TestBotRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedBot(t, st)

	started := time.Now()
	runID, err := st.CreateBotRun(ctx, &models.BotRun{
		BotConfigID: id, StartedAt: started, Status: models.RunRunning, LeaseToken: "tok",
	})
	require.NoError(t, err)

	require.NoError(t, st.CloseBotRun(ctx, runID, models.RunSuccess, "bought", started.Add(time.Second)))

	// a closed run can never be rewritten
	err = st.CloseBotRun(ctx, runID, models.RunFailed, "late", started.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := st.ListRecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunSuccess, runs[0].Status)
	assert.Equal(t, "bought", runs[0].Reason)
	assert.Equal(t, "tok", runs[0].LeaseToken)
}

// TestListStaleRuns verifies only old running rows are returned.
func TestListStaleRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedBot(t, st)
	now := time.Now()

	staleID, err := st.CreateBotRun(ctx, &models.BotRun{BotConfigID: id, StartedAt: now.Add(-10 * time.Minute)})
	require.NoError(t, err)
	_, err = st.CreateBotRun(ctx, &models.BotRun{BotConfigID: id, StartedAt: now})
	require.NoError(t, err)
	closedID, err := st.CreateBotRun(ctx, &models.BotRun{BotConfigID: id, StartedAt: now.Add(-10 * time.Minute)})
	require.NoError(t, err)
	require.NoError(t, st.CloseBotRun(ctx, closedID, models.RunFailed, "x", now))

	stale, err := st.ListStaleRuns(ctx, now.Add(-2*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, staleID, stale[0].ID)
}

// TestTradeLogs verifies append and retrieval of the trade audit trail.
func TestTradeLogs(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	id := seedBot(t, st)

	runID, err := st.CreateBotRun(ctx, &models.BotRun{BotConfigID: id, StartedAt: time.Now()})
	require.NoError(t, err)

	_, err = st.AppendTradeLog(ctx, &models.TradeLog{
		BotRunID: runID, PairID: 7, PairSymbol: "VTX/TNB", Side: models.Buy,
		Quantity: 20, Price: 2, TotalValue: 40, OrderRef: "order-1", ExecutedAt: time.Now(),
	})
	require.NoError(t, err)

	trades, err := st.ListRecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.Buy, trades[0].Side)
	assert.Equal(t, 40.0, trades[0].TotalValue)

	count, err := st.CountTradesForRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestLeaseSemantics verifies the conditional-upsert lock row behavior.
func TestLeaseSemantics(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)

	ok, err := st.AcquireLease(ctx, "bot:1", "tok-a", time.Minute, now)
	require.NoError(t, err)
	require.True(t, ok)

	// a live lease cannot be stolen
	ok, err = st.AcquireLease(ctx, "bot:1", "tok-b", time.Minute, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	// an expired lease can be taken over
	ok, err = st.AcquireLease(ctx, "bot:1", "tok-c", time.Minute, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// the old holder's release must not remove the new lease
	require.NoError(t, st.ReleaseLease(ctx, "bot:1", "tok-a"))
	ok, err = st.AcquireLease(ctx, "bot:1", "tok-d", time.Minute, now.Add(2*time.Minute+time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "tok-c's lease must survive tok-a's release")

	// the current holder can extend and then release
	require.NoError(t, st.ExtendLease(ctx, "bot:1", "tok-c", time.Hour, now.Add(2*time.Minute)))
	require.NoError(t, st.ReleaseLease(ctx, "bot:1", "tok-c"))
	ok, err = st.AcquireLease(ctx, "bot:1", "tok-e", time.Minute, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// extending a lease we do not hold fails
	err = st.ExtendLease(ctx, "bot:1", "tok-z", time.Minute, now.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)
}
