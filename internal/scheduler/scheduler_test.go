package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/coordinator"
	"tnb-trading-bot-go/internal/models"
)

// mockLister returns a canned list of active bots.
type mockLister struct {
	sync.Mutex
	bots []models.BotConfig
	err  error
}

func (m *mockLister) ListActiveBotConfigs(_ context.Context) ([]models.BotConfig, error) {
	m.Lock()
	defer m.Unlock()
	return m.bots, m.err
}

// mockRunner records triggered bot ids.
type mockRunner struct {
	sync.Mutex
	triggered    []int64
	triggerErr   error
	panicOn      int64
	reconciles   int
	reconcileErr error
}

func (m *mockRunner) TriggerRun(_ context.Context, botID int64) (*coordinator.RunHandle, error) {
	m.Lock()
	m.triggered = append(m.triggered, botID)
	panics := m.panicOn != 0 && botID == m.panicOn
	m.Unlock()
	if panics {
		panic("run blew up")
	}
	m.Lock()
	defer m.Unlock()
	if m.triggerErr != nil {
		return nil, m.triggerErr
	}
	return &coordinator.RunHandle{BotID: botID, Status: models.RunSuccess}, nil
}

func (m *mockRunner) ReconcileExpired(_ context.Context) error {
	m.Lock()
	defer m.Unlock()
	m.reconciles++
	return m.reconcileErr
}

func (m *mockRunner) triggeredIDs() []int64 {
	m.Lock()
	defer m.Unlock()
	return append([]int64(nil), m.triggered...)
}

func newTestScheduler(st botLister, coord triggerRunner, now time.Time) *Scheduler {
	s := New(st, coord, time.Second, zap.NewNop().Sugar())
	s.now = func() time.Time { return now }
	return s
}

// TestTickTriggersDueBots verifies only due bots are triggered.
func TestTickTriggersDueBots(t *testing.T) {
	now := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	lister := &mockLister{bots: []models.BotConfig{
		{ID: 1, Name: "never-ran", IntervalSeconds: 60},
		{ID: 2, Name: "due", IntervalSeconds: 60, LastRun: now.Add(-2 * time.Minute)},
		{ID: 3, Name: "recent", IntervalSeconds: 60, LastRun: now.Add(-10 * time.Second)},
		{ID: 4, Name: "exactly-due", IntervalSeconds: 60, LastRun: now.Add(-60 * time.Second)},
	}}
	runner := &mockRunner{}
	s := newTestScheduler(lister, runner, now)

	s.tickOnce(context.Background())
	s.wg.Wait()

	ids := runner.triggeredIDs()
	assert.ElementsMatch(t, []int64{1, 2, 4}, ids, "zero last_run and elapsed intervals are due")
	assert.Equal(t, 1, runner.reconciles, "each tick reconciles expired runs first")
}

// TestTickAbandonedOnListFailure verifies an enumeration failure skips the whole tick.
func TestTickAbandonedOnListFailure(t *testing.T) {
	lister := &mockLister{err: errors.New("db gone")}
	runner := &mockRunner{}
	s := newTestScheduler(lister, runner, time.Now())

	s.tickOnce(context.Background())
	s.wg.Wait()

	assert.Empty(t, runner.triggeredIDs(), "no bot may run on a failed enumeration")
}

// TestTickSwallowsBusy verifies a busy bot does not disturb the tick.
func TestTickSwallowsBusy(t *testing.T) {
	now := time.Now()
	lister := &mockLister{bots: []models.BotConfig{
		{ID: 1, Name: "busy-bot", IntervalSeconds: 60},
		{ID: 2, Name: "other", IntervalSeconds: 60},
	}}
	runner := &mockRunner{triggerErr: coordinator.ErrBusy}
	s := newTestScheduler(lister, runner, now)

	// must not panic or error out
	s.tickOnce(context.Background())
	s.wg.Wait()

	assert.Len(t, runner.triggeredIDs(), 2, "both bots are still attempted")
}

// TestTickIsolation verifies one bot's failure does not block others.
func TestTickIsolation(t *testing.T) {
	now := time.Now()
	lister := &mockLister{bots: []models.BotConfig{
		{ID: 1, Name: "a", IntervalSeconds: 60},
		{ID: 2, Name: "b", IntervalSeconds: 60},
		{ID: 3, Name: "c", IntervalSeconds: 60},
	}}
	runner := &mockRunner{triggerErr: errors.New("exchange exploded")}
	s := newTestScheduler(lister, runner, now)

	s.tickOnce(context.Background())
	s.wg.Wait()

	assert.Len(t, runner.triggeredIDs(), 3)
}

// TestTickContainsPanic verifies a panicking run is contained to its own
// goroutine and the remaining bots still complete the tick.
func TestTickContainsPanic(t *testing.T) {
	now := time.Now()
	lister := &mockLister{bots: []models.BotConfig{
		{ID: 1, Name: "a", IntervalSeconds: 60},
		{ID: 2, Name: "crashy", IntervalSeconds: 60},
		{ID: 3, Name: "c", IntervalSeconds: 60},
	}}
	runner := &mockRunner{panicOn: 2}
	s := newTestScheduler(lister, runner, now)

	s.tickOnce(context.Background())
	s.wg.Wait()

	assert.ElementsMatch(t, []int64{1, 2, 3}, runner.triggeredIDs(),
		"a panic in one bot's run must not stop the others")
}

// TestStartStop verifies the scheduler loop starts, ticks and stops cleanly.
func TestStartStop(t *testing.T) {
	lister := &mockLister{bots: []models.BotConfig{{ID: 1, Name: "a", IntervalSeconds: 1}}}
	runner := &mockRunner{}

	s := New(lister, runner, 20*time.Millisecond, zap.NewNop().Sugar())
	s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	assert.NotEmpty(t, runner.triggeredIDs(), "at least one tick should have fired")
}
