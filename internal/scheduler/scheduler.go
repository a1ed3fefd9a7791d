package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tnb-trading-bot-go/internal/coordinator"
	"tnb-trading-bot-go/internal/models"
)

// botLister 是调度器对存储的最小依赖
type botLister interface {
	ListActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error)
}

// triggerRunner 抽象出协调器, 测试时可替换
type triggerRunner interface {
	TriggerRun(ctx context.Context, botID int64) (*coordinator.RunHandle, error)
	ReconcileExpired(ctx context.Context) error
}

// Scheduler 以固定的全局 tick 驱动所有 bot。
// 每个 tick 重新从存储读取活跃配置, 外部对配置的修改最迟下一个 tick 生效。
// 到期的 bot 各自在独立的 goroutine 里触发, 一个 bot 的故障不影响其他 bot。
type Scheduler struct {
	st     botLister
	coord  triggerRunner
	tick   time.Duration
	logger *zap.SugaredLogger

	now func() time.Time

	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// New 创建调度器
func New(st botLister, coord triggerRunner, tick time.Duration, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		st:          st,
		coord:       coord,
		tick:        tick,
		logger:      logger,
		now:         time.Now,
		stopChannel: make(chan struct{}),
	}
}

// Start 启动调度循环
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Infof("调度器已启动, tick 间隔 %v", s.tick)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChannel:
				s.logger.Info("调度器已停止")
				return
			case <-ticker.C:
				s.tickOnce(ctx)
			}
		}
	}()
}

// Stop 停止调度循环并等待已触发的运行各自结束
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChannel) })
	s.wg.Wait()
}

// tickOnce 执行一个调度周期。
// 配置枚举失败时放弃整个 tick, 宁可少跑一轮也不用过期的配置跑。
func (s *Scheduler) tickOnce(ctx context.Context) {
	if err := s.coord.ReconcileExpired(ctx); err != nil {
		s.logger.Warnf("清理过期运行失败: %v", err)
	}

	bots, err := s.st.ListActiveBotConfigs(ctx)
	if err != nil {
		s.logger.Errorf("枚举活跃 bot 失败, 放弃本次 tick: %v", err)
		return
	}

	now := s.now()
	for _, bot := range bots {
		if !s.due(&bot, now) {
			continue
		}
		botID := bot.ID
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger(ctx, botID)
		}()
	}
}

// due 判断一个 bot 是否到了下一次运行时间
func (s *Scheduler) due(bot *models.BotConfig, now time.Time) bool {
	if bot.LastRun.IsZero() {
		return true
	}
	return now.Sub(bot.LastRun) >= time.Duration(bot.IntervalSeconds)*time.Second
}

// trigger 触发一次运行并消化所有预期内的错误。
// 兜底的 recover 保证单个 bot 的崩溃不会带垮整个调度进程。
func (s *Scheduler) trigger(ctx context.Context, botID int64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("bot %d 的触发发生 panic: %v", botID, r)
		}
	}()

	_, err := s.coord.TriggerRun(ctx, botID)
	switch {
	case err == nil:
	case errors.Is(err, coordinator.ErrBusy):
		// 上一次运行还没结束, 静默跳过
		s.logger.Debugf("bot %d 仍在运行中, 跳过本次触发", botID)
	case errors.Is(err, coordinator.ErrNotActive):
		s.logger.Debugf("bot %d 已不再活跃, 跳过", botID)
	default:
		s.logger.Errorf("触发 bot %d 运行失败: %v", botID, err)
	}
}
