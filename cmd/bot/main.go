package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tnb-trading-bot-go/internal/config"
	"tnb-trading-bot-go/internal/coordinator"
	"tnb-trading-bot-go/internal/executor"
	"tnb-trading-bot-go/internal/gateway"
	"tnb-trading-bot-go/internal/logger"
	"tnb-trading-bot-go/internal/models"
	"tnb-trading-bot-go/internal/paircache"
	"tnb-trading-bot-go/internal/reporter"
	"tnb-trading-bot-go/internal/runlock"
	"tnb-trading-bot-go/internal/scheduler"
	"tnb-trading-bot-go/internal/store"
	"tnb-trading-bot-go/internal/strategy"
)

func main() {
	// --- 命令行参数定义 ---
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "run", "running mode: run, trigger, report or seed")
	botID := flag.Int64("bot", 0, "bot id for trigger mode")
	limit := flag.Int("limit", 20, "row limit for report mode")
	flag.Parse()

	// 在加载配置前先用默认配置初始化日志
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	}

	// --- 加载 JSON 配置 ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("打开数据库失败: %v", err)
	}
	defer st.Close()

	switch *mode {
	case "run":
		runDaemon(cfg, st)
	case "trigger":
		runTrigger(cfg, st, *botID)
	case "report":
		runReport(st, *limit)
	case "seed":
		runSeed(st)
	default:
		logger.S().Fatalf("未知的运行模式: %s。请选择 run、trigger、report 或 seed。", *mode)
	}
}

// buildCoordinator 组装一次运行所需的全部组件
func buildCoordinator(cfg *models.Config, st store.Store, pairs *paircache.Cache) (*coordinator.Coordinator, runlock.Locker, error) {
	locker, err := runlock.New(&cfg.Lock, st)
	if err != nil {
		return nil, nil, err
	}

	exec := executor.New(
		st,
		cfg.RetryAttempts,
		time.Duration(cfg.RetryInitialDelayMs)*time.Millisecond,
		logger.Named("executor"),
	)

	var predictor strategy.Predictor
	if cfg.PredictorURL != "" {
		predictor = strategy.NewHTTPPredictor(cfg.PredictorURL)
	}
	strategyFactory := func(bot *models.BotConfig) (strategy.Strategy, error) {
		return strategy.New(bot.BotType, strategy.Options{
			Rules:     cfg.Rules,
			Predictor: predictor,
			Logger:    logger.Named("strategy"),
		})
	}

	gatewayFactory := func(ctx context.Context, bot *models.BotConfig) (gateway.Gateway, error) {
		var gw gateway.Gateway
		if cfg.Exchange == "binance" {
			gw = gateway.NewBinanceGateway(bot.APIUsername, bot.APIPassword, logger.Named("gateway"))
		} else {
			gw = gateway.NewTNBGateway(cfg.APIBaseURL, logger.Named("gateway"))
		}
		if err := gw.Login(ctx, bot.APIUsername, bot.APIPassword); err != nil {
			return nil, err
		}
		return gw, nil
	}

	coord := coordinator.New(coordinator.Options{
		Store:           st,
		Locker:          locker,
		Pairs:           pairs,
		Executor:        exec,
		GatewayFactory:  gatewayFactory,
		StrategyFactory: strategyFactory,
		QuoteTicker:     cfg.QuoteTicker,
		LeaseTTL:        time.Duration(cfg.LeaseSeconds) * time.Second,
		Logger:          logger.Named("coordinator"),
	})
	return coord, locker, nil
}

// buildPairCache 创建交易对缓存, 用一个无凭证的网关做行情拉取
func buildPairCache(cfg *models.Config) (*paircache.Cache, error) {
	var fetcher paircache.PairFetcher
	if cfg.Exchange == "binance" {
		fetcher = gateway.NewBinanceGateway(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"), logger.Named("gateway"))
	} else {
		fetcher = gateway.NewTNBGateway(cfg.APIBaseURL, logger.Named("gateway"))
	}

	repo, err := paircache.NewBadgerRepository(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	return paircache.NewCache(
		fetcher,
		repo,
		time.Duration(cfg.PairRefreshSeconds)*time.Second,
		logger.Named("paircache"),
	), nil
}

// runDaemon 启动调度守护进程
func runDaemon(cfg *models.Config, st store.Store) {
	logger.S().Info("--- 启动交易 bot 守护进程 ---")
	ctx := context.Background()

	pairs, err := buildPairCache(cfg)
	if err != nil {
		logger.S().Fatalf("初始化交易对缓存失败: %v", err)
	}
	pairs.Start(ctx)
	defer pairs.Stop()

	// 可选的行情推送, 补充周期刷新之间的价格
	var stream *gateway.PriceStream
	if cfg.WSBaseURL != "" {
		stream = gateway.NewPriceStream(cfg.WSBaseURL, logger.Named("stream"), pairs.UpdatePrice)
		stream.Start()
		defer stream.Stop()
	}

	coord, locker, err := buildCoordinator(cfg, st, pairs)
	if err != nil {
		logger.S().Fatalf("初始化协调器失败: %v", err)
	}
	defer locker.Close()

	sched := scheduler.New(st, coord, time.Duration(cfg.TickSeconds)*time.Second, logger.Named("scheduler"))
	sched.Start(ctx)

	// 等待中断信号以实现优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.S().Info("收到退出信号, 等待进行中的运行结束...")
	sched.Stop()
	logger.S().Info("守护进程已成功停止。")
}

// runTrigger 手动触发一个 bot 立即运行一次
func runTrigger(cfg *models.Config, st store.Store, botID int64) {
	if botID <= 0 {
		logger.S().Fatal("trigger 模式需要 -bot 参数指定 bot id")
	}
	ctx := context.Background()

	pairs, err := buildPairCache(cfg)
	if err != nil {
		logger.S().Fatalf("初始化交易对缓存失败: %v", err)
	}
	if err := pairs.Refresh(ctx); err != nil {
		logger.S().Fatalf("刷新交易对失败: %v", err)
	}

	coord, locker, err := buildCoordinator(cfg, st, pairs)
	if err != nil {
		logger.S().Fatalf("初始化协调器失败: %v", err)
	}
	defer locker.Close()

	handle, err := coord.TriggerRun(ctx, botID)
	if err != nil {
		logger.S().Fatalf("触发运行失败: %v", err)
	}
	logger.S().Infof("运行 %s 已结束: %s (%s)", handle.Token, handle.Status, handle.Reason)
}

// runReport 打印最近的运行与成交报表
func runReport(st store.Store, limit int) {
	rep := reporter.New(st, os.Stdout)
	if err := rep.PrintReport(context.Background(), limit); err != nil {
		logger.S().Fatalf("生成报表失败: %v", err)
	}
}

// runSeed 写入一个示例 bot 配置, 方便本地起步
func runSeed(st store.Store) {
	ctx := context.Background()
	now := time.Now()

	bot := &models.BotConfig{
		Name:               "randy",
		BotType:            models.BotTypeRandom,
		Status:             models.StatusActive,
		APIUsername:        os.Getenv("TNB_USERNAME"),
		APIPassword:        os.Getenv("TNB_PASSWORD"),
		MaxSpendPerTrade:   100,
		MinBalanceRequired: 10,
		SellProbability:    0.5,
		IntervalSeconds:    60,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	id, err := st.SaveBotConfig(ctx, bot)
	if err != nil {
		logger.S().Fatalf("写入示例 bot 失败: %v", err)
	}

	for i, symbol := range []string{"VTX/TNB", "LKE/TNB"} {
		_, err := st.SaveTradingPair(ctx, &models.TradingPair{
			BotConfigID: id,
			PairSymbol:  symbol,
			Enabled:     true,
			Priority:    10 - i,
		})
		if err != nil {
			logger.S().Fatalf("写入交易对失败: %v", err)
		}
	}
	logger.S().Infof("示例 bot 已创建, id=%d", id)
}
