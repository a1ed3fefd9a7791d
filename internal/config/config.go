package config

import (
	"encoding/json"
	"fmt"
	"os"

	"tnb-trading-bot-go/internal/models"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中，
// 随后填充默认值并做基础校验。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	applyDefaults(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyDefaults 为缺省字段填充保守的默认值
func applyDefaults(cfg *models.Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "tnbbot.db"
	}
	if cfg.CachePath == "" {
		cfg.CachePath = "paircache"
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "tnb"
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://thenewboston.network/api"
	}
	if cfg.QuoteTicker == "" {
		cfg.QuoteTicker = "TNB"
	}
	if cfg.TickSeconds <= 0 {
		cfg.TickSeconds = 5
	}
	if cfg.PairRefreshSeconds <= 0 {
		cfg.PairRefreshSeconds = 300
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 120
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryInitialDelayMs <= 0 {
		cfg.RetryInitialDelayMs = 500
	}
	if cfg.Lock.Type == "" {
		cfg.Lock.Type = "store"
	}
	if cfg.Lock.Prefix == "" {
		cfg.Lock.Prefix = "tnbbot:run:"
	}
	if cfg.Rules.ShortWindow <= 0 {
		cfg.Rules.ShortWindow = 5
	}
	if cfg.Rules.TrendThreshold <= 0 {
		cfg.Rules.TrendThreshold = 2.0
	}
	if cfg.Rules.SpreadThreshold <= 0 {
		cfg.Rules.SpreadThreshold = 5.0
	}
}

// validate 检查配置之间的约束关系
func validate(cfg *models.Config) error {
	switch cfg.Exchange {
	case "tnb", "binance":
	default:
		return fmt.Errorf("unknown exchange type: %s", cfg.Exchange)
	}

	switch cfg.Lock.Type {
	case "redis", "store", "memory":
	default:
		return fmt.Errorf("unknown lock type: %s", cfg.Lock.Type)
	}

	// 租约必须能覆盖一次完整的重试序列, 否则运行中的 bot 可能被并发触发
	retryBudgetMs := cfg.RetryInitialDelayMs * (1<<cfg.RetryAttempts - 1)
	if cfg.LeaseSeconds*1000 <= retryBudgetMs {
		return fmt.Errorf("lease_seconds (%d) must exceed the worst-case retry budget (%dms)",
			cfg.LeaseSeconds, retryBudgetMs)
	}

	return nil
}
