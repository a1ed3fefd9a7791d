package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"tnb-trading-bot-go/internal/models"
)

var sugaredLogger *zap.SugaredLogger

// InitLogger 按配置初始化全局日志记录器。
// 文件输出走 JSON 编码方便采集, 控制台输出保留带颜色的可读格式。
func InitLogger(cfg models.LogConfig) {
	core := zapcore.NewTee(buildCores(cfg, parseLevel(cfg.Level))...)
	sugaredLogger = zap.New(core, zap.AddCaller()).Sugar()
}

// S 返回全局的sugared logger实例
func S() *zap.SugaredLogger {
	if sugaredLogger == nil {
		// logger未初始化时提供一个应急logger
		fallback, _ := zap.NewDevelopment()
		return fallback.Sugar()
	}
	return sugaredLogger
}

// Named 返回带组件名标签的logger, 用于区分各子系统的日志
func Named(name string) *zap.SugaredLogger {
	return S().Named(name)
}

// parseLevel 解析日志级别, 无法识别时回退到 Info
func parseLevel(text string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(text)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

// buildCores 根据输出模式组装日志 core 列表。
// 模式不合法时至少保证有控制台输出。
func buildCores(cfg models.LogConfig, level zap.AtomicLevel) []zapcore.Core {
	var cores []zapcore.Core
	output := strings.ToLower(cfg.Output)

	if output == "file" || output == "both" {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		// lumberjack负责日志文件的切割和清理
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	if output == "console" || output == "both" || len(cores) == 0 {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level))
	}
	return cores
}
