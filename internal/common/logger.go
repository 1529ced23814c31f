package common

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey int

const loggerContextKey contextKey = iota

var root *zap.Logger

// InitLogger 初始化全局日志系统，development 控制输出格式，
// LOG_LEVEL 环境变量可覆盖日志级别
func InitLogger(development bool) error {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(level)); err == nil {
			config.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	built, err := config.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}

	root = built
	return nil
}

// GetLogger 获取全局日志记录器，未初始化时回退到开发配置
func GetLogger() *zap.Logger {
	if root == nil {
		root, _ = zap.NewDevelopment()
	}
	return root
}

// ComponentLogger 创建带组件标签的日志记录器
func ComponentLogger(component string) *zap.Logger {
	return GetLogger().With(zap.String("component", component))
}

// ContextWithLogger 将请求范围的日志记录器放入上下文
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, l)
}

// LoggerFromContext 取出上下文中的日志记录器，缺失时回退到全局记录器
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok {
		return l
	}
	return GetLogger()
}

// Sync 冲刷日志缓冲
func Sync() {
	if root != nil {
		_ = root.Sync()
	}
}
