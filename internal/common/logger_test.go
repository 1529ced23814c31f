package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerContextRoundTrip(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	attached := zap.New(core).With(zap.String("request_id", "req-1"))

	ctx := ContextWithLogger(context.Background(), attached)

	// 上下文中取出的是放进去的那一个
	LoggerFromContext(ctx).Debug("handled")

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "handled", entries[0].Message)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestLoggerFromContextFallsBack(t *testing.T) {
	// 未附加日志记录器时回退到全局记录器而不是 nil
	assert.NotNil(t, LoggerFromContext(context.Background()))
	assert.Equal(t, GetLogger(), LoggerFromContext(context.Background()))
}

func TestComponentLoggerNotNil(t *testing.T) {
	assert.NotNil(t, ComponentLogger("test-component"))
}
