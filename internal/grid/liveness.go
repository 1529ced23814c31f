package grid

import (
	"context"
	"time"

	"alyx/internal/common"

	"go.uber.org/zap"
)

// LivenessMonitor 周期性心跳过期检查器。
// 仅将过期资源标记为离线供后续调度规避，不注销资源，也不强制终止其作业。
type LivenessMonitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewLivenessMonitor 创建存活监控器
func NewLivenessMonitor(registry *Registry, interval, timeout time.Duration) *LivenessMonitor {
	return &LivenessMonitor{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   common.ComponentLogger("liveness-monitor"),
	}
}

// Run 启动检查循环，直到 ctx 取消
func (lm *LivenessMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()

	lm.logger.Info("Liveness monitor started",
		zap.Duration("interval", lm.interval),
		zap.Duration("timeout", lm.timeout))

	for {
		select {
		case <-ticker.C:
			lm.checkOnce(time.Now())
		case <-ctx.Done():
			lm.logger.Info("Liveness monitor stopped")
			return ctx.Err()
		}
	}
}

// checkOnce 执行一轮过期检查
func (lm *LivenessMonitor) checkOnce(now time.Time) int {
	deadline := now.Add(-lm.timeout)
	demoted := 0

	for _, id := range lm.registry.staleResources(deadline) {
		if lm.registry.markOffline(id) {
			demoted++
			lm.logger.Warn("Resource heartbeat expired, marked offline",
				zap.String("resource_id", id),
				zap.Duration("timeout", lm.timeout))
		}
	}

	if demoted > 0 {
		lm.logger.Info("Liveness pass demoted resources", zap.Int("count", demoted))
	}

	return demoted
}
