package pipeline

import (
	"testing"
	"time"

	"alyx/internal/common"

	"github.com/stretchr/testify/assert"
)

func testThresholds() common.BackpressureConfig {
	return common.BackpressureConfig{
		QueueThreshold:  0.8,
		CPUThreshold:    0.8,
		MemoryThreshold: 0.85,
	}
}

func TestBackpressureNotAppliedBelowThresholds(t *testing.T) {
	monitor := NewBackpressureMonitor(10000, testThresholds())

	monitor.SetQueueSize(8000) // 占用率恰好 0.8，不越过阈值
	assert.NoError(t, monitor.SetSystemUtilization(0.8, 0.85))

	assert.False(t, monitor.ShouldApply())
	assert.Equal(t, time.Duration(0), monitor.Delay())
}

func TestBackpressureAnySignalTriggers(t *testing.T) {
	cases := []struct {
		name      string
		queueSize int
		cpu       float64
		memory    float64
	}{
		{"queue", 9000, 0.1, 0.1},
		{"cpu", 0, 0.9, 0.1},
		{"memory", 0, 0.1, 0.9},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			monitor := NewBackpressureMonitor(10000, testThresholds())
			monitor.SetQueueSize(tc.queueSize)
			assert.NoError(t, monitor.SetSystemUtilization(tc.cpu, tc.memory))

			assert.True(t, monitor.ShouldApply())
			assert.Greater(t, monitor.Delay(), time.Duration(0))
		})
	}
}

func TestBackpressureDelayCurve(t *testing.T) {
	monitor := NewBackpressureMonitor(10000, testThresholds())

	// 占用率 0.9：round(100^0.9) = 63ms
	monitor.SetQueueSize(9000)
	assert.Equal(t, 63*time.Millisecond, monitor.Delay())

	// 满队列：100^1 = 100ms，最大准入延迟
	monitor.SetQueueSize(10000)
	assert.Equal(t, 100*time.Millisecond, monitor.Delay())
}

func TestBackpressureDelayMonotonicInOccupancy(t *testing.T) {
	monitor := NewBackpressureMonitor(10000, testThresholds())

	previous := time.Duration(0)
	for _, size := range []int{8100, 8500, 9000, 9500, 10000} {
		monitor.SetQueueSize(size)
		delay := monitor.Delay()
		assert.GreaterOrEqual(t, delay, previous, "queue size %d", size)
		previous = delay
	}
}

func TestBackpressureCPUPressureNormalized(t *testing.T) {
	monitor := NewBackpressureMonitor(10000, testThresholds())

	// CPU 1.0 把归一化压力推到 1：100ms
	assert.NoError(t, monitor.SetSystemUtilization(1.0, 0.0))
	assert.Equal(t, 100*time.Millisecond, monitor.Delay())

	// CPU 0.9 在 (0.8, 1] 区间的中点：round(100^0.5) = 10ms
	assert.NoError(t, monitor.SetSystemUtilization(0.9, 0.0))
	assert.Equal(t, 10*time.Millisecond, monitor.Delay())
}

func TestBackpressureUtilizationValidation(t *testing.T) {
	monitor := NewBackpressureMonitor(10000, testThresholds())

	assert.ErrorIs(t, monitor.SetSystemUtilization(1.5, 0.5), common.ErrInvalidParameters)
	assert.ErrorIs(t, monitor.SetSystemUtilization(0.5, -0.1), common.ErrInvalidParameters)

	// 非法更新不改变既有读数
	snapshot := monitor.Snapshot()
	assert.Equal(t, 0.0, snapshot["cpu_utilization"])
	assert.Equal(t, 0.0, snapshot["memory_utilization"])
}

func TestEstimateProcessingDelay(t *testing.T) {
	monitor := NewBackpressureMonitor(10000, testThresholds())

	// 空队列无需等待
	assert.Equal(t, time.Duration(0), monitor.EstimateProcessingDelay())

	// 有积压但无吞吐量数据：回退到固定估计
	monitor.SetQueueSize(500)
	assert.Equal(t, fallbackDrainEstimate, monitor.EstimateProcessingDelay())

	// 500 个事件、100 事件/秒 → 5 秒
	monitor.SetThroughputProvider(func() float64 { return 100 })
	assert.Equal(t, 5*time.Second, monitor.EstimateProcessingDelay())

	// 吞吐量为 0 同样回退
	monitor.SetThroughputProvider(func() float64 { return 0 })
	assert.Equal(t, fallbackDrainEstimate, monitor.EstimateProcessingDelay())
}
