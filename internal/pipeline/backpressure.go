package pipeline

import (
	"math"
	"sync"
	"time"

	"alyx/internal/common"

	"go.uber.org/zap"
)

// 无吞吐量数据时的队列排空估计
const fallbackDrainEstimate = 5 * time.Second

// ThroughputProvider 当前吞吐量（事件/秒）来源
type ThroughputProvider func() float64

// BackpressureMonitor 背压监控器：跟踪队列占用、CPU 与内存三个压力信号，
// 计算准入延迟。阈值为配置常量，不按调用协商。
type BackpressureMonitor struct {
	mu            sync.RWMutex
	queueSize     int
	queueCapacity int
	cpu           float64
	memory        float64

	thresholds common.BackpressureConfig
	throughput ThroughputProvider
	logger     *zap.Logger
}

// NewBackpressureMonitor 创建背压监控器
func NewBackpressureMonitor(queueCapacity int, thresholds common.BackpressureConfig) *BackpressureMonitor {
	return &BackpressureMonitor{
		queueCapacity: queueCapacity,
		thresholds:    thresholds,
		logger:        common.ComponentLogger("backpressure"),
	}
}

// SetThroughputProvider 注入吞吐量来源
func (bm *BackpressureMonitor) SetThroughputProvider(provider ThroughputProvider) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.throughput = provider
}

// SetQueueSize 更新当前队列深度
func (bm *BackpressureMonitor) SetQueueSize(size int) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.queueSize = size
}

// SetSystemUtilization 更新系统 CPU 与内存利用率
func (bm *BackpressureMonitor) SetSystemUtilization(cpu, memory float64) error {
	if err := common.ValidateUtilization("cpu_utilization", cpu); err != nil {
		return err
	}
	if err := common.ValidateUtilization("memory_utilization", memory); err != nil {
		return err
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.cpu = cpu
	bm.memory = memory
	return nil
}

// occupancyLocked 队列占用率
func (bm *BackpressureMonitor) occupancyLocked() float64 {
	if bm.queueCapacity <= 0 {
		return 0
	}
	return float64(bm.queueSize) / float64(bm.queueCapacity)
}

// ShouldApply 任一信号越过阈值即触发背压
func (bm *BackpressureMonitor) ShouldApply() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	return bm.occupancyLocked() > bm.thresholds.QueueThreshold ||
		bm.cpu > bm.thresholds.CPUThreshold ||
		bm.memory > bm.thresholds.MemoryThreshold
}

// Delay 准入延迟。无背压为 0；否则取三个归一化压力的最大值 p，
// 返回 round(100^p) 毫秒。函数刻意取凸形，严重过载受到不成比例的惩罚。
func (bm *BackpressureMonitor) Delay() time.Duration {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	occupancy := bm.occupancyLocked()
	if occupancy <= bm.thresholds.QueueThreshold &&
		bm.cpu <= bm.thresholds.CPUThreshold &&
		bm.memory <= bm.thresholds.MemoryThreshold {
		return 0
	}

	queuePressure := math.Min(1, occupancy)
	cpuPressure := math.Max(0, (bm.cpu-bm.thresholds.CPUThreshold)/(1-bm.thresholds.CPUThreshold))
	memoryPressure := math.Max(0, (bm.memory-bm.thresholds.MemoryThreshold)/(1-bm.thresholds.MemoryThreshold))

	p := math.Max(queuePressure, math.Max(cpuPressure, memoryPressure))
	delayMs := math.Round(math.Pow(100, p))

	return time.Duration(delayMs) * time.Millisecond
}

// EstimateProcessingDelay 估计队列排空耗时，供调用方参考的延迟信息，
// 与准入延迟相互独立
func (bm *BackpressureMonitor) EstimateProcessingDelay() time.Duration {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	if bm.queueSize == 0 {
		return 0
	}

	var throughput float64
	if bm.throughput != nil {
		throughput = bm.throughput()
	}
	if throughput <= 0 {
		return fallbackDrainEstimate
	}

	seconds := float64(bm.queueSize) / throughput
	return time.Duration(seconds * float64(time.Second))
}

// Snapshot 当前压力读数
func (bm *BackpressureMonitor) Snapshot() map[string]interface{} {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	return map[string]interface{}{
		"queue_size":         bm.queueSize,
		"queue_capacity":     bm.queueCapacity,
		"queue_occupancy":    bm.occupancyLocked(),
		"cpu_utilization":    bm.cpu,
		"memory_utilization": bm.memory,
	}
}
