package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"alyx/internal/common"
	"alyx/internal/metrics"

	"go.uber.org/zap"
)

// Ack 一次摄取调用的回执
type Ack struct {
	Queued    int   `json:"queued"`
	Inline    int   `json:"inline"`
	Published int64 `json:"published_total"`
}

// ResultCallback 批次结果完成回调
type ResultCallback func(results []Result)

// Stats 管道运行指标快照
type Stats struct {
	PublishedCount    int64   `json:"published_count"`
	ProcessedCount    int64   `json:"processed_count"`
	FailedCount       int64   `json:"failed_count"`
	InlineCount       int64   `json:"inline_count"`
	OverloadCount     int64   `json:"overload_count"`
	QueueDepth        int     `json:"queue_depth"`
	CurrentThroughput int64   `json:"current_throughput"`
	AverageThroughput float64 `json:"average_throughput"`
	AvgProcessingMs   float64 `json:"avg_processing_ms"`
	BackpressureOn    bool    `json:"backpressure_on"`
	AdmissionDelayMs  int64   `json:"admission_delay_ms"`
	EstimatedDrainMs  int64   `json:"estimated_drain_ms"`
}

// Pipeline 事件摄取管道：有界队列 + 背压准入 + 周期性批量排空 + 并发处理。
// 队列满时事件转为同步内联处理并累加过载计数，以延迟换零丢失。
// 计数器都是实例字段，多个管道实例互不影响。
type Pipeline struct {
	queue   chan Event
	monitor *BackpressureMonitor
	tracker *ThroughputTracker
	metrics *metrics.Metrics
	logger  *zap.Logger

	drainInterval      time.Duration
	drainChunkSize     int
	skipDelayThreshold time.Duration

	published    atomic.Int64
	processed    atomic.Int64
	failed       atomic.Int64
	inline       atomic.Int64
	overload     atomic.Int64
	processNanos atomic.Int64

	// mu 保护两个可在运行期间替换的协作点
	mu            sync.RWMutex
	reconstructor Reconstructor
	onResults     ResultCallback
}

// NewPipeline 创建事件摄取管道
func NewPipeline(cfg common.PipelineConfig, monitor *BackpressureMonitor, m *metrics.Metrics) *Pipeline {
	p := &Pipeline{
		queue:              make(chan Event, cfg.QueueCapacity),
		monitor:            monitor,
		tracker:            NewThroughputTracker(),
		reconstructor:      DefaultReconstructor,
		metrics:            m,
		logger:             common.ComponentLogger("event-pipeline"),
		drainInterval:      cfg.DrainInterval,
		drainChunkSize:     cfg.DrainChunkSize,
		skipDelayThreshold: cfg.SkipDelayThreshold,
	}

	monitor.SetThroughputProvider(func() float64 {
		return float64(p.tracker.Current())
	})

	return p
}

// SetReconstructor 替换径迹重建实现
func (p *Pipeline) SetReconstructor(reconstructor Reconstructor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconstructor = reconstructor
}

// SetResultCallback 设置结果完成回调，排队与内联两条路径共用同一投递口
func (p *Pipeline) SetResultCallback(callback ResultCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResults = callback
}

// Ingest 摄取一批事件。背压激活时对每个事件先施加准入延迟；
// 队列满则内联同步处理该事件，不丢数据。
func (p *Pipeline) Ingest(events []Event) Ack {
	ack := Ack{}

	for _, event := range events {
		if p.monitor.ShouldApply() {
			if delay := p.monitor.Delay(); delay > 0 {
				time.Sleep(delay)
			}
		}

		p.published.Add(1)
		if p.metrics != nil {
			p.metrics.EventsPublished.Inc()
		}

		select {
		case p.queue <- event:
			ack.Queued++
			p.monitor.SetQueueSize(len(p.queue))
		default:
			// 过载回退：绕过队列内联处理
			p.overload.Add(1)
			p.inline.Add(1)
			if p.metrics != nil {
				p.metrics.OverloadTotal.Inc()
				p.metrics.EventsInline.Inc()
			}
			p.logger.Warn("Event queue full, processing inline",
				zap.String("event_id", event.ID),
				zap.Int64("overload_count", p.overload.Load()))

			result := p.processOne(context.Background(), event)
			p.finishBatch([]Result{result})
			ack.Inline++
		}
	}

	p.updateQueueGauges()
	ack.Published = p.published.Load()
	return ack
}

// Run 周期性批量排空循环，直到 ctx 取消
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.drainInterval)
	defer ticker.Stop()

	p.logger.Info("Event pipeline started",
		zap.Int("queue_capacity", cap(p.queue)),
		zap.Duration("drain_interval", p.drainInterval),
		zap.Int("drain_chunk_size", p.drainChunkSize))

	for {
		select {
		case <-ticker.C:
			p.drainOnce(ctx)
		case <-ctx.Done():
			p.logger.Info("Event pipeline stopped")
			return ctx.Err()
		}
	}
}

// drainOnce 执行一轮排空。准入延迟超过阈值时跳过本轮，让压力回落。
func (p *Pipeline) drainOnce(ctx context.Context) int {
	if delay := p.monitor.Delay(); delay > p.skipDelayThreshold {
		p.logger.Debug("Drain pass skipped under backpressure",
			zap.Duration("delay", delay))
		return 0
	}

	batch := make([]Event, 0, p.drainChunkSize)
collect:
	for len(batch) < p.drainChunkSize {
		select {
		case event := <-p.queue:
			batch = append(batch, event)
		default:
			break collect
		}
	}

	p.updateQueueGauges()

	if len(batch) == 0 {
		return 0
	}

	p.ProcessBatch(ctx, batch)
	return len(batch)
}

// ProcessBatch 并发处理整批事件（扇出/扇入）。
// 单个事件的失败被捕获进该事件的结果，绝不中断其他事件。
// 批次大小为 N 时恰好返回 N 个结果。
func (p *Pipeline) ProcessBatch(ctx context.Context, events []Event) []Result {
	results := make([]Result, len(events))

	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = p.processOne(ctx, events[idx])
		}(i)
	}
	wg.Wait()

	p.finishBatch(results)
	return results
}

// processOne 处理单个事件，panic 与错误都折叠进结果
func (p *Pipeline) processOne(ctx context.Context, event Event) (result Result) {
	start := time.Now()
	result = Result{
		EventID:   event.ID,
		StartTime: start,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Successful = false
			result.ErrorMessage = fmt.Sprintf("reconstruction panic: %v", r)
			result.EndTime = time.Now()
			result.ProcessingTime = result.EndTime.Sub(start)
		}
	}()

	p.mu.RLock()
	reconstructor := p.reconstructor
	p.mu.RUnlock()

	tracks, err := reconstructor(ctx, event)
	result.EndTime = time.Now()
	result.ProcessingTime = result.EndTime.Sub(start)

	if err != nil {
		result.Successful = false
		result.ErrorMessage = err.Error()
		return result
	}

	result.Successful = true
	result.TrackCount = tracks
	return result
}

// finishBatch 批次收尾：吞吐量入账、计数器与指标更新、结果回调
func (p *Pipeline) finishBatch(results []Result) {
	p.tracker.Record(len(results))
	p.processed.Add(int64(len(results)))

	for _, result := range results {
		p.processNanos.Add(int64(result.ProcessingTime))
		if !result.Successful {
			p.failed.Add(1)
		}
	}

	if p.metrics != nil {
		for _, result := range results {
			p.metrics.ProcessingSeconds.Observe(result.ProcessingTime.Seconds())
			if result.Successful {
				p.metrics.EventsProcessed.Inc()
			} else {
				p.metrics.EventsFailed.Inc()
			}
		}
		p.metrics.CurrentThroughput.Set(float64(p.tracker.Current()))
	}

	p.mu.RLock()
	callback := p.onResults
	p.mu.RUnlock()
	if callback != nil {
		callback(results)
	}
}

// updateQueueGauges 同步队列深度到背压监控器与指标
func (p *Pipeline) updateQueueGauges() {
	depth := len(p.queue)
	p.monitor.SetQueueSize(depth)
	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(depth))
	}
}

// CurrentThroughput 最近 1 秒窗口事件数
func (p *Pipeline) CurrentThroughput() int64 {
	return p.tracker.Current()
}

// AverageThroughput 最近 n 秒平均吞吐量
func (p *Pipeline) AverageThroughput(n int) float64 {
	return p.tracker.Average(n)
}

// Stats 运行指标快照
func (p *Pipeline) Stats() Stats {
	processed := p.processed.Load()

	var avgMs float64
	if processed > 0 {
		avgMs = float64(p.processNanos.Load()) / float64(processed) / float64(time.Millisecond)
	}

	return Stats{
		PublishedCount:    p.published.Load(),
		ProcessedCount:    processed,
		FailedCount:       p.failed.Load(),
		InlineCount:       p.inline.Load(),
		OverloadCount:     p.overload.Load(),
		QueueDepth:        len(p.queue),
		CurrentThroughput: p.tracker.Current(),
		AverageThroughput: p.tracker.Average(throughputRetentionSeconds),
		AvgProcessingMs:   avgMs,
		BackpressureOn:    p.monitor.ShouldApply(),
		AdmissionDelayMs:  p.monitor.Delay().Milliseconds(),
		EstimatedDrainMs:  p.monitor.EstimateProcessingDelay().Milliseconds(),
	}
}

// Status 实现 StatusReporter
func (p *Pipeline) Status() common.ComponentStatus {
	stats := p.Stats()
	return common.ComponentStatus{
		Name:    "event-pipeline",
		Healthy: !stats.BackpressureOn,
		Detail: map[string]interface{}{
			"queue_depth":     stats.QueueDepth,
			"processed_count": stats.ProcessedCount,
			"overload_count":  stats.OverloadCount,
		},
		Timestamp: time.Now(),
	}
}
