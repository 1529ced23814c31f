package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 观测面指标集合。
// 由单个实例持有并显式传递给各组件，不使用进程级单例，
// 以便测试中并存多个独立管道。
type Metrics struct {
	EventsPublished   prometheus.Counter
	EventsProcessed   prometheus.Counter
	EventsFailed      prometheus.Counter
	EventsInline      prometheus.Counter
	OverloadTotal     prometheus.Counter
	QueueDepth        prometheus.Gauge
	CurrentThroughput prometheus.Gauge
	ProcessingSeconds prometheus.Histogram
	JobsPending       prometheus.Gauge
	JobsRunning       prometheus.Gauge
}

// New 创建并注册指标集合
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "alyx_events_published_total",
			Help: "Number of detector events accepted by the ingestion pipeline.",
		}),
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "alyx_events_processed_total",
			Help: "Number of detector events processed successfully.",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "alyx_events_failed_total",
			Help: "Number of detector events whose reconstruction failed.",
		}),
		EventsInline: factory.NewCounter(prometheus.CounterOpts{
			Name: "alyx_events_inline_total",
			Help: "Number of events processed inline because the queue was full.",
		}),
		OverloadTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alyx_overload_total",
			Help: "Number of times the bounded event queue overflowed.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alyx_event_queue_depth",
			Help: "Current depth of the bounded event queue.",
		}),
		CurrentThroughput: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alyx_event_throughput",
			Help: "Events processed in the most recent one second window.",
		}),
		ProcessingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "alyx_event_processing_seconds",
			Help:    "Per event reconstruction latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		JobsPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alyx_jobs_pending",
			Help: "Number of jobs waiting in the scheduling queue.",
		}),
		JobsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "alyx_jobs_running",
			Help: "Number of jobs currently running on grid resources.",
		}),
	}
}
