package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alyx/internal/common"
	"alyx/internal/grid"
	"alyx/internal/job"
	"alyx/internal/metrics"
	"alyx/internal/pipeline"
	"alyx/internal/server"
	"alyx/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		development = flag.Bool("dev", false, "Enable development mode")
	)
	flag.Parse()

	// 加载配置文件
	config, err := common.LoadConfig(*configFile)
	if err != nil {
		panic(err)
	}

	// 初始化日志系统
	if err := common.InitLogger(*development || config.Development); err != nil {
		panic(err)
	}
	defer common.Sync()

	logger := common.ComponentLogger("analysiscore")
	logger.Info("Starting ALYX analysis core",
		zap.String("config_file", *configFile),
		zap.Int("port", config.Server.Port),
		zap.String("store_type", config.Store.Type))

	// 持久化边界
	st, err := store.NewStore(config.Store.Type, config.Store.Directory)
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer st.Close()

	// 资源注册表与分配器
	registry := grid.NewRegistry(st)
	if err := registry.Restore(); err != nil {
		logger.Fatal("Failed to restore resource inventory", zap.Error(err))
	}
	allocator := grid.NewAllocator(registry)
	liveness := grid.NewLivenessMonitor(registry,
		config.Scheduler.LivenessInterval, config.Scheduler.HeartbeatTimeout)

	// 作业生命周期管理器
	manager := job.NewManager(allocator, st, config.Scheduler)
	if err := manager.Restore(); err != nil {
		logger.Fatal("Failed to restore jobs", zap.Error(err))
	}

	// 事件摄取管道
	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)
	monitor := pipeline.NewBackpressureMonitor(config.Pipeline.QueueCapacity, config.Backpressure)
	pipe := pipeline.NewPipeline(config.Pipeline, monitor, m)

	reporters := []common.StatusReporter{registry, allocator, manager, pipe}
	httpServer := server.NewHTTPServer(manager, registry, pipe, reporters, promRegistry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 优雅关闭处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
		if err := httpServer.Stop(); err != nil {
			logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return manager.Run(ctx) })
	group.Go(func() error { return liveness.Run(ctx) })
	group.Go(func() error { return pipe.Run(ctx) })
	group.Go(func() error { return updateJobGauges(ctx, manager, m) })
	group.Go(func() error {
		return httpServer.Start(config.Server.Address, config.Server.Port)
	})

	if config.Kafka.Enabled {
		source := pipeline.NewKafkaSource(config.Kafka, pipe)
		defer source.Close()
		group.Go(func() error { return source.Run(ctx) })
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Analysis core failed", zap.Error(err))
	}

	logger.Info("Analysis core exited gracefully")
}

// updateJobGauges 周期性同步作业队列规模到指标
func updateJobGauges(ctx context.Context, manager *job.Manager, m *metrics.Metrics) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			view := manager.QueueStatus()
			m.JobsPending.Set(float64(view.PendingCount))
			m.JobsRunning.Set(float64(view.RunningCount))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
