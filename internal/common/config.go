package common

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Store        StoreConfig        `yaml:"store"`
	Development  bool               `yaml:"development"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// SchedulerConfig 调度与存活检测配置
type SchedulerConfig struct {
	PassInterval     time.Duration `yaml:"pass_interval"`      // 调度周期
	LivenessInterval time.Duration `yaml:"liveness_interval"`  // 存活检查周期
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`  // 心跳过期时间
	DefaultCores     int32         `yaml:"default_cores"`      // 作业默认核心数
	DefaultMemoryMB  int64         `yaml:"default_memory_mb"`  // 作业默认内存
}

// BackpressureConfig 背压阈值配置
type BackpressureConfig struct {
	QueueThreshold  float64 `yaml:"queue_threshold"`
	CPUThreshold    float64 `yaml:"cpu_threshold"`
	MemoryThreshold float64 `yaml:"memory_threshold"`
}

// PipelineConfig 事件摄取管道配置
type PipelineConfig struct {
	QueueCapacity      int           `yaml:"queue_capacity"`
	DrainInterval      time.Duration `yaml:"drain_interval"`
	DrainChunkSize     int           `yaml:"drain_chunk_size"`
	SkipDelayThreshold time.Duration `yaml:"skip_delay_threshold"`
}

// KafkaConfig 事件批次投递通道配置
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// StoreConfig 持久化边界配置
type StoreConfig struct {
	Type      string `yaml:"type"` // memory, file
	Directory string `yaml:"directory"`
}

// DefaultConfig 获取默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8180,
			Address: "0.0.0.0",
		},
		Scheduler: SchedulerConfig{
			PassInterval:     5 * time.Second,
			LivenessInterval: 2 * time.Minute,
			HeartbeatTimeout: 5 * time.Minute,
			DefaultCores:     4,
			DefaultMemoryMB:  8192,
		},
		Backpressure: BackpressureConfig{
			QueueThreshold:  0.8,
			CPUThreshold:    0.8,
			MemoryThreshold: 0.85,
		},
		Pipeline: PipelineConfig{
			QueueCapacity:      10000,
			DrainInterval:      100 * time.Millisecond,
			DrainChunkSize:     100,
			SkipDelayThreshold: 50 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "detector-events",
			GroupID: "alyx-ingester",
		},
		Store: StoreConfig{
			Type:      "memory",
			Directory: "/tmp/alyx-state",
		},
	}
}

// LoadConfig 加载配置文件，缺省值来自 DefaultConfig
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewValidationError("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	if c.Scheduler.PassInterval <= 0 {
		return NewValidationError("scheduler.pass_interval", "must be positive", c.Scheduler.PassInterval)
	}
	if c.Scheduler.LivenessInterval <= 0 {
		return NewValidationError("scheduler.liveness_interval", "must be positive", c.Scheduler.LivenessInterval)
	}
	if c.Scheduler.HeartbeatTimeout <= 0 {
		return NewValidationError("scheduler.heartbeat_timeout", "must be positive", c.Scheduler.HeartbeatTimeout)
	}
	if err := ValidateResource(Resource{Cores: c.Scheduler.DefaultCores, MemoryMB: c.Scheduler.DefaultMemoryMB}); err != nil {
		return err
	}
	for _, threshold := range []struct {
		name  string
		value float64
	}{
		{"backpressure.queue_threshold", c.Backpressure.QueueThreshold},
		{"backpressure.cpu_threshold", c.Backpressure.CPUThreshold},
		{"backpressure.memory_threshold", c.Backpressure.MemoryThreshold},
	} {
		if threshold.value <= 0 || threshold.value > 1 {
			return NewValidationError(threshold.name, "must be within (0, 1]", threshold.value)
		}
	}
	if c.Pipeline.QueueCapacity <= 0 {
		return NewValidationError("pipeline.queue_capacity", "must be positive", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.DrainChunkSize <= 0 {
		return NewValidationError("pipeline.drain_chunk_size", "must be positive", c.Pipeline.DrainChunkSize)
	}
	if c.Pipeline.DrainInterval <= 0 {
		return NewValidationError("pipeline.drain_interval", "must be positive", c.Pipeline.DrainInterval)
	}
	if c.Store.Type != "memory" && c.Store.Type != "file" {
		return NewValidationError("store.type", "must be 'memory' or 'file'", c.Store.Type)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return NewValidationError("kafka.brokers", "cannot be empty when kafka is enabled", c.Kafka.Brokers)
	}
	return nil
}
