package common

import "time"

// Resource 表示一份计算资源容量
type Resource struct {
	Cores    int32 `json:"cores"`     // CPU 核心数
	MemoryMB int64 `json:"memory_mb"` // 内存 MB
}

// Add 容量相加
func (r Resource) Add(other Resource) Resource {
	return Resource{
		Cores:    r.Cores + other.Cores,
		MemoryMB: r.MemoryMB + other.MemoryMB,
	}
}

// Subtract 容量相减
func (r Resource) Subtract(other Resource) Resource {
	return Resource{
		Cores:    r.Cores - other.Cores,
		MemoryMB: r.MemoryMB - other.MemoryMB,
	}
}

// Fits 判断 other 是否能放入当前容量
func (r Resource) Fits(other Resource) bool {
	return r.Cores >= other.Cores && r.MemoryMB >= other.MemoryMB
}

// IsNonNegative 两个维度都不为负
func (r Resource) IsNonNegative() bool {
	return r.Cores >= 0 && r.MemoryMB >= 0
}

// ComponentStatus 子系统状态视图
type ComponentStatus struct {
	Name      string                 `json:"name"`
	Healthy   bool                   `json:"healthy"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// StatusReporter 子系统状态上报能力，由各组件自行实现
type StatusReporter interface {
	Status() ComponentStatus
}
