package grid

import (
	"time"

	"alyx/internal/common"
)

// PriorityTier 分发请求优先级档位
type PriorityTier int

const (
	TierLow PriorityTier = iota
	TierNormal
	TierHigh
	TierCritical
)

// String 档位名称
func (t PriorityTier) String() string {
	switch t {
	case TierLow:
		return "LOW"
	case TierNormal:
		return "NORMAL"
	case TierHigh:
		return "HIGH"
	case TierCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// GridResource GRID 计算资源
type GridResource struct {
	ID                string             `json:"id"`
	Location          string             `json:"location"`
	Total             common.Resource    `json:"total"`
	Available         common.Resource    `json:"available"`
	CPUUtilization    float64            `json:"cpu_utilization"`
	MemoryUtilization float64            `json:"memory_utilization"`
	IsOnline          bool               `json:"is_online"`
	LastHeartbeat     time.Time          `json:"last_heartbeat"`
	RunningJobs       map[string]struct{} `json:"-"`
}

// LoadScore 负载评分：CPU 与内存利用率的平均值，始终实时计算
func (r *GridResource) LoadScore() float64 {
	return (r.CPUUtilization + r.MemoryUtilization) / 2
}

// CanFit 判断资源能否容纳请求容量
func (r *GridResource) CanFit(required common.Resource) bool {
	return r.IsOnline && r.Available.Fits(required)
}

// Clone 深拷贝，供只读消费方使用
func (r *GridResource) Clone() *GridResource {
	jobs := make(map[string]struct{}, len(r.RunningJobs))
	for id := range r.RunningJobs {
		jobs[id] = struct{}{}
	}

	resourceCopy := *r
	resourceCopy.RunningJobs = jobs
	return &resourceCopy
}

// RunningJobIDs 当前运行的作业 ID 列表
func (r *GridResource) RunningJobIDs() []string {
	ids := make([]string, 0, len(r.RunningJobs))
	for id := range r.RunningJobs {
		ids = append(ids, id)
	}
	return ids
}

// DistributionRequest 一次调度内的资源分发请求，不做持久化
type DistributionRequest struct {
	JobID             string          `json:"job_id"`
	Required          common.Resource `json:"required"`
	PreferredLocation string          `json:"preferred_location,omitempty"`
	Tier              PriorityTier    `json:"tier"`
}

// AllocationDecision 单个请求的分配结果，Resource 为 nil 表示本轮搁置
type AllocationDecision struct {
	Request  DistributionRequest `json:"request"`
	Resource *GridResource       `json:"resource,omitempty"`
}

// Granted 是否成功分配
func (d *AllocationDecision) Granted() bool {
	return d.Resource != nil
}

// RegistryStatistics 注册表统计信息
type RegistryStatistics struct {
	TotalResources    int   `json:"total_resources"`
	OnlineResources   int   `json:"online_resources"`
	OfflineResources  int   `json:"offline_resources"`
	TotalCores        int32 `json:"total_cores"`
	AvailableCores    int32 `json:"available_cores"`
	TotalMemoryMB     int64 `json:"total_memory_mb"`
	AvailableMemoryMB int64 `json:"available_memory_mb"`
}
