package grid

import (
	"sort"
	"sync"
	"time"

	"alyx/internal/common"

	"go.uber.org/zap"
)

// allocation 一次成功分配的登记，用于成对的释放
type allocation struct {
	resourceID string
	amount     common.Resource
}

// Allocator 资源分配器：按优先级档位对请求排序，
// 在满足容量约束的在线资源中选择负载评分最低者，偏好位置优先。
// 单一互斥锁串行化所有分配与释放，防止并发调度轮重复占用容量。
type Allocator struct {
	mu          sync.Mutex
	registry    *Registry
	allocations map[string]allocation
	logger      *zap.Logger
}

// NewAllocator 创建资源分配器
func NewAllocator(registry *Registry) *Allocator {
	return &Allocator{
		registry:    registry,
		allocations: make(map[string]allocation),
		logger:      common.ComponentLogger("allocator"),
	}
}

// Allocate 为一批分发请求做一轮分配。
// 无可用资源的请求返回 Resource 为 nil 的决策，留待下一轮，不视为错误。
func (a *Allocator) Allocate(requests []DistributionRequest) []AllocationDecision {
	a.mu.Lock()
	defer a.mu.Unlock()

	// 档位降序，同档位保持到达顺序
	ordered := make([]DistributionRequest, len(requests))
	copy(ordered, requests)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Tier > ordered[j].Tier
	})

	decisions := make([]AllocationDecision, 0, len(ordered))
	for _, request := range ordered {
		decisions = append(decisions, a.allocateOne(request))
	}

	return decisions
}

// allocateOne 为单个请求选择资源并预留容量，调用方持有锁
func (a *Allocator) allocateOne(request DistributionRequest) AllocationDecision {
	decision := AllocationDecision{Request: request}

	candidate := a.selectResource(request)
	if candidate == nil {
		a.logger.Debug("No eligible resource, request deferred",
			zap.String("job_id", request.JobID),
			zap.Int32("cores", request.Required.Cores),
			zap.Int64("memory_mb", request.Required.MemoryMB))
		return decision
	}

	if err := a.registry.Reserve(candidate.ID, request.JobID, request.Required); err != nil {
		// 预留失败同样视为搁置
		a.logger.Warn("Reservation failed, request deferred",
			zap.String("job_id", request.JobID),
			zap.String("resource_id", candidate.ID),
			zap.Error(err))
		return decision
	}

	a.allocations[request.JobID] = allocation{
		resourceID: candidate.ID,
		amount:     request.Required,
	}

	reserved, err := a.registry.Get(candidate.ID)
	if err != nil {
		reserved = candidate
	}
	decision.Resource = reserved

	a.logger.Info("Job allocated",
		zap.String("job_id", request.JobID),
		zap.String("resource_id", candidate.ID),
		zap.String("tier", request.Tier.String()),
		zap.Float64("load_score", candidate.LoadScore()))

	return decision
}

// selectResource 在线且容量充足的资源中选负载评分最低者。
// 设置了偏好位置且该位置有候选时，只在该位置内挑选。
func (a *Allocator) selectResource(request DistributionRequest) *GridResource {
	var eligible []*GridResource
	for _, resource := range a.registry.List() {
		if resource.CanFit(request.Required) {
			eligible = append(eligible, resource)
		}
	}

	if len(eligible) == 0 {
		return nil
	}

	candidates := eligible
	if request.PreferredLocation != "" {
		var local []*GridResource
		for _, resource := range eligible {
			if resource.Location == request.PreferredLocation {
				local = append(local, resource)
			}
		}
		if len(local) > 0 {
			candidates = local
		}
	}

	best := candidates[0]
	for _, resource := range candidates[1:] {
		score, bestScore := resource.LoadScore(), best.LoadScore()
		// 同分时取 id 最小者，保证确定性
		if score < bestScore || (score == bestScore && resource.ID < best.ID) {
			best = resource
		}
	}

	return best
}

// Deallocate 释放作业的资源预留，幂等：无预留时为无操作
func (a *Allocator) Deallocate(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	alloc, exists := a.allocations[jobID]
	if !exists {
		return
	}

	if err := a.registry.Release(alloc.resourceID, jobID, alloc.amount); err != nil {
		a.logger.Error("Failed to release reservation",
			zap.String("job_id", jobID),
			zap.String("resource_id", alloc.resourceID),
			zap.Error(err))
		return
	}

	delete(a.allocations, jobID)

	a.logger.Info("Job deallocated",
		zap.String("job_id", jobID),
		zap.String("resource_id", alloc.resourceID))
}

// AllocationCount 当前持有的预留数量
func (a *Allocator) AllocationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocations)
}

// Status 实现 StatusReporter
func (a *Allocator) Status() common.ComponentStatus {
	return common.ComponentStatus{
		Name:    "allocator",
		Healthy: true,
		Detail: map[string]interface{}{
			"active_allocations": a.AllocationCount(),
		},
		Timestamp: time.Now(),
	}
}
