package grid

import (
	"fmt"
	"sync"
	"time"

	"alyx/internal/common"
	"alyx/internal/store"

	"go.uber.org/zap"
)

// Registry 资源注册表，资源 id 到 GridResource 的唯一权威映射
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*GridResource
	logger    *zap.Logger
	store     store.Store
}

// NewRegistry 创建资源注册表
func NewRegistry(st store.Store) *Registry {
	return &Registry{
		resources: make(map[string]*GridResource),
		logger:    common.ComponentLogger("grid-registry"),
		store:     st,
	}
}

// Restore 启动时从存储恢复资源清单
func (rg *Registry) Restore() error {
	if rg.store == nil {
		return nil
	}

	records, err := rg.store.ListResources()
	if err != nil {
		return fmt.Errorf("failed to restore resource inventory: %w", err)
	}

	rg.mu.Lock()
	defer rg.mu.Unlock()

	for _, record := range records {
		rg.resources[record.ID] = &GridResource{
			ID:            record.ID,
			Location:      record.Location,
			Total:         common.Resource{Cores: record.TotalCores, MemoryMB: record.TotalMemoryMB},
			Available:     common.Resource{Cores: record.TotalCores, MemoryMB: record.TotalMemoryMB},
			IsOnline:      record.IsOnline,
			LastHeartbeat: record.LastHeartbeat,
			RunningJobs:   make(map[string]struct{}),
		}
	}

	rg.logger.Info("Resource inventory restored", zap.Int("count", len(records)))
	return nil
}

// Register 注册资源
func (rg *Registry) Register(id, location string, total common.Resource) (*GridResource, error) {
	if id == "" {
		return nil, common.NewValidationError("id", "cannot be empty", id)
	}
	if err := common.ValidateResource(total); err != nil {
		return nil, err
	}

	rg.mu.Lock()
	defer rg.mu.Unlock()

	if existing, exists := rg.resources[id]; exists {
		rg.logger.Warn("Resource already registered",
			zap.String("resource_id", id),
			zap.String("location", existing.Location))
		return existing.Clone(), nil
	}

	resource := &GridResource{
		ID:            id,
		Location:      location,
		Total:         total,
		Available:     total,
		IsOnline:      true,
		LastHeartbeat: time.Now(),
		RunningJobs:   make(map[string]struct{}),
	}
	rg.resources[id] = resource

	rg.logger.Info("资源已注册",
		zap.String("resource_id", id),
		zap.String("location", location),
		zap.Int32("cores", total.Cores),
		zap.Int64("memory_mb", total.MemoryMB))

	rg.persist(resource)
	return resource.Clone(), nil
}

// Deregister 注销资源
func (rg *Registry) Deregister(id string) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	if _, exists := rg.resources[id]; !exists {
		return fmt.Errorf("resource %s: %w", id, common.ErrNotFound)
	}

	delete(rg.resources, id)

	rg.logger.Info("Resource deregistered", zap.String("resource_id", id))

	if rg.store != nil {
		if err := rg.store.DeleteResource(id); err != nil {
			rg.logger.Error("Failed to delete resource record", zap.String("resource_id", id), zap.Error(err))
		}
	}
	return nil
}

// UpdateUtilization 更新资源利用率
func (rg *Registry) UpdateUtilization(id string, cpu, memory float64) error {
	if err := common.ValidateUtilization("cpu_utilization", cpu); err != nil {
		return err
	}
	if err := common.ValidateUtilization("memory_utilization", memory); err != nil {
		return err
	}

	rg.mu.Lock()
	defer rg.mu.Unlock()

	resource, exists := rg.resources[id]
	if !exists {
		return fmt.Errorf("resource %s: %w", id, common.ErrNotFound)
	}

	resource.CPUUtilization = cpu
	resource.MemoryUtilization = memory

	rg.logger.Debug("Resource utilization updated",
		zap.String("resource_id", id),
		zap.Float64("cpu", cpu),
		zap.Float64("memory", memory))

	return nil
}

// Heartbeat 处理资源心跳：置为在线并刷新时间戳
func (rg *Registry) Heartbeat(id string) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	resource, exists := rg.resources[id]
	if !exists {
		return fmt.Errorf("resource %s: %w", id, common.ErrNotFound)
	}

	wasOffline := !resource.IsOnline
	resource.IsOnline = true
	resource.LastHeartbeat = time.Now()

	if wasOffline {
		rg.logger.Info("Resource back online", zap.String("resource_id", id))
		rg.persist(resource)
	}

	return nil
}

// Get 获取资源快照
func (rg *Registry) Get(id string) (*GridResource, error) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	resource, exists := rg.resources[id]
	if !exists {
		return nil, fmt.Errorf("resource %s: %w", id, common.ErrNotFound)
	}

	return resource.Clone(), nil
}

// List 获取所有资源快照
func (rg *Registry) List() []*GridResource {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	resources := make([]*GridResource, 0, len(rg.resources))
	for _, resource := range rg.resources {
		resources = append(resources, resource.Clone())
	}

	return resources
}

// Reserve 原子预留容量并登记作业，容量不足时失败
func (rg *Registry) Reserve(resourceID, jobID string, amount common.Resource) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	resource, exists := rg.resources[resourceID]
	if !exists {
		return fmt.Errorf("resource %s: %w", resourceID, common.ErrNotFound)
	}

	if !resource.IsOnline || !resource.Available.Fits(amount) {
		return fmt.Errorf("resource %s cannot fit %v: %w", resourceID, amount, common.ErrResourceUnavailable)
	}

	remaining := resource.Available.Subtract(amount)
	if !remaining.IsNonNegative() {
		// 不变量防线：可用容量永远不为负
		rg.logger.Error("Reservation would drive capacity negative",
			zap.String("resource_id", resourceID),
			zap.Int32("available_cores", resource.Available.Cores),
			zap.Int32("requested_cores", amount.Cores))
		return fmt.Errorf("resource %s capacity invariant violation: %w", resourceID, common.ErrResourceUnavailable)
	}

	resource.Available = remaining
	resource.RunningJobs[jobID] = struct{}{}

	rg.logger.Debug("Capacity reserved",
		zap.String("resource_id", resourceID),
		zap.String("job_id", jobID),
		zap.Int32("cores", amount.Cores),
		zap.Int64("memory_mb", amount.MemoryMB))

	return nil
}

// Release 原子释放容量并移除作业登记，与 Reserve 成对出现
func (rg *Registry) Release(resourceID, jobID string, amount common.Resource) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	resource, exists := rg.resources[resourceID]
	if !exists {
		// 资源可能已被注销，释放视为无操作
		return nil
	}

	if _, held := resource.RunningJobs[jobID]; !held {
		return nil
	}

	restored := resource.Available.Add(amount)
	if !resource.Total.Fits(restored) {
		// 不变量防线：可用容量永远不超过总量
		rg.logger.Error("Release would exceed total capacity",
			zap.String("resource_id", resourceID),
			zap.Int32("total_cores", resource.Total.Cores),
			zap.Int32("restored_cores", restored.Cores))
		restored = resource.Total
	}

	resource.Available = restored
	delete(resource.RunningJobs, jobID)

	rg.logger.Debug("Capacity released",
		zap.String("resource_id", resourceID),
		zap.String("job_id", jobID))

	return nil
}

// markOffline 将资源标记为离线，返回是否发生状态变化
func (rg *Registry) markOffline(id string) bool {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	resource, exists := rg.resources[id]
	if !exists || !resource.IsOnline {
		return false
	}

	resource.IsOnline = false
	rg.persist(resource)
	return true
}

// staleResources 返回心跳早于 deadline 的在线资源 id
func (rg *Registry) staleResources(deadline time.Time) []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	var stale []string
	for id, resource := range rg.resources {
		if resource.IsOnline && resource.LastHeartbeat.Before(deadline) {
			stale = append(stale, id)
		}
	}

	return stale
}

// Statistics 聚合统计信息
func (rg *Registry) Statistics() RegistryStatistics {
	rg.mu.RLock()
	defer rg.mu.RUnlock()

	stats := RegistryStatistics{}
	for _, resource := range rg.resources {
		stats.TotalResources++
		stats.TotalCores += resource.Total.Cores
		stats.TotalMemoryMB += resource.Total.MemoryMB
		stats.AvailableCores += resource.Available.Cores
		stats.AvailableMemoryMB += resource.Available.MemoryMB

		if resource.IsOnline {
			stats.OnlineResources++
		} else {
			stats.OfflineResources++
		}
	}

	return stats
}

// Status 实现 StatusReporter
func (rg *Registry) Status() common.ComponentStatus {
	stats := rg.Statistics()
	return common.ComponentStatus{
		Name:    "grid-registry",
		Healthy: stats.TotalResources == 0 || stats.OnlineResources > 0,
		Detail: map[string]interface{}{
			"total_resources":  stats.TotalResources,
			"online_resources": stats.OnlineResources,
			"available_cores":  stats.AvailableCores,
		},
		Timestamp: time.Now(),
	}
}

// persist 写入资源记录，失败仅记录日志
func (rg *Registry) persist(resource *GridResource) {
	if rg.store == nil {
		return
	}

	record := store.ResourceRecord{
		ID:            resource.ID,
		Location:      resource.Location,
		TotalCores:    resource.Total.Cores,
		TotalMemoryMB: resource.Total.MemoryMB,
		IsOnline:      resource.IsOnline,
		LastHeartbeat: resource.LastHeartbeat,
	}
	if err := rg.store.SaveResource(record); err != nil {
		rg.logger.Error("Failed to persist resource record",
			zap.String("resource_id", resource.ID), zap.Error(err))
	}
}
