package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alyx/internal/common"
	"alyx/internal/grid"
	"alyx/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResourceAllocator 分配器接口，避免与 grid 包强耦合
type ResourceAllocator interface {
	Allocate(requests []grid.DistributionRequest) []grid.AllocationDecision
	Deallocate(jobID string)
}

// QueueStatusView 队列状态聚合
type QueueStatusView struct {
	PendingCount  int   `json:"pending_count"`
	RunningCount  int   `json:"running_count"`
	AvgWaitTimeMs int64 `json:"avg_wait_time_ms"`
}

// Manager 作业生命周期管理器：拥有状态机、队列顺序与对外提交接口
type Manager struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	pending   *pendingQueue
	allocator ResourceAllocator
	store     store.Store
	logger    *zap.Logger

	passInterval    time.Duration
	defaultRequired common.Resource

	// 平均等待时间统计
	startedCount int64
	waitTotalMs  int64
}

// NewManager 创建作业生命周期管理器
func NewManager(allocator ResourceAllocator, st store.Store, cfg common.SchedulerConfig) *Manager {
	return &Manager{
		jobs:         make(map[string]*Job),
		pending:      newPendingQueue(),
		allocator:    allocator,
		store:        st,
		logger:       common.ComponentLogger("job-manager"),
		passInterval: cfg.PassInterval,
		defaultRequired: common.Resource{
			Cores:    cfg.DefaultCores,
			MemoryMB: cfg.DefaultMemoryMB,
		},
	}
}

// Restore 启动时从存储恢复作业。
// 重启后原有预留已不存在，所有非终态作业回到 QUEUED 重新调度。
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}

	records, err := m.store.ListJobs()
	if err != nil {
		return fmt.Errorf("failed to restore jobs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	for _, record := range records {
		j := &Job{
			ID:           record.ID,
			UserID:       record.UserID,
			Status:       Status(record.Status),
			Parameters:   record.Parameters,
			Priority:     record.Priority,
			SubmitTime:   record.SubmitTime,
			Allocated:    common.Resource{Cores: record.AllocatedCores, MemoryMB: record.AllocatedMemMB},
			ResourceID:   record.ResourceID,
			Progress:     record.Progress,
			ErrorMessage: record.ErrorMessage,
		}

		if !j.Status.IsTerminal() {
			j.Status = StatusQueued
			j.Allocated = common.Resource{}
			j.ResourceID = ""
			m.pending.push(&queueItem{jobID: j.ID, priority: j.Priority, submitTime: j.SubmitTime})
			requeued++
		}

		m.jobs[j.ID] = j
	}

	m.logger.Info("Jobs restored from store",
		zap.Int("total", len(records)),
		zap.Int("requeued", requeued))
	return nil
}

// Submit 提交作业：校验参数，创建后立即入队，返回作业 id
func (m *Manager) Submit(userID string, parameters map[string]interface{}) (string, error) {
	if err := validateSubmission(userID, parameters); err != nil {
		return "", err
	}

	priority := PriorityNormal
	if high, ok := parameters["high_priority"].(bool); ok && high {
		priority = PriorityHigh
	}

	j := &Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     StatusSubmitted,
		Parameters: parameters,
		Priority:   priority,
		SubmitTime: time.Now(),
	}

	m.mu.Lock()
	// SUBMITTED 仅是瞬时状态，创建后立即排队
	j.Status = StatusQueued
	m.jobs[j.ID] = j
	m.pending.push(&queueItem{jobID: j.ID, priority: j.Priority, submitTime: j.SubmitTime})
	m.persistLocked(j)
	m.mu.Unlock()

	m.logger.Info("作业已提交",
		zap.String("job_id", j.ID),
		zap.String("user_id", userID),
		zap.Int("priority", priority))

	return j.ID, nil
}

// GetJob 所有权校验的作业读取：不存在或非本人作业都返回 ErrNotFound
func (m *Manager) GetJob(jobID, userID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists || j.UserID != userID {
		return nil, fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}

	return j.Clone(), nil
}

// Cancel 取消作业。仅非终态可取消并释放预留；已终态返回 false，不报错
func (m *Manager) Cancel(jobID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists || j.UserID != userID {
		return false
	}

	if j.Status.IsTerminal() {
		return false
	}

	hadAllocation := j.Status == StatusRunning || j.Status == StatusPaused
	j.Status = StatusCancelled
	j.Allocated = common.Resource{}
	j.ResourceID = ""
	m.persistLocked(j)

	if hadAllocation {
		m.allocator.Deallocate(j.ID)
	}

	m.logger.Info("Job cancelled",
		zap.String("job_id", jobID),
		zap.Bool("released_allocation", hadAllocation))

	return true
}

// Modify 修改作业参数，仅 SUBMITTED/QUEUED 状态允许
func (m *Manager) Modify(jobID, userID string, parameters map[string]interface{}) error {
	if err := validateSubmission(userID, parameters); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists || j.UserID != userID {
		return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}

	if j.Status != StatusSubmitted && j.Status != StatusQueued {
		return fmt.Errorf("job %s in status %s: %w", jobID, j.Status, common.ErrInvalidState)
	}

	j.Parameters = parameters
	if high, ok := parameters["high_priority"].(bool); ok && high {
		j.Priority = PriorityHigh
	} else {
		j.Priority = PriorityNormal
	}
	m.persistLocked(j)

	m.logger.Info("Job parameters modified", zap.String("job_id", jobID))
	return nil
}

// Pause 暂停运行中的作业，保留分配快照
func (m *Manager) Pause(jobID, userID string) error {
	return m.transitionOwned(jobID, userID, StatusPaused)
}

// Resume 恢复暂停的作业
func (m *Manager) Resume(jobID, userID string) error {
	return m.transitionOwned(jobID, userID, StatusRunning)
}

// Complete 终结作业：成功保留分配记录字段，失败清空，两者都释放容量
func (m *Manager) Complete(jobID string, successful bool, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists {
		return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}

	target := StatusCompleted
	if !successful {
		target = StatusFailed
	}
	if !CanTransition(j.Status, target) {
		return fmt.Errorf("job %s in status %s: %w", jobID, j.Status, common.ErrInvalidState)
	}

	j.Status = target
	j.ErrorMessage = message
	if successful {
		j.Progress = 1.0
	} else {
		j.Allocated = common.Resource{}
		j.ResourceID = ""
	}
	m.persistLocked(j)

	m.allocator.Deallocate(j.ID)

	m.logger.Info("Job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(target)))

	return nil
}

// UpdateProgress 更新作业进度，取值范围 [0,1]
func (m *Manager) UpdateProgress(jobID string, progress float64) error {
	if progress < 0 || progress > 1 {
		return common.NewValidationError("progress", "must be within [0, 1]", progress)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists {
		return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	if j.Status != StatusRunning {
		return fmt.Errorf("job %s in status %s: %w", jobID, j.Status, common.ErrInvalidState)
	}

	j.Progress = progress
	return nil
}

// QueueStatus 队列状态聚合视图
func (m *Manager) QueueStatus() QueueStatusView {
	m.mu.Lock()
	defer m.mu.Unlock()

	view := QueueStatusView{}
	for _, j := range m.jobs {
		switch j.Status {
		case StatusQueued:
			view.PendingCount++
		case StatusRunning:
			view.RunningCount++
		}
	}

	if m.startedCount > 0 {
		view.AvgWaitTimeMs = m.waitTotalMs / m.startedCount
	}

	return view
}

// Run 周期性调度循环，直到 ctx 取消
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.passInterval)
	defer ticker.Stop()

	m.logger.Info("Scheduling loop started", zap.Duration("interval", m.passInterval))

	for {
		select {
		case <-ticker.C:
			m.SchedulePass()
		case <-ctx.Done():
			m.logger.Info("Scheduling loop stopped")
			return ctx.Err()
		}
	}
}

// SchedulePass 执行一轮调度：每轮都重试所有 QUEUED 作业。
// 高优先级作业洪峰可以无限推迟低优先级作业，这是明确接受的取舍。
func (m *Manager) SchedulePass() {
	m.mu.Lock()
	ordered := make([]*Job, 0)
	for item := m.pending.pop(); item != nil; item = m.pending.pop() {
		j, exists := m.jobs[item.jobID]
		if !exists || j.Status != StatusQueued {
			// 队列里的陈旧条目（已取消/修改），直接丢弃
			continue
		}
		ordered = append(ordered, j)
	}

	requests := make([]grid.DistributionRequest, 0, len(ordered))
	for _, j := range ordered {
		requests = append(requests, m.buildRequestLocked(j))
	}
	m.mu.Unlock()

	if len(requests) == 0 {
		return
	}

	decisions := m.allocator.Allocate(requests)

	m.mu.Lock()
	defer m.mu.Unlock()

	granted := 0
	for _, decision := range decisions {
		j, exists := m.jobs[decision.Request.JobID]
		if !exists {
			if decision.Granted() {
				m.allocator.Deallocate(decision.Request.JobID)
			}
			continue
		}

		if !decision.Granted() {
			// 本轮搁置，重新入队等待下一轮
			if j.Status == StatusQueued {
				m.pending.push(&queueItem{jobID: j.ID, priority: j.Priority, submitTime: j.SubmitTime})
			}
			continue
		}

		if j.Status != StatusQueued {
			// 调度过程中被取消：回收容量而不是推进到 RUNNING
			m.allocator.Deallocate(j.ID)
			m.logger.Info("Allocation reversed for job cancelled mid-pass",
				zap.String("job_id", j.ID))
			continue
		}

		j.Status = StatusRunning
		j.Allocated = decision.Request.Required
		j.ResourceID = decision.Resource.ID
		m.persistLocked(j)

		m.startedCount++
		m.waitTotalMs += time.Since(j.SubmitTime).Milliseconds()
		granted++
	}

	if granted > 0 {
		m.logger.Info("Scheduling pass finished",
			zap.Int("granted", granted),
			zap.Int("deferred", len(decisions)-granted))
	}
}

// buildRequestLocked 从作业参数构造分发请求，调用方持有锁
func (m *Manager) buildRequestLocked(j *Job) grid.DistributionRequest {
	required := m.defaultRequired
	if cores, ok := numericParameter(j.Parameters, "cores"); ok {
		required.Cores = int32(cores)
	}
	if memory, ok := numericParameter(j.Parameters, "memory_mb"); ok {
		required.MemoryMB = int64(memory)
	}

	location, _ := j.Parameters["preferred_location"].(string)

	tier := grid.TierNormal
	if j.Priority == PriorityHigh {
		tier = grid.TierHigh
	}

	return grid.DistributionRequest{
		JobID:             j.ID,
		Required:          required,
		PreferredLocation: location,
		Tier:              tier,
	}
}

// transitionOwned 所有权校验下的单步状态迁移
func (m *Manager) transitionOwned(jobID, userID string, target Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, exists := m.jobs[jobID]
	if !exists || j.UserID != userID {
		return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}

	if !CanTransition(j.Status, target) {
		return fmt.Errorf("job %s in status %s: %w", jobID, j.Status, common.ErrInvalidState)
	}

	j.Status = target
	m.persistLocked(j)

	m.logger.Info("Job state changed",
		zap.String("job_id", jobID),
		zap.String("status", string(target)))

	return nil
}

// persistLocked 写入作业记录，失败仅记录日志，调用方持有锁
func (m *Manager) persistLocked(j *Job) {
	if m.store == nil {
		return
	}

	record := store.JobRecord{
		ID:               j.ID,
		UserID:           j.UserID,
		Status:           string(j.Status),
		Parameters:       j.Parameters,
		Priority:         j.Priority,
		SubmitTime:       j.SubmitTime,
		AllocatedCores:   j.Allocated.Cores,
		AllocatedMemMB:   j.Allocated.MemoryMB,
		ResourceID:       j.ResourceID,
		Progress:         j.Progress,
		ErrorMessage:     j.ErrorMessage,
		LastTransitionAt: time.Now(),
	}
	if err := m.store.SaveJob(record); err != nil {
		m.logger.Error("Failed to persist job record",
			zap.String("job_id", j.ID), zap.Error(err))
	}
}

// Status 实现 StatusReporter
func (m *Manager) Status() common.ComponentStatus {
	view := m.QueueStatus()
	return common.ComponentStatus{
		Name:    "job-manager",
		Healthy: true,
		Detail: map[string]interface{}{
			"pending_count":    view.PendingCount,
			"running_count":    view.RunningCount,
			"avg_wait_time_ms": view.AvgWaitTimeMs,
		},
		Timestamp: time.Now(),
	}
}

// validateSubmission 校验提交/修改输入
func validateSubmission(userID string, parameters map[string]interface{}) error {
	if userID == "" {
		return common.NewValidationError("user_id", "cannot be empty", userID)
	}
	if len(parameters) == 0 {
		return common.NewValidationError("parameters", "cannot be empty", parameters)
	}
	if cores, ok := numericParameter(parameters, "cores"); ok && cores <= 0 {
		return common.NewValidationError("cores", "must be greater than 0", cores)
	}
	if memory, ok := numericParameter(parameters, "memory_mb"); ok && memory <= 0 {
		return common.NewValidationError("memory_mb", "must be greater than 0", memory)
	}
	return nil
}

// numericParameter 从参数表读取数值，兼容 JSON 解码产生的 float64
func numericParameter(parameters map[string]interface{}, key string) (float64, bool) {
	switch v := parameters[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
