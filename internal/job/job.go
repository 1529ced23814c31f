package job

import (
	"time"

	"alyx/internal/common"
)

// Status 作业状态
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// 优先级数值：数值越小优先级越高
const (
	PriorityHigh   = 1
	PriorityNormal = 5
)

// transitions 状态机合法迁移表
var transitions = map[Status][]Status{
	StatusSubmitted: {StatusQueued, StatusCancelled},
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:    {StatusRunning, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// IsTerminal 是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job 分析作业。字段仅由生命周期管理器与分配器修改。
type Job struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Status       Status                 `json:"status"`
	Parameters   map[string]interface{} `json:"parameters"`
	Priority     int                    `json:"priority"`
	SubmitTime   time.Time              `json:"submit_time"`
	Allocated    common.Resource        `json:"allocated"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Progress     float64                `json:"progress"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Clone 深拷贝作业视图
func (j *Job) Clone() *Job {
	params := make(map[string]interface{}, len(j.Parameters))
	for k, v := range j.Parameters {
		params[k] = v
	}

	jobCopy := *j
	jobCopy.Parameters = params
	return &jobCopy
}
