package store

import (
	"fmt"
	"time"
)

// JobRecord 作业持久化记录
type JobRecord struct {
	ID               string                 `json:"id"`
	UserID           string                 `json:"user_id"`
	Status           string                 `json:"status"`
	Parameters       map[string]interface{} `json:"parameters"`
	Priority         int                    `json:"priority"`
	SubmitTime       time.Time              `json:"submit_time"`
	AllocatedCores   int32                  `json:"allocated_cores"`
	AllocatedMemMB   int64                  `json:"allocated_mem_mb"`
	ResourceID       string                 `json:"resource_id,omitempty"`
	Progress         float64                `json:"progress"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	LastTransitionAt time.Time              `json:"last_transition_at"`
}

// ResourceRecord 资源清单持久化记录
type ResourceRecord struct {
	ID            string    `json:"id"`
	Location      string    `json:"location"`
	TotalCores    int32     `json:"total_cores"`
	TotalMemoryMB int64     `json:"total_memory_mb"`
	IsOnline      bool      `json:"is_online"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Store 持久化边界接口：启动时读取，状态变化时写入
type Store interface {
	// SaveJob 保存作业记录
	SaveJob(record JobRecord) error

	// LoadJob 加载作业记录
	LoadJob(id string) (*JobRecord, error)

	// ListJobs 列出所有作业记录
	ListJobs() ([]JobRecord, error)

	// SaveResource 保存资源记录
	SaveResource(record ResourceRecord) error

	// DeleteResource 删除资源记录
	DeleteResource(id string) error

	// ListResources 列出所有资源记录
	ListResources() ([]ResourceRecord, error)

	// Close 关闭存储
	Close() error
}

// NewStore 按配置类型创建存储
func NewStore(storeType, directory string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(directory)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
