package store

import (
	"fmt"
	"sync"
)

// MemoryStore 内存存储实现，主要用于测试与单机运行
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]JobRecord
	resources map[string]ResourceRecord
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]JobRecord),
		resources: make(map[string]ResourceRecord),
	}
}

// SaveJob 保存作业记录到内存
func (ms *MemoryStore) SaveJob(record JobRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.jobs[record.ID] = record
	return nil
}

// LoadJob 从内存加载作业记录
func (ms *MemoryStore) LoadJob(id string) (*JobRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	record, exists := ms.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job record not found: %s", id)
	}

	// 返回副本以避免外部修改
	recordCopy := record
	return &recordCopy, nil
}

// ListJobs 列出内存中的作业记录
func (ms *MemoryStore) ListJobs() ([]JobRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	records := make([]JobRecord, 0, len(ms.jobs))
	for _, record := range ms.jobs {
		records = append(records, record)
	}

	return records, nil
}

// SaveResource 保存资源记录到内存
func (ms *MemoryStore) SaveResource(record ResourceRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.resources[record.ID] = record
	return nil
}

// DeleteResource 从内存删除资源记录
func (ms *MemoryStore) DeleteResource(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.resources, id)
	return nil
}

// ListResources 列出内存中的资源记录
func (ms *MemoryStore) ListResources() ([]ResourceRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	records := make([]ResourceRecord, 0, len(ms.resources))
	for _, record := range ms.resources {
		records = append(records, record)
	}

	return records, nil
}

// Close 关闭内存存储
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.jobs = make(map[string]JobRecord)
	ms.resources = make(map[string]ResourceRecord)
	return nil
}
