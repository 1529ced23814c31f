package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore 文件存储实现，每条记录一个 JSON 文件
type FileStore struct {
	mu        sync.RWMutex
	directory string
	logger    *zap.Logger
}

// NewFileStore 创建文件存储
func NewFileStore(directory string) (*FileStore, error) {
	for _, sub := range []string{"jobs", "resources"} {
		if err := os.MkdirAll(filepath.Join(directory, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", directory, err)
		}
	}

	return &FileStore{
		directory: directory,
		logger:    zap.NewNop(), // 使用空logger，实际使用时可以注入
	}, nil
}

// SetLogger 注入日志记录器
func (fs *FileStore) SetLogger(logger *zap.Logger) {
	fs.logger = logger
}

// SaveJob 保存作业记录到文件
func (fs *FileStore) SaveJob(record JobRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.writeJSON(filepath.Join(fs.directory, "jobs", record.ID+".json"), record)
}

// LoadJob 从文件加载作业记录
func (fs *FileStore) LoadJob(id string) (*JobRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	filename := filepath.Join(fs.directory, "jobs", id+".json")
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("job record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}

	var record JobRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
	}

	return &record, nil
}

// ListJobs 列出文件中的作业记录
func (fs *FileStore) ListJobs() ([]JobRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var records []JobRecord
	err := fs.readAll(filepath.Join(fs.directory, "jobs"), func(data []byte) error {
		var record JobRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	return records, err
}

// SaveResource 保存资源记录到文件
func (fs *FileStore) SaveResource(record ResourceRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.writeJSON(filepath.Join(fs.directory, "resources", record.ID+".json"), record)
}

// DeleteResource 删除资源记录文件
func (fs *FileStore) DeleteResource(id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	filename := filepath.Join(fs.directory, "resources", id+".json")
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete resource record: %w", err)
	}
	return nil
}

// ListResources 列出文件中的资源记录
func (fs *FileStore) ListResources() ([]ResourceRecord, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var records []ResourceRecord
	err := fs.readAll(filepath.Join(fs.directory, "resources"), func(data []byte) error {
		var record ResourceRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	return records, err
}

// Close 关闭文件存储
func (fs *FileStore) Close() error {
	// 文件存储不需要特殊的清理操作
	return nil
}

// writeJSON 序列化并写入单条记录
func (fs *FileStore) writeJSON(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}

	fs.logger.Debug("Record saved to file", zap.String("filename", filename))
	return nil
}

// readAll 遍历目录下的所有 JSON 记录
func (fs *FileStore) readAll(directory string, handle func(data []byte) error) error {
	files, err := os.ReadDir(directory)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(directory, file.Name()))
		if err != nil {
			fs.logger.Warn("Failed to read record file",
				zap.String("filename", file.Name()), zap.Error(err))
			continue
		}

		if err := handle(data); err != nil {
			fs.logger.Warn("Failed to parse record file",
				zap.String("filename", file.Name()), zap.Error(err))
		}
	}

	return nil
}
