package common

import (
	"errors"
	"fmt"
)

// 定义常见错误类型
var (
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// ValidationError 验证错误
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidParameters
}

// NewValidationError 创建验证错误
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ValidateResource 验证资源容量配置
func ValidateResource(resource Resource) error {
	if resource.MemoryMB <= 0 {
		return NewValidationError("memory_mb", "must be greater than 0", resource.MemoryMB)
	}
	if resource.Cores <= 0 {
		return NewValidationError("cores", "must be greater than 0", resource.Cores)
	}
	if resource.MemoryMB > 1024*1024 { // 1TB
		return NewValidationError("memory_mb", "exceeds maximum limit (1TB)", resource.MemoryMB)
	}
	if resource.Cores > 1024 {
		return NewValidationError("cores", "exceeds maximum limit (1024)", resource.Cores)
	}
	return nil
}

// ValidateUtilization 验证利用率取值范围
func ValidateUtilization(name string, value float64) error {
	if value < 0 || value > 1 {
		return NewValidationError(name, "must be within [0, 1]", value)
	}
	return nil
}
