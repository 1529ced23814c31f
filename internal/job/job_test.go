package job

import (
	"testing"
	"time"

	"alyx/internal/common"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusSubmitted, StatusQueued, true},
		{StatusSubmitted, StatusCancelled, true},
		{StatusSubmitted, StatusRunning, false},
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusQueued, false},
		{StatusPaused, StatusRunning, true},
		{StatusPaused, StatusCancelled, true},
		{StatusPaused, StatusCompleted, false},
		// 终态不允许任何迁移
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusQueued, false},
		{StatusCancelled, StatusRunning, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())

	assert.False(t, StatusSubmitted.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
}

func TestJobClone(t *testing.T) {
	original := &Job{
		ID:         "job-1",
		UserID:     "alice",
		Status:     StatusRunning,
		Parameters: map[string]interface{}{"cores": 4},
		Priority:   PriorityHigh,
		SubmitTime: time.Now(),
		Allocated:  common.Resource{Cores: 4, MemoryMB: 8000},
	}

	clone := original.Clone()
	clone.Parameters["cores"] = 8
	clone.Status = StatusCompleted

	// 克隆的修改不得影响原对象
	assert.Equal(t, 4, original.Parameters["cores"])
	assert.Equal(t, StatusRunning, original.Status)
}
