package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingQueuePriorityOrdering(t *testing.T) {
	q := newPendingQueue()
	base := time.Now()

	q.push(&queueItem{jobID: "normal", priority: PriorityNormal, submitTime: base})
	q.push(&queueItem{jobID: "high", priority: PriorityHigh, submitTime: base.Add(time.Second)})

	// 高优先级后到也先出队
	first := q.pop()
	require.NotNil(t, first)
	assert.Equal(t, "high", first.jobID)

	second := q.pop()
	require.NotNil(t, second)
	assert.Equal(t, "normal", second.jobID)
}

func TestPendingQueueSamePriorityFIFO(t *testing.T) {
	q := newPendingQueue()
	base := time.Now()

	q.push(&queueItem{jobID: "third", priority: PriorityNormal, submitTime: base.Add(2 * time.Second)})
	q.push(&queueItem{jobID: "first", priority: PriorityNormal, submitTime: base})
	q.push(&queueItem{jobID: "second", priority: PriorityNormal, submitTime: base.Add(time.Second)})

	assert.Equal(t, "first", q.pop().jobID)
	assert.Equal(t, "second", q.pop().jobID)
	assert.Equal(t, "third", q.pop().jobID)
}

func TestPendingQueuePopEmpty(t *testing.T) {
	q := newPendingQueue()
	assert.Nil(t, q.pop())
}
