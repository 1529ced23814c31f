package job

import (
	"container/heap"
	"time"
)

// queueItem 待调度队列中的一项
type queueItem struct {
	jobID      string
	priority   int
	submitTime time.Time
}

// pendingQueue 严格优先级队列：优先级数值小者先出，
// 同优先级按提交时间先到先出
type pendingQueue []*queueItem

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].submitTime.Before(q[j].submitTime)
}

func (q pendingQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *pendingQueue) Push(x interface{}) {
	*q = append(*q, x.(*queueItem))
}

func (q *pendingQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// newPendingQueue 创建空队列
func newPendingQueue() *pendingQueue {
	q := make(pendingQueue, 0)
	heap.Init(&q)
	return &q
}

// push 入队
func (q *pendingQueue) push(item *queueItem) {
	heap.Push(q, item)
}

// pop 出队，空队列返回 nil
func (q *pendingQueue) pop() *queueItem {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*queueItem)
}
