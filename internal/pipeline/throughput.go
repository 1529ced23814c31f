package pipeline

import (
	"sync"
	"time"
)

// 吞吐量窗口保留时长（秒）
const throughputRetentionSeconds = 60

// ThroughputTracker 滑动窗口吞吐量统计：
// 以 1 秒为窗口键记录事件计数，每次更新淘汰超过 60 秒的窗口。
type ThroughputTracker struct {
	mu      sync.Mutex
	windows map[int64]int64
	now     func() time.Time
}

// NewThroughputTracker 创建吞吐量统计器
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{
		windows: make(map[int64]int64),
		now:     time.Now,
	}
}

// Record 记入 count 个已处理事件
func (tt *ThroughputTracker) Record(count int) {
	if count <= 0 {
		return
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()

	nowSec := tt.now().Unix()
	tt.windows[nowSec] += int64(count)
	tt.evictLocked(nowSec)
}

// Current 最近 1 秒窗口的事件数
func (tt *ThroughputTracker) Current() int64 {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	return tt.windows[tt.now().Unix()]
}

// Average 最近 n 个 1 秒窗口的平均事件数，n 不超过保留时长
func (tt *ThroughputTracker) Average(n int) float64 {
	if n <= 0 {
		return 0
	}
	if n > throughputRetentionSeconds {
		n = throughputRetentionSeconds
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()

	nowSec := tt.now().Unix()
	var total int64
	for i := int64(0); i < int64(n); i++ {
		total += tt.windows[nowSec-i]
	}

	return float64(total) / float64(n)
}

// evictLocked 淘汰过期窗口，调用方持有锁
func (tt *ThroughputTracker) evictLocked(nowSec int64) {
	cutoff := nowSec - throughputRetentionSeconds
	for key := range tt.windows {
		if key < cutoff {
			delete(tt.windows, key)
		}
	}
}
