package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// trackerAt 固定时钟的统计器，测试里手动拨动时间
func trackerAt(start time.Time) (*ThroughputTracker, *time.Time) {
	clock := start
	tracker := NewThroughputTracker()
	tracker.now = func() time.Time { return clock }
	return tracker, &clock
}

func TestThroughputCurrentWindow(t *testing.T) {
	tracker, clock := trackerAt(time.Unix(1000, 0))

	tracker.Record(10)
	tracker.Record(5)
	assert.Equal(t, int64(15), tracker.Current())

	// 进入下一秒窗口后当前计数归零
	*clock = clock.Add(time.Second)
	assert.Equal(t, int64(0), tracker.Current())
}

func TestThroughputAverage(t *testing.T) {
	tracker, clock := trackerAt(time.Unix(1000, 0))

	// 连续 4 秒各记 10、20、30、40 个事件
	for _, count := range []int{10, 20, 30, 40} {
		tracker.Record(count)
		*clock = clock.Add(time.Second)
	}
	*clock = clock.Add(-time.Second)

	assert.InDelta(t, 25.0, tracker.Average(4), 1e-9)
	// 最近 2 秒只覆盖 30 和 40
	assert.InDelta(t, 35.0, tracker.Average(2), 1e-9)
	// 空窗口按 0 计入平均
	assert.InDelta(t, 10.0, tracker.Average(10), 1e-9)
}

func TestThroughputAverageClampsToRetention(t *testing.T) {
	tracker, _ := trackerAt(time.Unix(1000, 0))
	tracker.Record(60)

	// n 超过保留时长时按 60 秒计算
	assert.InDelta(t, 1.0, tracker.Average(3600), 1e-9)
	assert.Zero(t, tracker.Average(0))
	assert.Zero(t, tracker.Average(-5))
}

func TestThroughputEvictsOldWindows(t *testing.T) {
	tracker, clock := trackerAt(time.Unix(1000, 0))

	tracker.Record(100)
	*clock = clock.Add(61 * time.Second)
	// 新的记录触发淘汰，61 秒前的窗口被清除
	tracker.Record(1)

	assert.Len(t, tracker.windows, 1)
	assert.InDelta(t, float64(1)/60, tracker.Average(60), 1e-9)
}

func TestThroughputIgnoresNonPositiveCounts(t *testing.T) {
	tracker, _ := trackerAt(time.Unix(1000, 0))

	tracker.Record(0)
	tracker.Record(-3)
	assert.Equal(t, int64(0), tracker.Current())
	assert.Empty(t, tracker.windows)
}
