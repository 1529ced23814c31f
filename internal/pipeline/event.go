package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"
)

// DetectorHit 探测器单次击中
type DetectorHit struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Energy float64 `json:"energy"`
}

// EventPayload 事件负载：击中列表与校验和
type EventPayload struct {
	Hits     []DetectorHit `json:"hits"`
	Checksum uint32        `json:"checksum"`
}

// Event 原始探测器事件
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   EventPayload      `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result 单个事件的处理结果，生成后不可变
type Result struct {
	EventID        string        `json:"event_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Successful     bool          `json:"successful"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	TrackCount     int           `json:"track_count"`
}

// Reconstructor 径迹重建黑盒：输入事件，输出重建径迹数
type Reconstructor func(ctx context.Context, event Event) (int, error)

// PayloadChecksum 计算击中列表的 FNV 校验和
func PayloadChecksum(hits []DetectorHit) uint32 {
	h := fnv.New32a()
	buf := make([]byte, 8)
	for _, hit := range hits {
		for _, v := range []float64{hit.X, hit.Y, hit.Z, hit.Energy} {
			binary.LittleEndian.PutUint64(buf, uint64(int64(v*1000)))
			_, _ = h.Write(buf)
		}
	}
	return h.Sum32()
}

// 每条径迹对应的平均击中数，默认重建的粗粒度估计
const hitsPerTrack = 12

// DefaultReconstructor 默认重建实现：校验负载完整性后按击中密度估计径迹数
func DefaultReconstructor(ctx context.Context, event Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(event.Payload.Hits) == 0 {
		return 0, fmt.Errorf("event %s has empty hit list", event.ID)
	}

	if checksum := PayloadChecksum(event.Payload.Hits); checksum != event.Payload.Checksum {
		return 0, fmt.Errorf("event %s checksum mismatch: got %d, want %d",
			event.ID, checksum, event.Payload.Checksum)
	}

	tracks := len(event.Payload.Hits) / hitsPerTrack
	if tracks == 0 {
		tracks = 1
	}

	return tracks, nil
}
