package main

import (
	"context"
	"encoding/json"
	"flag"
	"math/rand"
	"strings"
	"time"

	"alyx/internal/common"
	"alyx/internal/pipeline"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// eventloader 向投递通道发布合成探测器事件批次，用于联调与压测
func main() {
	var (
		brokers   = flag.String("brokers", "localhost:9092", "Comma separated kafka brokers")
		topic     = flag.String("topic", "detector-events", "Kafka topic")
		batchSize = flag.Int("batch-size", 100, "Events per batch")
		batches   = flag.Int("batches", 10, "Number of batches to publish")
		interval  = flag.Duration("interval", 500*time.Millisecond, "Delay between batches")
	)
	flag.Parse()

	if err := common.InitLogger(true); err != nil {
		panic(err)
	}
	defer common.Sync()
	logger := common.ComponentLogger("eventloader")

	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(*brokers, ",")...),
		Topic:    *topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer writer.Close()

	ctx := context.Background()
	for i := 0; i < *batches; i++ {
		batch := pipeline.BatchMessage{
			BatchID: uuid.NewString(),
			Events:  makeEvents(*batchSize),
		}

		value, err := json.Marshal(batch)
		if err != nil {
			logger.Fatal("Failed to marshal batch", zap.Error(err))
		}

		if err := writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(batch.BatchID),
			Value: value,
		}); err != nil {
			logger.Fatal("Failed to publish batch", zap.Error(err))
		}

		logger.Info("Batch published",
			zap.String("batch_id", batch.BatchID),
			zap.Int("events", len(batch.Events)))

		time.Sleep(*interval)
	}
}

// makeEvents 生成带合法校验和的合成事件
func makeEvents(count int) []pipeline.Event {
	events := make([]pipeline.Event, 0, count)
	for i := 0; i < count; i++ {
		hits := make([]pipeline.DetectorHit, 0, 24)
		for h := 0; h < 24; h++ {
			hits = append(hits, pipeline.DetectorHit{
				X:      rand.Float64() * 100,
				Y:      rand.Float64() * 100,
				Z:      rand.Float64() * 300,
				Energy: rand.Float64() * 10,
			})
		}

		events = append(events, pipeline.Event{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Payload: pipeline.EventPayload{
				Hits:     hits,
				Checksum: pipeline.PayloadChecksum(hits),
			},
			Metadata: map[string]string{"source": "eventloader"},
		})
	}
	return events
}
