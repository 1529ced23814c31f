package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"alyx/internal/common"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BatchMessage 投递通道上的事件批次消息
type BatchMessage struct {
	BatchID string  `json:"batch_id"`
	Events  []Event `json:"events"`
}

// KafkaSource 事件批次来源适配器。
// 投递通道本身是外部协作方，按有序、至少一次的语义对待：
// 先摄取再提交位点，重复投递由结果的幂等消费方吸收。
type KafkaSource struct {
	reader   *kafka.Reader
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewKafkaSource 创建 Kafka 事件源
func NewKafkaSource(cfg common.KafkaConfig, p *Pipeline) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &KafkaSource{
		reader:   reader,
		pipeline: p,
		logger:   common.ComponentLogger("kafka-source"),
	}
}

// Run 消费循环，直到 ctx 取消
func (ks *KafkaSource) Run(ctx context.Context) error {
	ks.logger.Info("Kafka source started",
		zap.String("topic", ks.reader.Config().Topic),
		zap.String("group_id", ks.reader.Config().GroupID))

	for {
		message, err := ks.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				ks.logger.Info("Kafka source stopped")
				return ctx.Err()
			}
			ks.logger.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		var batch BatchMessage
		if err := json.Unmarshal(message.Value, &batch); err != nil {
			// 无法解析的消息记录后提交跳过，避免卡住分区
			ks.logger.Error("Failed to decode batch message",
				zap.Int64("offset", message.Offset), zap.Error(err))
			if err := ks.reader.CommitMessages(ctx, message); err != nil {
				ks.logger.Error("Failed to commit message", zap.Error(err))
			}
			continue
		}

		ack := ks.pipeline.Ingest(batch.Events)
		ks.logger.Debug("Batch ingested from kafka",
			zap.String("batch_id", batch.BatchID),
			zap.Int("queued", ack.Queued),
			zap.Int("inline", ack.Inline))

		if err := ks.reader.CommitMessages(ctx, message); err != nil {
			ks.logger.Error("Failed to commit message", zap.Error(err))
		}
	}
}

// Close 关闭底层 reader
func (ks *KafkaSource) Close() error {
	return ks.reader.Close()
}
