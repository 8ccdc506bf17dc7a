package app

import (
	"context"
	"encoding/json"
	"fmt"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter kafka.Writer 的子集，測試時替換
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaAlerter struct {
	writer MessageWriter
}

// NewKafkaAlerter 告警寫入 ops topic，key 為 videoId
func NewKafkaAlerter(w MessageWriter) Alerter {
	return &kafkaAlerter{writer: w}
}

func (a *kafkaAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("videoID[%s] alert 序列化失敗: %w", alert.VideoID, err)
	}
	if err := a.writer.WriteMessages(ctx, kafka.Message{Key: []byte(alert.VideoID), Value: data}); err != nil {
		return fmt.Errorf("videoID[%s] 寫入 alert 失敗: %w", alert.VideoID, err)
	}
	logger.Log.Info("operator alert sent", zap.String("video_id", alert.VideoID), zap.String("error_code", alert.ErrorCode))
	return nil
}
