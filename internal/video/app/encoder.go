package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/database"
	"tiered_video_service/pkg/metrics"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"
)

type amqpJobSubmitter struct {
	rabbit  database.RabbitRepo
	queue   string
	limiter *rate.Limiter
}

// NewAMQPJobSubmitter 以 RabbitMQ queue 作為轉碼服務入口，rps/burst 限制送出速率
func NewAMQPJobSubmitter(rabbit database.RabbitRepo, queue string, rps float64, burst int) JobSubmitter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &amqpJobSubmitter{
		rabbit:  rabbit,
		queue:   queue,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// SubmitJob 等待 limiter 後發布，ctx 只限制等待額度的時間
func (s *amqpJobSubmitter) SubmitJob(ctx context.Context, req domain.EncodeJobRequest) (string, error) {
	if len(req.Outputs) == 0 {
		return "", fmt.Errorf("videoID[%s] 沒有任何輸出規格", req.VideoID)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		metrics.RecordSubmit(false)
		return "", fmt.Errorf("videoID[%s] 等待送出額度: %w", req.VideoID, err)
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("videoID[%s] Job JSON 序列化失敗: %w", req.VideoID, err)
	}

	// 發布開始後不因 ctx 逾時放棄，回傳值必須反映訊息是否真的送出
	if err := ctx.Err(); err != nil {
		metrics.RecordSubmit(false)
		return "", fmt.Errorf("videoID[%s] 送出前已逾時: %w", req.VideoID, err)
	}
	err = s.rabbit.Publish(
		"",      // 預設 exchange
		s.queue, // queue 名稱
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    req.JobID,
			Timestamp:    req.SubmittedAt,
			Body:         data,
		},
	)
	if err != nil {
		metrics.RecordSubmit(false)
		return "", fmt.Errorf("videoID[%s] 發送 RabbitMQ 訊息失敗: %w", req.VideoID, err)
	}
	metrics.RecordSubmit(true)
	return req.JobID, nil
}
