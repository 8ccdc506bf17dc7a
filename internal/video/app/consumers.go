package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// 測試時可縮短
var (
	requeueDelay   = 10 * time.Second
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// UploadConsumer 消費上傳通知 queue，呼叫 orchestrator
type UploadConsumer struct {
	orchestrator JobOrchestrator
}

// NewUploadConsumer 建構 UploadConsumer
func NewUploadConsumer(o JobOrchestrator) *UploadConsumer {
	return &UploadConsumer{orchestrator: o}
}

// Run 持續消費直到 channel 關閉或 ctx 結束
func (c *UploadConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	logger.Log.Info("upload consumer started")
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("upload channel closed")
				return nil
			}
			c.handle(ctx, d)
		case <-ctx.Done():
			logger.Log.Info("upload consumer stopped")
			return nil
		}
	}
}

func (c *UploadConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var n domain.UploadNotification
	if err := json.Unmarshal(d.Body, &n); err != nil || n.SourceLocation == "" {
		logger.Log.Warn("malformed upload notification dropped", zap.ByteString("body", d.Body), zap.Error(err))
		nack(d, false)
		return
	}

	videoID, err := c.orchestrator.Orchestrate(ctx, n)
	switch {
	case errors.Is(err, domain.ErrUnsupportedSource):
		logger.Log.Info("non-video upload ignored", zap.String("source", n.SourceLocation))
		nack(d, false)
	case err != nil:
		logger.Log.Error("orchestrate failed, requeue", zap.String("source", n.SourceLocation), zap.Error(err))
		select {
		case <-time.After(requeueDelay):
		case <-ctx.Done():
		}
		nack(d, true)
	default:
		if err := d.Ack(false); err != nil {
			logger.Log.Error("ack failed", zap.String("video_id", videoID), zap.Error(err))
		}
	}
}

func nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Log.Error("nack failed", zap.Error(err))
	}
}

// MessageFetcher kafka.Reader 的子集，測試時替換
type MessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StatusConsumer 消費轉碼狀態事件；處理成功才 commit，infra 錯誤時同一筆訊息退避重試
type StatusConsumer struct {
	reconciler CompletionReconciler
}

// NewStatusConsumer 建構 StatusConsumer
func NewStatusConsumer(r CompletionReconciler) *StatusConsumer {
	return &StatusConsumer{reconciler: r}
}

// Run 持續消費直到 ctx 結束
func (c *StatusConsumer) Run(ctx context.Context, reader MessageFetcher) error {
	logger.Log.Info("status consumer started")
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Log.Info("status consumer stopped")
				return nil
			}
			return err
		}

		if !c.handle(ctx, m) {
			return nil
		}
		if err := reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Log.Error("commit offset failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handle 回傳 false 表示 ctx 已結束，訊息未處理完
func (c *StatusConsumer) handle(ctx context.Context, m kafka.Message) bool {
	var ev domain.JobStatusEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.JobID == "" {
		logger.Log.Warn("malformed job status event dropped",
			zap.Int64("offset", m.Offset),
			zap.ByteString("value", m.Value),
			zap.Error(err),
		)
		return true
	}

	backoff := initialBackoff
	for {
		outcome, err := c.reconciler.Reconcile(ctx, ev)
		if err == nil {
			logger.Log.Debug("job status event handled", zap.String("job_id", ev.JobID), zap.String("outcome", string(outcome)))
			return true
		}
		logger.Log.Error("reconcile failed, retrying",
			zap.String("job_id", ev.JobID),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
