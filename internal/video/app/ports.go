package app

import (
	"context"
	"io"
	"time"

	"tiered_video_service/internal/video/domain"
)

// JobSubmitter 轉碼服務邊界，同步送出、失敗即回傳
type JobSubmitter interface {
	SubmitJob(ctx context.Context, req domain.EncodeJobRequest) (string, error)
}

// UploadClaimer 同一 videoId 同時只允許一個 orchestrate 進行中
type UploadClaimer interface {
	Claim(ctx context.Context, videoID string) (bool, error)
	Release(ctx context.Context, videoID string) error
}

// StatusNotifier 狀態異動推播
type StatusNotifier interface {
	Publish(ctx context.Context, change domain.StatusChange) error
	Subscribe(ctx context.Context, videoID string) (<-chan domain.StatusChange, error)
}

// Alerter 營運告警通道
type Alerter interface {
	Alert(ctx context.Context, alert domain.Alert) error
}

// EntitlementResolver 身分服務邊界，由 member 模組實作
type EntitlementResolver interface {
	Resolve(ctx context.Context, userID string) (domain.EntitlementView, error)
}

// ObjectStore 來源檔上傳與播放連結簽章
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}
