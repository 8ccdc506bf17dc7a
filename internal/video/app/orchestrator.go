package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"
	errprocess "tiered_video_service/pkg/err"
	"tiered_video_service/pkg/logger"
	"tiered_video_service/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
}

// IsVideoSource 依副檔名判斷是否為影片
func IsVideoSource(location string) bool {
	return videoExtensions[strings.ToLower(path.Ext(location))]
}

// 測試時可覆蓋
var (
	newVideoID = uuid.NewString
	nowFunc    = func() time.Time { return time.Now().UTC() }
)

// JobOrchestrator 將上傳通知轉成一個轉碼工作並建立 PENDING 紀錄
type JobOrchestrator interface {
	Orchestrate(ctx context.Context, n domain.UploadNotification) (string, error)
}

type jobOrchestrator struct {
	repo          repository.VideoRepo
	submitter     JobSubmitter
	builder       *RenditionSpecBuilder
	claimer       UploadClaimer
	notifier      StatusNotifier
	submitTimeout time.Duration
}

// OrchestratorOption optional collaborators
type OrchestratorOption func(*jobOrchestrator)

// WithUploadClaimer 啟用跨實例 claim
func WithUploadClaimer(c UploadClaimer) OrchestratorOption {
	return func(o *jobOrchestrator) { o.claimer = c }
}

// WithStatusNotifier 建立紀錄後推播 PENDING
func WithStatusNotifier(n StatusNotifier) OrchestratorOption {
	return func(o *jobOrchestrator) { o.notifier = n }
}

// NewJobOrchestrator 建立 JobOrchestrator
func NewJobOrchestrator(
	repo repository.VideoRepo,
	submitter JobSubmitter,
	builder *RenditionSpecBuilder,
	submitTimeout time.Duration,
	opts ...OrchestratorOption,
) JobOrchestrator {
	if submitTimeout <= 0 {
		submitTimeout = 5 * time.Second
	}
	o := &jobOrchestrator{
		repo:          repo,
		submitter:     submitter,
		builder:       builder,
		submitTimeout: submitTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate 先送出轉碼工作再寫入紀錄；送出失敗不留下任何紀錄
func (o *jobOrchestrator) Orchestrate(ctx context.Context, n domain.UploadNotification) (string, error) {
	if !IsVideoSource(n.SourceLocation) {
		metrics.RecordOrchestration("unsupported")
		return "", fmt.Errorf("source[%s]: %w", n.SourceLocation, domain.ErrUnsupportedSource)
	}

	videoID := n.VideoID
	if videoID == "" {
		videoID = newVideoID()
	}
	log := logger.Log.With(zap.String("video_id", videoID))

	if _, err := o.repo.GetByID(ctx, videoID); err == nil {
		metrics.RecordOrchestration("duplicate")
		log.Info("duplicate upload notification dropped")
		return videoID, nil
	} else if !errors.Is(err, domain.ErrVideoNotFound) {
		return "", errprocess.Wrap(err, fmt.Sprintf("videoID[%s] 查詢影片失敗", videoID))
	}

	if o.claimer != nil {
		ok, err := o.claimer.Claim(ctx, videoID)
		if err != nil {
			return "", errprocess.Wrap(err, fmt.Sprintf("videoID[%s] claim 失敗", videoID))
		}
		if !ok {
			metrics.RecordOrchestration("claimed_elsewhere")
			log.Info("upload already being orchestrated")
			return videoID, nil
		}
	}

	req := domain.EncodeJobRequest{
		VideoID:        videoID,
		SourceLocation: n.SourceLocation,
		Outputs:        o.builder.BuildAll(videoID),
		Thumbnail:      o.builder.Thumbnail(videoID),
		SubmittedAt:    nowFunc(),
	}

	submitCtx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	jobID, err := o.submitter.SubmitJob(submitCtx, req)
	cancel()
	if err != nil {
		o.release(videoID)
		metrics.RecordOrchestration("submit_failed")
		return "", errprocess.Wrap(fmt.Errorf("%w: %w", domain.ErrSubmitJob, err), fmt.Sprintf("videoID[%s] 送出轉碼工作失敗", videoID))
	}

	record := domain.NewVideoRecord(videoID, n.SourceLocation, jobID, nowFunc())
	if err := o.repo.Create(ctx, record); err != nil {
		if errors.Is(err, domain.ErrVideoExists) {
			metrics.RecordOrchestration("duplicate")
			log.Warn("record created concurrently, submitted job is orphaned", zap.String("job_id", jobID))
			return videoID, nil
		}
		o.release(videoID)
		metrics.RecordOrchestration("store_failed")
		return "", errprocess.Wrap(err, fmt.Sprintf("videoID[%s] jobID[%s] 建立紀錄失敗", videoID, jobID))
	}

	metrics.RecordOrchestration("created")
	log.Info("encode job submitted", zap.String("job_id", jobID), zap.Int("outputs", len(req.Outputs)))
	if o.notifier != nil {
		change := domain.StatusChange{VideoID: videoID, Status: domain.VideoPending, JobID: jobID, At: record.CreatedAt}
		if err := o.notifier.Publish(ctx, change); err != nil {
			log.Warn("publish status failed", zap.Error(err))
		}
	}
	return videoID, nil
}

func (o *jobOrchestrator) release(videoID string) {
	if o.claimer == nil {
		return
	}
	// 原 ctx 可能已逾時
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.claimer.Release(ctx, videoID); err != nil {
		logger.Log.Warn("release upload claim failed", zap.String("video_id", videoID), zap.Error(err))
	}
}
