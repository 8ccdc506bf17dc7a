package app

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"
	errprocess "tiered_video_service/pkg/err"
	"tiered_video_service/pkg/logger"
	"tiered_video_service/pkg/metrics"

	"go.uber.org/zap"
)

// PlaybackUseCase streaming-delivery 邊界：上傳、播放決策、列表
type PlaybackUseCase interface {
	Upload(ctx context.Context, up domain.UploadVideoReq) (*domain.UploadVideoRes, error)
	Play(ctx context.Context, videoID, userID string, quality domain.Quality) (*domain.PlaybackRes, error)
	Get(ctx context.Context, videoID string) (*domain.VideoRecord, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.VideoListRes, error)
}

// URLExpiry 播放連結效期，免費方案較短
type URLExpiry struct {
	Free time.Duration
	Paid time.Duration
}

type playbackUseCase struct {
	repo         repository.VideoRepo
	orchestrator JobOrchestrator
	entitlements EntitlementResolver
	resolver     TierResolver
	store        ObjectStore
	builder      *RenditionSpecBuilder
	expiry       URLExpiry
}

// NewPlaybackUseCase 建立 PlaybackUseCase
func NewPlaybackUseCase(
	repo repository.VideoRepo,
	orchestrator JobOrchestrator,
	entitlements EntitlementResolver,
	store ObjectStore,
	builder *RenditionSpecBuilder,
	expiry URLExpiry,
) PlaybackUseCase {
	if expiry.Free <= 0 {
		expiry.Free = 15 * time.Minute
	}
	if expiry.Paid <= 0 {
		expiry.Paid = 2 * time.Hour
	}
	return &playbackUseCase{
		repo:         repo,
		orchestrator: orchestrator,
		entitlements: entitlements,
		resolver:     NewTierResolver(),
		store:        store,
		builder:      builder,
		expiry:       expiry,
	}
}

// Upload 來源檔寫入 original/<videoId>/<fileName> 後交給 orchestrator
func (p *playbackUseCase) Upload(ctx context.Context, up domain.UploadVideoReq) (*domain.UploadVideoRes, error) {
	fileName := path.Base(up.FileName)
	if !IsVideoSource(fileName) {
		return nil, fmt.Errorf("fileName[%s]: %w", up.FileName, domain.ErrUnsupportedSource)
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}

	videoID := newVideoID()
	objectName := fmt.Sprintf("original/%s/%s", videoID, fileName)
	if err := p.store.UploadFile(ctx, objectName, up.File, up.Size, contentType); err != nil {
		return nil, errprocess.Wrap(err, fmt.Sprintf("fileName[%s] 上傳 MinIO 失敗", up.FileName))
	}

	id, err := p.orchestrator.Orchestrate(ctx, domain.UploadNotification{
		SourceLocation: objectName,
		VideoID:        videoID,
	})
	if err != nil {
		return nil, err
	}
	return &domain.UploadVideoRes{Message: "上傳成功，等待轉碼", VideoID: id}, nil
}

// Play 依使用者方案決定要播放的 rendition，UNAVAILABLE 以結果回傳而非錯誤
func (p *playbackUseCase) Play(ctx context.Context, videoID, userID string, quality domain.Quality) (*domain.PlaybackRes, error) {
	rec, err := p.repo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	ent, err := p.entitlements.Resolve(ctx, userID)
	if err != nil {
		return nil, errprocess.Wrap(err, fmt.Sprintf("userID[%s] 取得訂閱方案失敗", userID))
	}

	result := p.resolver.Resolve(rec, ent, quality)
	metrics.RecordPlayback(string(ent.Tier), string(result.Decision))
	logger.Log.Debug("playback resolved",
		zap.String("video_id", videoID),
		zap.String("tier", string(ent.Tier)),
		zap.String("decision", string(result.Decision)),
		zap.String("rendition", string(result.RenditionTag)),
	)

	res := &domain.PlaybackRes{
		VideoID:            videoID,
		Decision:           result.Decision,
		Degraded:           result.Decision == domain.DecisionDegraded,
		Reason:             result.Reason,
		Tier:               ent.Tier,
		AvailableQualities: domain.AvailableQualities(ent.Tier),
	}
	if !result.Playable() {
		return res, nil
	}

	expiry := p.expiry.Paid
	if ent.Tier == domain.TierFree {
		expiry = p.expiry.Free
	}
	url, err := p.sign(ctx, result.Locator, expiry)
	if err != nil {
		return nil, errprocess.Wrap(err, fmt.Sprintf("videoID[%s] 產生播放連結失敗", videoID))
	}

	res.Quality = result.RenditionTag
	res.URL = url
	res.DurationSeconds = rec.DurationSeconds
	if result.RenditionTag == domain.TagFreePreview {
		limit := p.builder.PreviewSeconds()
		res.MaxDurationSeconds = &limit
	}
	if rec.ThumbnailURL != "" {
		if thumb, err := p.sign(ctx, rec.ThumbnailURL, expiry); err == nil {
			res.ThumbnailURL = thumb
		}
	}
	return res, nil
}

// sign s3://<bucket>/<key> 轉為預簽章連結，其他 locator 原樣回傳
func (p *playbackUseCase) sign(ctx context.Context, locator string, expiry time.Duration) (string, error) {
	rest, ok := strings.CutPrefix(locator, "s3://")
	if !ok {
		return locator, nil
	}
	_, key, found := strings.Cut(rest, "/")
	if !found || key == "" {
		return "", fmt.Errorf("locator[%s] 缺少 object key", locator)
	}
	return p.store.PresignGetURL(ctx, key, expiry)
}

func (p *playbackUseCase) Get(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	return p.repo.GetByID(ctx, videoID)
}

func (p *playbackUseCase) List(ctx context.Context, filter domain.ListFilter) (*domain.VideoListRes, error) {
	filter = filter.Normalize()
	videos, total, err := p.repo.List(ctx, filter)
	if err != nil {
		return nil, errprocess.Wrap(err, "查詢影片列表失敗")
	}
	if videos == nil {
		videos = []domain.VideoRecord{}
	}
	return &domain.VideoListRes{Videos: videos, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
