package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tiered_video_service/internal/video/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VideoRepo metadata store：以 videoId 為 key，jobId 為次要索引，支援條件寫入
type VideoRepo interface {
	AutoMigrate(ctx context.Context) error
	// Create 條件寫入，videoId 已存在時回傳 domain.ErrVideoExists
	Create(ctx context.Context, video *domain.VideoRecord) error
	GetByID(ctx context.Context, videoID string) (*domain.VideoRecord, error)
	GetByJobID(ctx context.Context, jobID string) (*domain.VideoRecord, error)
	// CompareAndSwap 只在資料庫中的 version 等於 expectedVersion 時寫入 next，
	// 成功後 next.Version = expectedVersion+1；否則回傳 domain.ErrVersionConflict
	CompareAndSwap(ctx context.Context, next *domain.VideoRecord, expectedVersion int64) error
	List(ctx context.Context, filter domain.ListFilter) ([]domain.VideoRecord, int64, error)
}

// casColumns CAS 時會被覆寫的欄位，video_id / source_location / created_at 不可變
var casColumns = []string{
	"status", "job_id", "renditions", "thumbnail_url", "duration_seconds",
	"error_info", "retry_count", "version", "updated_at", "completed_at",
}

type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepo create gorm VideoRepo
func NewVideoRepo(db *gorm.DB) VideoRepo {
	return &videoRepo{db: db}
}

func (r *videoRepo) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&domain.VideoRecord{})
}

// Create INSERT ... ON CONFLICT (video_id) DO NOTHING，RowsAffected 為 0 代表已存在
func (r *videoRepo) Create(ctx context.Context, video *domain.VideoRecord) error {
	if video.Version == 0 {
		video.Version = 1
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "video_id"}}, DoNothing: true}).
		Create(video)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("videoID[%s]: %w", video.VideoID, domain.ErrVideoExists)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("videoID[%s]: %w", video.VideoID, domain.ErrVideoExists)
	}
	return nil
}

func (r *videoRepo) GetByID(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	return r.first(ctx, "video_id = ?", videoID)
}

func (r *videoRepo) GetByJobID(ctx context.Context, jobID string) (*domain.VideoRecord, error) {
	return r.first(ctx, "job_id = ?", jobID)
}

func (r *videoRepo) first(ctx context.Context, query string, arg string) (*domain.VideoRecord, error) {
	var v domain.VideoRecord
	if err := r.db.WithContext(ctx).Where(query, arg).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVideoNotFound
		}
		return nil, err
	}
	if v.Renditions == nil {
		v.Renditions = domain.Renditions{}
	}
	return &v, nil
}

// CompareAndSwap UPDATE ... WHERE video_id = ? AND version = ?
func (r *videoRepo) CompareAndSwap(ctx context.Context, next *domain.VideoRecord, expectedVersion int64) error {
	prevVersion, prevUpdated := next.Version, next.UpdatedAt
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(next).
		Where("version = ?", expectedVersion).
		Select(casColumns).
		Updates(next)
	if res.Error != nil {
		next.Version, next.UpdatedAt = prevVersion, prevUpdated
		return res.Error
	}
	if res.RowsAffected == 0 {
		next.Version, next.UpdatedAt = prevVersion, prevUpdated
		return fmt.Errorf("videoID[%s] version[%d]: %w", next.VideoID, expectedVersion, domain.ErrVersionConflict)
	}
	return nil
}

// List 依建立時間新到舊
func (r *videoRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.VideoRecord, int64, error) {
	filter = filter.Normalize()
	q := r.db.WithContext(ctx).Model(&domain.VideoRecord{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var videos []domain.VideoRecord
	if err := q.Order("created_at DESC").Offset(filter.Offset()).Limit(filter.Limit).Find(&videos).Error; err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}
