package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tiered_video_service/internal/video/domain"
)

//go:embed schema.sql
var sqliteSchema string

const selectColumns = `video_id, source_location, status, job_id, renditions, thumbnail_url,
	duration_seconds, error_info, retry_count, version, created_at, updated_at, completed_at`

type sqliteVideoRepo struct {
	db *sql.DB
}

// NewSqliteVideoRepo 單機部署用 sqlite VideoRepo，CAS 語意與 postgres 相同
func NewSqliteVideoRepo(db *sql.DB) VideoRepo {
	return &sqliteVideoRepo{db: db}
}

func (r *sqliteVideoRepo) AutoMigrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

func (r *sqliteVideoRepo) Create(ctx context.Context, video *domain.VideoRecord) error {
	if video.Version == 0 {
		video.Version = 1
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = time.Now().UTC()
	}
	if video.UpdatedAt.IsZero() {
		video.UpdatedAt = video.CreatedAt
	}
	renditions, errInfo, err := encodeJSONColumns(video)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO video_records (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO NOTHING`,
		video.VideoID, video.SourceLocation, string(video.Status), video.JobID, renditions,
		video.ThumbnailURL, video.DurationSeconds, errInfo, video.RetryCount, video.Version,
		formatTime(video.CreatedAt), formatTime(video.UpdatedAt), formatTimePtr(video.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("videoID[%s]: %w", video.VideoID, domain.ErrVideoExists)
		}
		return fmt.Errorf("insert video[%s]: %w", video.VideoID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("videoID[%s]: %w", video.VideoID, domain.ErrVideoExists)
	}
	return nil
}

func (r *sqliteVideoRepo) GetByID(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM video_records WHERE video_id = ?`, videoID))
}

func (r *sqliteVideoRepo) GetByJobID(ctx context.Context, jobID string) (*domain.VideoRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM video_records WHERE job_id = ?`, jobID))
}

func (r *sqliteVideoRepo) CompareAndSwap(ctx context.Context, next *domain.VideoRecord, expectedVersion int64) error {
	renditions, errInfo, err := encodeJSONColumns(next)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `UPDATE video_records SET
			status = ?, job_id = ?, renditions = ?, thumbnail_url = ?, duration_seconds = ?,
			error_info = ?, retry_count = ?, version = ?, updated_at = ?, completed_at = ?
		WHERE video_id = ? AND version = ?`,
		string(next.Status), next.JobID, renditions, next.ThumbnailURL, next.DurationSeconds,
		errInfo, next.RetryCount, expectedVersion+1, formatTime(updatedAt), formatTimePtr(next.CompletedAt),
		next.VideoID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("cas video[%s]: %w", next.VideoID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("videoID[%s] version[%d]: %w", next.VideoID, expectedVersion, domain.ErrVersionConflict)
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = updatedAt
	return nil
}

func (r *sqliteVideoRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.VideoRecord, int64, error) {
	filter = filter.Normalize()
	where, args := "", []any{}
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(filter.Status))
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM video_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM video_records`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []domain.VideoRecord
	for rows.Next() {
		v, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		videos = append(videos, *v)
	}
	return videos, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *sqliteVideoRepo) scanOne(row *sql.Row) (*domain.VideoRecord, error) {
	v, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrVideoNotFound
	}
	return v, err
}

func scanRecord(row rowScanner) (*domain.VideoRecord, error) {
	var (
		v                    domain.VideoRecord
		status, renditions   string
		errInfo, completedAt sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&v.VideoID, &v.SourceLocation, &status, &v.JobID, &renditions, &v.ThumbnailURL,
		&v.DurationSeconds, &errInfo, &v.RetryCount, &v.Version, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	v.Status = domain.VideoStatus(status)

	v.Renditions = domain.Renditions{}
	if err := json.Unmarshal([]byte(renditions), &v.Renditions); err != nil {
		return nil, fmt.Errorf("decode renditions video[%s]: %w", v.VideoID, err)
	}
	if errInfo.Valid && errInfo.String != "" && errInfo.String != "null" {
		v.ErrorInfo = &domain.ErrorInfo{}
		if err := json.Unmarshal([]byte(errInfo.String), v.ErrorInfo); err != nil {
			return nil, fmt.Errorf("decode error_info video[%s]: %w", v.VideoID, err)
		}
	}

	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		v.CompletedAt = &t
	}
	return &v, nil
}

func encodeJSONColumns(v *domain.VideoRecord) (string, sql.NullString, error) {
	renditions := v.Renditions
	if renditions == nil {
		renditions = domain.Renditions{}
	}
	data, err := json.Marshal(renditions)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("encode renditions: %w", err)
	}
	var errInfo sql.NullString
	if v.ErrorInfo != nil {
		raw, err := json.Marshal(v.ErrorInfo)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("encode error_info: %w", err)
		}
		errInfo = sql.NullString{String: string(raw), Valid: true}
	}
	return string(data), errInfo, nil
}

// timeLayout 固定寬度，字串排序與時間排序一致
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
