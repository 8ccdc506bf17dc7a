package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tiered_video_service/internal/video/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract 兩種 backend 共用的行為測試
func runStoreContract(t *testing.T, newRepo func(t *testing.T) VideoRepo) {
	ctx := context.Background()

	t.Run("條件寫入拒絕重複 videoId", func(t *testing.T) {
		repo := newRepo(t)
		v := domain.NewVideoRecord("dup-1", "original/dup-1/a.mp4", "job-dup-1", time.Now().UTC())
		require.NoError(t, repo.Create(ctx, v))

		again := domain.NewVideoRecord("dup-1", "original/dup-1/a.mp4", "job-dup-2", time.Now().UTC())
		err := repo.Create(ctx, again)
		assert.ErrorIs(t, err, domain.ErrVideoExists)

		got, err := repo.GetByID(ctx, "dup-1")
		require.NoError(t, err)
		assert.Equal(t, "job-dup-1", got.JobID)
	})

	t.Run("找不到影片", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrVideoNotFound)
		_, err = repo.GetByJobID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrVideoNotFound)
	})

	t.Run("round-trip 保留 renditions 與 status", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now().UTC().Truncate(time.Millisecond)
		v := domain.NewVideoRecord("rt-1", "original/rt-1/a.mp4", "job-rt-1", now)
		require.NoError(t, repo.Create(ctx, v))

		next := v.Clone()
		next.Status = domain.VideoCompleted
		next.Renditions = domain.Renditions{
			domain.TagFreePreview:  "s3://videos/free/rt-1_free_preview.mp4",
			domain.TagStandard480p: "s3://videos/standard/rt-1_standard_480p.mp4",
			domain.TagPremium720p:  "s3://videos/premium/rt-1_premium_720p.mp4",
			domain.TagPremium1080p: "s3://videos/premium/rt-1_premium_1080p.mp4",
		}
		next.CompletedAt = &now
		next.DurationSeconds = 12.5
		require.NoError(t, repo.CompareAndSwap(ctx, next, v.Version))

		got, err := repo.GetByJobID(ctx, "job-rt-1")
		require.NoError(t, err)
		diff := cmp.Diff(next, got,
			cmpopts.EquateApproxTime(time.Millisecond),
			cmpopts.IgnoreFields(domain.VideoRecord{}, "UpdatedAt"),
		)
		assert.Empty(t, diff)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("過期 version 寫入失敗", func(t *testing.T) {
		repo := newRepo(t)
		v := domain.NewVideoRecord("cas-1", "src", "job-cas-1", time.Now().UTC())
		require.NoError(t, repo.Create(ctx, v))

		first := v.Clone()
		first.Status = domain.VideoProcessing
		require.NoError(t, repo.CompareAndSwap(ctx, first, 1))

		stale := v.Clone()
		stale.Status = domain.VideoFailed
		stale.ErrorInfo = &domain.ErrorInfo{Code: "X", Message: "boom"}
		err := repo.CompareAndSwap(ctx, stale, 1)
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
		assert.Equal(t, int64(1), stale.Version)

		got, err := repo.GetByID(ctx, "cas-1")
		require.NoError(t, err)
		assert.Equal(t, domain.VideoProcessing, got.Status)
		assert.Nil(t, got.ErrorInfo)
	})

	t.Run("同一 version 併發寫入只有一筆成功", func(t *testing.T) {
		repo := newRepo(t)
		v := domain.NewVideoRecord("race-1", "src", "job-race-1", time.Now().UTC())
		require.NoError(t, repo.Create(ctx, v))

		const writers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := v.Clone()
				next.Status = domain.VideoCompleted
				next.Renditions[domain.TagFreePreview] = fmt.Sprintf("loc-%d", i)
				err := repo.CompareAndSwap(ctx, next, 1)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, domain.ErrVersionConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("依狀態分頁列出", func(t *testing.T) {
		repo := newRepo(t)
		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 5; i++ {
			v := domain.NewVideoRecord(fmt.Sprintf("list-%d", i), "src", fmt.Sprintf("job-list-%d", i), base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, repo.Create(ctx, v))
			if i%2 == 0 {
				next := v.Clone()
				next.Status = domain.VideoProcessing
				require.NoError(t, repo.CompareAndSwap(ctx, next, v.Version))
			}
		}

		videos, total, err := repo.List(ctx, domain.ListFilter{Status: domain.VideoProcessing, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, videos, 2)
		assert.Equal(t, "list-4", videos[0].VideoID)
		assert.Equal(t, "list-2", videos[1].VideoID)

		videos, _, err = repo.List(ctx, domain.ListFilter{Status: domain.VideoProcessing, Limit: 2, Page: 2})
		require.NoError(t, err)
		require.Len(t, videos, 1)
		assert.Equal(t, "list-0", videos[0].VideoID)
	})

	t.Run("同一秒內仍依建立時間新到舊", func(t *testing.T) {
		repo := newRepo(t)
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		offsets := []time.Duration{0, 500 * time.Millisecond, 50 * time.Millisecond}
		for i, off := range offsets {
			v := domain.NewVideoRecord(fmt.Sprintf("sec-%d", i), "src", fmt.Sprintf("job-sec-%d", i), base.Add(off))
			require.NoError(t, repo.Create(ctx, v))
		}

		videos, _, err := repo.List(ctx, domain.ListFilter{Limit: 10})
		require.NoError(t, err)
		ids := make([]string, 0, len(videos))
		for _, v := range videos {
			ids = append(ids, v.VideoID)
		}
		assert.Equal(t, []string{"sec-1", "sec-2", "sec-0"}, ids)
	})
}
