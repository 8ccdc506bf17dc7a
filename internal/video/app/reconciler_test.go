package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"
	"tiered_video_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, store repository.VideoRepo, videoID, jobID string) {
	t.Helper()
	rec := domain.NewVideoRecord(videoID, "original/"+videoID+"/a.mp4", jobID, time.Now().UTC())
	require.NoError(t, store.Create(context.Background(), rec))
}

func TestReconcileComplete(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("COMPLETE 寫入 renditions 與完成時間", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v1", "job-a")
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)

		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobComplete, Outputs: fullOutputs("v1")})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, outcome)

		rec, err := store.GetByID(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, domain.VideoCompleted, rec.Status)
		assert.Equal(t, domain.AllRenditionTags, rec.Renditions.Tags())
		assert.Equal(t, "s3://videos/premium/v1_premium_1080p.mp4", rec.Renditions[domain.TagPremium1080p])
		assert.Equal(t, "s3://videos/thumbnails/v1_thumbnail.0000000.jpg", rec.ThumbnailURL)
		assert.InDelta(t, 62.5, rec.DurationSeconds, 0.001)
		require.NotNil(t, rec.CompletedAt)
		assert.Nil(t, rec.ErrorInfo)
	})

	t.Run("併發重複 COMPLETE 只套用一次", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v2", "job-b")
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)
		ev := domain.JobStatusEvent{JobID: "job-b", Status: domain.JobComplete, Outputs: fullOutputs("v2")}

		const workers = 6
		outcomes := make(chan Outcome, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := r.Reconcile(ctx, ev)
				assert.NoError(t, err)
				outcomes <- o
			}()
		}
		wg.Wait()
		close(outcomes)

		counts := map[Outcome]int{}
		for o := range outcomes {
			counts[o]++
		}
		assert.Equal(t, 1, counts[OutcomeCompleted])
		assert.Equal(t, workers-1, counts[OutcomeDuplicate])

		rec, err := store.GetByID(ctx, "v2")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("事件順序不影響最終 renditions", func(t *testing.T) {
		progress := domain.JobStatusEvent{JobID: "job-c", Status: domain.JobProgressing}
		complete := domain.JobStatusEvent{JobID: "job-c", Status: domain.JobComplete, Outputs: fullOutputs("v3")}

		final := func(events ...domain.JobStatusEvent) domain.Renditions {
			store := newTestStore(t)
			seedRecord(t, store, "v3", "job-c")
			r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)
			for _, ev := range events {
				_, err := r.Reconcile(ctx, ev)
				require.NoError(t, err)
			}
			rec, err := store.GetByID(ctx, "v3")
			require.NoError(t, err)
			assert.Equal(t, domain.VideoCompleted, rec.Status)
			return rec.Renditions
		}

		a := final(progress, complete, complete)
		b := final(complete, progress, complete)
		assert.True(t, a.Equal(b))
	})

	t.Run("部分輸出無法解析仍完成", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v4", "job-d")
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)

		outs := append(outputsFor("v4", domain.TagStandard480p), domain.JobOutput{LocationURI: "s3://videos/tmp/garbage.bin"})
		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-d", Status: domain.JobComplete, Outputs: outs})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, outcome)

		rec, _ := store.GetByID(ctx, "v4")
		assert.Equal(t, []domain.RenditionTag{domain.TagStandard480p}, rec.Renditions.Tags())
	})

	t.Run("找不到 job 直接丟棄", func(t *testing.T) {
		store := newTestStore(t)
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)

		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "ghost", Status: domain.JobComplete})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, outcome)
	})
}

func TestReconcileTerminalImmutability(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	newCompleted := func(t *testing.T, anomalies repository.AnomalyRepo) (repository.VideoRepo, CompletionReconciler) {
		store := newTestStore(t)
		seedRecord(t, store, "v1", "job-a")
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second, WithAnomalyLog(anomalies))
		_, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobComplete, Outputs: fullOutputs("v1")})
		require.NoError(t, err)
		return store, r
	}

	t.Run("完成後的 ERROR 記錄為衝突且不改變紀錄", func(t *testing.T) {
		anomalies := new(MockAnomalyRepo)
		anomalies.On("Insert", mock.Anything, mock.MatchedBy(func(a domain.Anomaly) bool {
			return a.VideoID == "v1" && a.StoredStatus == domain.VideoCompleted && a.EventStatus == domain.JobError
		})).Return(nil).Once()
		store, r := newCompleted(t, anomalies)
		before, _ := store.GetByID(ctx, "v1")

		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobError, ErrorCode: "E1"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, outcome)

		after, _ := store.GetByID(ctx, "v1")
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, domain.VideoCompleted, after.Status)
		assert.True(t, before.Renditions.Equal(after.Renditions))
		anomalies.AssertExpectations(t)
	})

	t.Run("locator 不同的 COMPLETE 為衝突", func(t *testing.T) {
		anomalies := new(MockAnomalyRepo)
		anomalies.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()
		store, r := newCompleted(t, anomalies)

		outs := []domain.JobOutput{{Tag: "premium_720p", LocationURI: "s3://other/premium/v1_premium_720p.mp4"}}
		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobComplete, Outputs: outs})
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, outcome)

		rec, _ := store.GetByID(ctx, "v1")
		assert.Equal(t, "s3://videos/premium/v1_premium_720p.mp4", rec.Renditions[domain.TagPremium720p])
	})

	t.Run("已有輸出的子集視為重複", func(t *testing.T) {
		anomalies := new(MockAnomalyRepo)
		_, r := newCompleted(t, anomalies)

		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobComplete, Outputs: outputsFor("v1", domain.TagFreePreview)})
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		anomalies.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("完成後沒有可解析輸出的 COMPLETE 記錄為衝突", func(t *testing.T) {
		anomalies := new(MockAnomalyRepo)
		anomalies.On("Insert", mock.Anything, mock.MatchedBy(func(a domain.Anomaly) bool {
			return a.VideoID == "v1" && a.EventStatus == domain.JobComplete
		})).Return(nil).Once()
		store, r := newCompleted(t, anomalies)
		before, _ := store.GetByID(ctx, "v1")

		outs := []domain.JobOutput{{LocationURI: "s3://videos/tmp/garbage.bin"}}
		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobComplete, Outputs: outs})
		require.NoError(t, err)
		assert.Equal(t, OutcomeConflict, outcome)

		after, _ := store.GetByID(ctx, "v1")
		assert.Equal(t, before.Version, after.Version)
		anomalies.AssertExpectations(t)
	})

	t.Run("完成後的 PROGRESSING 忽略", func(t *testing.T) {
		_, r := newCompleted(t, new(MockAnomalyRepo))
		outcome, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobProgressing})
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
	})
}

func TestReconcileRetryBound(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("失敗 maxRetries+1 次後 FAILED 且只告警一次", func(t *testing.T) {
		const maxRetries = 2
		store := newTestStore(t)
		seedRecord(t, store, "v1", "job-0")
		sub := &fakeSubmitter{}
		alerter := &countingAlerter{}
		r := NewCompletionReconciler(store, sub, testBuilder, alerter, maxRetries, time.Second)

		var outcomes []Outcome
		for i := 0; i <= maxRetries; i++ {
			rec, err := store.GetByID(ctx, "v1")
			require.NoError(t, err)
			o, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: rec.JobID, Status: domain.JobError, ErrorCode: "DECODE", ErrorMessage: "bad frame"})
			require.NoError(t, err)
			outcomes = append(outcomes, o)
		}
		assert.Equal(t, []Outcome{OutcomeRetried, OutcomeRetried, OutcomeFailed}, outcomes)

		rec, err := store.GetByID(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, domain.VideoFailed, rec.Status)
		assert.Equal(t, maxRetries, rec.RetryCount)
		require.NotNil(t, rec.ErrorInfo)
		assert.Equal(t, "DECODE", rec.ErrorInfo.Code)
		assert.Nil(t, rec.CompletedAt)
		assert.Equal(t, maxRetries, sub.count())
		assert.Equal(t, 1, alerter.count())

		o, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: rec.JobID, Status: domain.JobError, ErrorCode: "DECODE"})
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, o)
		assert.Equal(t, 1, alerter.count())

		o, err = r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-0", Status: domain.JobError})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNotFound, o)
	})

	t.Run("併發重複 ERROR 只告警一次", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v2", "job-x")
		alerter := &countingAlerter{}
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, alerter, 0, time.Second)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-x", Status: domain.JobError})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, alerter.count())
		rec, _ := store.GetByID(ctx, "v2")
		require.NotNil(t, rec.ErrorInfo)
		assert.Equal(t, ErrCodeEncode, rec.ErrorInfo.Code)
	})

	t.Run("重送只包含缺少的 rendition", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v3", "job-p")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 3, time.Second)

		partial := outputsFor("v3", domain.TagFreePreview, domain.TagStandard480p)
		o, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-p", Status: domain.JobError, Outputs: partial})
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetried, o)

		req := sub.last()
		require.Len(t, req.Outputs, 2)
		assert.Equal(t, domain.TagPremium720p, req.Outputs[0].Tag)
		assert.Equal(t, domain.TagPremium1080p, req.Outputs[1].Tag)

		rec, _ := store.GetByID(ctx, "v3")
		assert.Equal(t, domain.VideoPending, rec.Status)
		assert.Equal(t, "job-1", rec.JobID)
		assert.Equal(t, 1, rec.RetryCount)
		assert.Len(t, rec.Renditions, 2)

		o, err = r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-1", Status: domain.JobComplete, Outputs: outputsFor("v3", domain.TagPremium720p, domain.TagPremium1080p)})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, o)
		rec, _ = store.GetByID(ctx, "v3")
		assert.Equal(t, domain.AllRenditionTags, rec.Renditions.Tags())
	})

	t.Run("ERROR 但輸出已齊全視為完成", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v4", "job-q")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 3, time.Second)

		o, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-q", Status: domain.JobError, Outputs: fullOutputs("v4")})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCompleted, o)
		assert.Equal(t, 0, sub.count())
	})

	t.Run("重送失敗回傳可重試錯誤且不改變紀錄", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v5", "job-r")
		r := NewCompletionReconciler(store, &fakeSubmitter{err: errors.New("engine down")}, testBuilder, &countingAlerter{}, 3, time.Second)

		_, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-r", Status: domain.JobError})
		assert.ErrorIs(t, err, domain.ErrSubmitJob)

		rec, _ := store.GetByID(ctx, "v5")
		assert.Equal(t, domain.VideoPending, rec.Status)
		assert.Equal(t, "job-r", rec.JobID)
		assert.Equal(t, 0, rec.RetryCount)
	})

	t.Run("送出失敗後重新投遞同一事件可再重送", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v7", "job-s")
		sub := &fakeSubmitter{err: errors.New("engine down")}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 3, time.Second)
		ev := domain.JobStatusEvent{JobID: "job-s", Status: domain.JobError}

		_, err := r.Reconcile(ctx, ev)
		require.ErrorIs(t, err, domain.ErrSubmitJob)

		sub.mu.Lock()
		sub.err = nil
		sub.mu.Unlock()
		o, err := r.Reconcile(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetried, o)

		rec, _ := store.GetByID(ctx, "v7")
		assert.Equal(t, "job-1", rec.JobID)
		assert.Equal(t, 1, rec.RetryCount)
	})

	t.Run("併發重複 ERROR 只重送一次", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v8", "job-z")
		sub := &fakeSubmitter{delay: 50 * time.Millisecond}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 3, time.Second)

		const workers = 5
		outcomes := make(chan Outcome, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				o, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-z", Status: domain.JobError})
				assert.NoError(t, err)
				outcomes <- o
			}()
		}
		wg.Wait()
		close(outcomes)

		counts := map[Outcome]int{}
		for o := range outcomes {
			counts[o]++
		}
		assert.Equal(t, 1, counts[OutcomeRetried])
		assert.Equal(t, workers-1, counts[OutcomeDuplicate]+counts[OutcomeNotFound])
		assert.Equal(t, 1, sub.count())

		rec, _ := store.GetByID(ctx, "v8")
		assert.Equal(t, domain.VideoPending, rec.Status)
		assert.Equal(t, "job-1", rec.JobID)
		assert.Equal(t, 1, rec.RetryCount)
	})

	t.Run("中斷的重送佔位逾時後由重新投遞接手", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v9", "job-h")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 3, time.Second, WithResubmitWindow(200*time.Millisecond))

		rec, _ := store.GetByID(ctx, "v9")
		held := rec.Clone()
		held.JobID = domain.ResubmitJobID("job-h")
		held.RetryCount = 1
		require.NoError(t, store.CompareAndSwap(ctx, held, rec.Version))

		ev := domain.JobStatusEvent{JobID: "job-h", Status: domain.JobError}
		o, err := r.Reconcile(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, o)
		assert.Equal(t, 0, sub.count())

		time.Sleep(250 * time.Millisecond)
		o, err = r.Reconcile(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetried, o)
		assert.Equal(t, 1, sub.count())
		assert.Len(t, sub.last().Outputs, len(domain.AllRenditionTags))

		rec, _ = store.GetByID(ctx, "v9")
		assert.Equal(t, "job-1", rec.JobID)
		assert.Equal(t, 1, rec.RetryCount)
	})

	t.Run("COMPLETE 沒有可解析輸出走失敗流程", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v6", "job-m")
		alerter := &countingAlerter{}
		anomalies := new(MockAnomalyRepo)
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, alerter, 0, time.Second, WithAnomalyLog(anomalies))

		ev := domain.JobStatusEvent{JobID: "job-m", Status: domain.JobComplete, Outputs: []domain.JobOutput{{LocationURI: "s3://videos/x/unknown.mp4"}}}
		o, err := r.Reconcile(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailed, o)

		rec, _ := store.GetByID(ctx, "v6")
		assert.Equal(t, domain.VideoFailed, rec.Status)
		assert.Equal(t, ErrCodeMalformedOutput, rec.ErrorInfo.Code)
		assert.Equal(t, 1, alerter.count())

		o, err = r.Reconcile(ctx, ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, o)
		anomalies.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})
}

func TestReconcileProgress(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	store := newTestStore(t)
	seedRecord(t, store, "v1", "job-a")
	notifier := new(MockStatusNotifier)
	notifier.On("Publish", mock.Anything, mock.MatchedBy(func(c domain.StatusChange) bool {
		return c.Status == domain.VideoProcessing
	})).Return(nil).Once()
	r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second, WithReconcileNotifier(notifier))

	o, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobProgressing})
	require.NoError(t, err)
	assert.Equal(t, OutcomeProgress, o)

	o, err = r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobProgressing})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, o)

	rec, _ := store.GetByID(ctx, "v1")
	assert.Equal(t, domain.VideoProcessing, rec.Status)
	notifier.AssertExpectations(t)
}

func TestReconcileCASExhausted(t *testing.T) {
	logger.SetNewNop()
	repo := new(MockVideoRepo)
	rec := domain.NewVideoRecord("v1", "original/v1/a.mp4", "job-a", time.Now())
	repo.On("GetByJobID", mock.Anything, "job-a").Return(rec, nil)
	repo.On("CompareAndSwap", mock.Anything, mock.Anything, int64(1)).Return(domain.ErrVersionConflict)
	r := NewCompletionReconciler(repo, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)

	_, err := r.Reconcile(context.Background(), domain.JobStatusEvent{JobID: "job-a", Status: domain.JobComplete, Outputs: fullOutputs("v1")})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	repo.AssertNumberOfCalls(t, "GetByJobID", maxCASAttempts)
}

func TestOperatorActions(t *testing.T) {
	logger.SetNewNop()
	ctx := context.Background()

	t.Run("Retry 只允許 FAILED", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v1", "job-a")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 0, time.Second)

		_, err := r.Retry(ctx, "v1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		_, err = r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-a", Status: domain.JobError, Outputs: outputsFor("v1", domain.TagFreePreview)})
		require.NoError(t, err)

		next, err := r.Retry(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, domain.VideoPending, next.Status)
		assert.Equal(t, 0, next.RetryCount)
		assert.Nil(t, next.ErrorInfo)
		assert.Equal(t, "job-1", next.JobID)
		assert.Len(t, sub.last().Outputs, 3)

		stored, _ := store.GetByID(ctx, "v1")
		assert.Equal(t, next.Version, stored.Version)
		assert.True(t, stored.Renditions.Has(domain.TagFreePreview))
	})

	t.Run("Reprocess 清空 renditions 並重送全部", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v2", "job-b")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 3, time.Second)

		_, err := r.Reprocess(ctx, "v2")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		_, err = r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-b", Status: domain.JobComplete, Outputs: fullOutputs("v2")})
		require.NoError(t, err)

		next, err := r.Reprocess(ctx, "v2")
		require.NoError(t, err)
		assert.Equal(t, domain.VideoPending, next.Status)
		assert.Empty(t, next.Renditions)
		assert.Nil(t, next.CompletedAt)
		assert.Empty(t, next.ThumbnailURL)
		assert.Len(t, sub.last().Outputs, len(domain.AllRenditionTags))
		assert.NotNil(t, sub.last().Thumbnail)
	})

	t.Run("併發 Retry 只送出一次", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v3", "job-c")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 0, time.Second)
		_, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-c", Status: domain.JobError})
		require.NoError(t, err)
		sub.mu.Lock()
		sub.delay = 50 * time.Millisecond
		sub.mu.Unlock()

		const workers = 4
		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.Retry(ctx, "v3")
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrVersionConflict), err.Error())
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, sub.count())
		rec, _ := store.GetByID(ctx, "v3")
		assert.Equal(t, "job-1", rec.JobID)
	})

	t.Run("Retry 送出失敗還原 FAILED", func(t *testing.T) {
		store := newTestStore(t)
		seedRecord(t, store, "v4", "job-d")
		sub := &fakeSubmitter{}
		r := NewCompletionReconciler(store, sub, testBuilder, &countingAlerter{}, 0, time.Second)
		_, err := r.Reconcile(ctx, domain.JobStatusEvent{JobID: "job-d", Status: domain.JobError, ErrorCode: "DECODE"})
		require.NoError(t, err)
		sub.mu.Lock()
		sub.err = errors.New("engine down")
		sub.mu.Unlock()

		_, err = r.Retry(ctx, "v4")
		assert.ErrorIs(t, err, domain.ErrSubmitJob)

		rec, _ := store.GetByID(ctx, "v4")
		assert.Equal(t, domain.VideoFailed, rec.Status)
		assert.Equal(t, "job-d", rec.JobID)
		require.NotNil(t, rec.ErrorInfo)
		assert.Equal(t, "DECODE", rec.ErrorInfo.Code)
	})

	t.Run("找不到影片", func(t *testing.T) {
		store := newTestStore(t)
		r := NewCompletionReconciler(store, &fakeSubmitter{}, testBuilder, &countingAlerter{}, 3, time.Second)
		_, err := r.Retry(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrVideoNotFound)
	})
}
