package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"
	errprocess "tiered_video_service/pkg/err"
	"tiered_video_service/pkg/logger"
	"tiered_video_service/pkg/metrics"

	"go.uber.org/zap"
)

// Outcome reconciler 對單一事件的處理結果
type Outcome string

const (
	OutcomeCompleted Outcome = "applied_completed"
	OutcomeFailed    Outcome = "applied_failed"
	OutcomeRetried   Outcome = "retried"
	OutcomeProgress  Outcome = "progress"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeConflict  Outcome = "conflict"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeIgnored   Outcome = "ignored"
)

const (
	// ErrCodeMalformedOutput COMPLETE 事件沒有任何可解析輸出
	ErrCodeMalformedOutput = "MALFORMED_OUTPUT"
	// ErrCodeEncode ERROR 事件未帶 errorCode
	ErrCodeEncode = "ENCODE_ERROR"

	maxCASAttempts = 3
	// resubmitWindowFactor 佔位超過 submitTimeout 的倍數仍未完成即可被接手
	resubmitWindowFactor = 3
)

// CompletionReconciler 套用轉碼狀態事件，並提供營運人員的 retry / reprocess
type CompletionReconciler interface {
	Reconcile(ctx context.Context, ev domain.JobStatusEvent) (Outcome, error)
	// Retry FAILED -> PENDING，只重送缺少的 rendition，retryCount 歸零
	Retry(ctx context.Context, videoID string) (*domain.VideoRecord, error)
	// Reprocess COMPLETED -> PENDING，清空 renditions 並重送全部
	Reprocess(ctx context.Context, videoID string) (*domain.VideoRecord, error)
}

type completionReconciler struct {
	repo           repository.VideoRepo
	submitter      JobSubmitter
	builder        *RenditionSpecBuilder
	alerter        Alerter
	anomalies      repository.AnomalyRepo
	notifier       StatusNotifier
	maxRetries     int
	submitTimeout  time.Duration
	resubmitWindow time.Duration
}

// ReconcilerOption optional collaborators
type ReconcilerOption func(*completionReconciler)

// WithAnomalyLog 矛盾事件寫入稽核紀錄
func WithAnomalyLog(r repository.AnomalyRepo) ReconcilerOption {
	return func(c *completionReconciler) { c.anomalies = r }
}

// WithReconcileNotifier 狀態異動推播
func WithReconcileNotifier(n StatusNotifier) ReconcilerOption {
	return func(c *completionReconciler) { c.notifier = n }
}

// WithResubmitWindow 重送佔位多久未完成視為中斷
func WithResubmitWindow(d time.Duration) ReconcilerOption {
	return func(c *completionReconciler) {
		if d > 0 {
			c.resubmitWindow = d
		}
	}
}

// NewCompletionReconciler 建立 CompletionReconciler
func NewCompletionReconciler(
	repo repository.VideoRepo,
	submitter JobSubmitter,
	builder *RenditionSpecBuilder,
	alerter Alerter,
	maxRetries int,
	submitTimeout time.Duration,
	opts ...ReconcilerOption,
) CompletionReconciler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if submitTimeout <= 0 {
		submitTimeout = 5 * time.Second
	}
	c := &completionReconciler{
		repo:           repo,
		submitter:      submitter,
		builder:        builder,
		alerter:        alerter,
		maxRetries:     maxRetries,
		submitTimeout:  submitTimeout,
		resubmitWindow: resubmitWindowFactor * submitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reconcile lookup 與條件寫入在 version 衝突時重新讀取，最多 maxCASAttempts 次
func (c *completionReconciler) Reconcile(ctx context.Context, ev domain.JobStatusEvent) (Outcome, error) {
	log := logger.Log.With(zap.String("job_id", ev.JobID), zap.String("event_status", string(ev.Status)))

	var lastErr error
	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		rec, err := c.repo.GetByJobID(ctx, ev.JobID)
		if errors.Is(err, domain.ErrVideoNotFound) {
			rec, err = c.repo.GetByJobID(ctx, domain.ResubmitJobID(ev.JobID))
			if errors.Is(err, domain.ErrVideoNotFound) {
				log.Info("no record for job, event dropped")
				return c.finish(OutcomeNotFound), nil
			}
		}
		if err != nil {
			return "", errprocess.Wrap(err, fmt.Sprintf("jobID[%s] 查詢影片失敗", ev.JobID))
		}

		var outcome Outcome
		if domain.IsResubmitJobID(rec.JobID) {
			outcome, err = c.resume(ctx, rec, ev, log.With(zap.String("video_id", rec.VideoID)))
		} else {
			outcome, err = c.apply(ctx, rec, ev, log.With(zap.String("video_id", rec.VideoID)))
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			lastErr = err
			log.Debug("cas conflict, reloading", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return "", err
		}
		return c.finish(outcome), nil
	}
	return "", errprocess.Wrap(lastErr, fmt.Sprintf("jobID[%s] 條件寫入重試 %d 次仍衝突", ev.JobID, maxCASAttempts))
}

func (c *completionReconciler) finish(o Outcome) Outcome {
	metrics.RecordReconcile(string(o))
	return o
}

func (c *completionReconciler) apply(ctx context.Context, rec *domain.VideoRecord, ev domain.JobStatusEvent, log *logger.LogInfo) (Outcome, error) {
	if rec.Status.IsTerminal() {
		return c.compareTerminal(ctx, rec, ev, log), nil
	}

	switch ev.Status {
	case domain.JobProgressing:
		if rec.Status != domain.VideoPending {
			return OutcomeDuplicate, nil
		}
		next := rec.Clone()
		next.Status = domain.VideoProcessing
		if err := c.repo.CompareAndSwap(ctx, next, rec.Version); err != nil {
			return "", err
		}
		c.publish(ctx, next, log)
		return OutcomeProgress, nil

	case domain.JobComplete:
		parsed := ParseOutputs(ev.Outputs)
		if len(parsed.Rejected) > 0 {
			log.Warn("unparseable outputs", zap.Strings("locations", parsed.Rejected))
		}
		if len(parsed.Renditions) == 0 {
			log.Warn("complete event without parseable outputs, escalating to failure")
			return c.fail(ctx, rec, parsed, ErrCodeMalformedOutput, "job completed without any recognizable rendition", log)
		}
		next := rec.Clone()
		next.MergeRenditions(parsed.Renditions)
		c.complete(next, parsed)
		if err := c.repo.CompareAndSwap(ctx, next, rec.Version); err != nil {
			return "", err
		}
		log.Info("job completed", zap.Int("renditions", len(next.Renditions)))
		c.publish(ctx, next, log)
		return OutcomeCompleted, nil

	case domain.JobError:
		code := ev.ErrorCode
		if code == "" {
			code = ErrCodeEncode
		}
		return c.fail(ctx, rec, ParseOutputs(ev.Outputs), code, ev.ErrorMessage, log)
	}

	log.Warn("unknown job status, event dropped")
	return OutcomeIgnored, nil
}

func (c *completionReconciler) complete(next *domain.VideoRecord, parsed ParsedOutputs) {
	now := nowFunc()
	next.Status = domain.VideoCompleted
	next.CompletedAt = &now
	next.ErrorInfo = nil
	if parsed.ThumbnailURL != "" && next.ThumbnailURL == "" {
		next.ThumbnailURL = parsed.ThumbnailURL
	}
	if parsed.DurationSeconds > 0 {
		next.DurationSeconds = parsed.DurationSeconds
	}
}

// fail 在重試額度內重送缺少的 rendition，否則進入 FAILED 並告警一次
func (c *completionReconciler) fail(ctx context.Context, rec *domain.VideoRecord, parsed ParsedOutputs, code, message string, log *logger.LogInfo) (Outcome, error) {
	next := rec.Clone()
	next.MergeRenditions(parsed.Renditions)
	missing := next.Renditions.Missing()

	if len(missing) == 0 {
		log.Info("error event but every rendition is present, completing")
		c.complete(next, parsed)
		if err := c.repo.CompareAndSwap(ctx, next, rec.Version); err != nil {
			return "", err
		}
		c.publish(ctx, next, log)
		return OutcomeCompleted, nil
	}

	if rec.RetryCount < c.maxRetries {
		next.RetryCount = rec.RetryCount + 1
		next.Status = domain.VideoPending
		if err := c.resubmit(ctx, rec, next, missing, log); err != nil {
			if errors.Is(err, domain.ErrSubmitJob) {
				return "", errprocess.Wrap(err, fmt.Sprintf("videoID[%s] 重送轉碼工作失敗", rec.VideoID))
			}
			return "", err
		}
		log.Info("encode failed, resubmitted",
			zap.String("error_code", code),
			zap.String("new_job_id", next.JobID),
			zap.Int("retry_count", next.RetryCount),
			zap.Int("missing", len(missing)),
		)
		c.publish(ctx, next, log)
		return OutcomeRetried, nil
	}

	next.Status = domain.VideoFailed
	next.ErrorInfo = &domain.ErrorInfo{Code: code, Message: message}
	if err := c.repo.CompareAndSwap(ctx, next, rec.Version); err != nil {
		return "", err
	}
	log.Error("encode failed permanently",
		zap.String("error_code", code),
		zap.String("error_message", message),
		zap.Int("retry_count", next.RetryCount),
	)
	c.publish(ctx, next, log)

	alert := domain.Alert{
		VideoID:    next.VideoID,
		JobID:      next.JobID,
		RetryCount: next.RetryCount,
		ErrorCode:  code,
		Message:    message,
		RaisedAt:   nowFunc(),
	}
	if c.alerter != nil {
		if err := c.alerter.Alert(ctx, alert); err != nil {
			log.Error("operator alert failed", zap.Error(err))
		}
	}
	return OutcomeFailed, nil
}

// compareTerminal 終態後的事件：一致則視為重送，矛盾則記錄 anomaly，皆不寫入
func (c *completionReconciler) compareTerminal(ctx context.Context, rec *domain.VideoRecord, ev domain.JobStatusEvent, log *logger.LogInfo) Outcome {
	if ev.Status == domain.JobProgressing {
		log.Debug("late progress event after terminal state")
		return OutcomeIgnored
	}

	detail := ""
	parsed := ParseOutputs(ev.Outputs)
	switch rec.Status {
	case domain.VideoCompleted:
		if ev.Status != domain.JobComplete {
			detail = fmt.Sprintf("stored COMPLETED, event %s (%s)", ev.Status, ev.ErrorCode)
			break
		}
		if len(parsed.Renditions) == 0 {
			detail = fmt.Sprintf("stored COMPLETED, event COMPLETE without parseable outputs (%d rejected)", len(parsed.Rejected))
			break
		}
		for tag, loc := range parsed.Renditions {
			if stored, ok := rec.Renditions[tag]; !ok || stored != loc {
				detail = fmt.Sprintf("rendition %s: stored %q, event %q", tag, stored, loc)
				break
			}
		}
	case domain.VideoFailed:
		switch {
		case ev.Status == domain.JobError:
			code := ev.ErrorCode
			if code == "" {
				code = ErrCodeEncode
			}
			if rec.ErrorInfo != nil && rec.ErrorInfo.Code != code {
				detail = fmt.Sprintf("stored error %s, event error %s", rec.ErrorInfo.Code, code)
			}
		case ev.Status == domain.JobComplete && len(parsed.Renditions) == 0 &&
			rec.ErrorInfo != nil && rec.ErrorInfo.Code == ErrCodeMalformedOutput:
		default:
			detail = fmt.Sprintf("stored FAILED, event %s", ev.Status)
		}
	}

	if detail == "" {
		log.Debug("duplicate terminal event dropped")
		return OutcomeDuplicate
	}

	log.Warn("conflicting event for settled record dropped",
		zap.String("stored_status", string(rec.Status)),
		zap.String("detail", detail),
	)
	if c.anomalies != nil {
		anomaly := domain.Anomaly{
			VideoID:      rec.VideoID,
			JobID:        ev.JobID,
			StoredStatus: rec.Status,
			EventStatus:  ev.Status,
			Detail:       detail,
			ObservedAt:   nowFunc(),
		}
		if err := c.anomalies.Insert(ctx, anomaly); err != nil {
			log.Error("anomaly log write failed", zap.Error(err))
		}
	}
	return OutcomeConflict
}

// resubmit 先以 CAS 把 jobId 換成佔位取得送出權，送出成功後再換成新的 jobId。
// 同一份紀錄同時只會有一個送出在進行；送出失敗時還原成 rec
func (c *completionReconciler) resubmit(ctx context.Context, rec, next *domain.VideoRecord, tags []domain.RenditionTag, log *logger.LogInfo) error {
	held := next.Clone()
	held.JobID = domain.ResubmitJobID(rec.JobID)
	if err := c.repo.CompareAndSwap(ctx, held, rec.Version); err != nil {
		return err
	}

	jobID, err := c.submit(ctx, held, tags)
	if err != nil {
		if rbErr := c.repo.CompareAndSwap(context.WithoutCancel(ctx), rec.Clone(), held.Version); rbErr != nil {
			log.Error("release resubmit reservation failed", zap.Error(rbErr))
		}
		return err
	}

	next.JobID = jobID
	if err := c.repo.CompareAndSwap(ctx, next, held.Version); err != nil {
		log.Warn("resubmitted job orphaned by concurrent update", zap.String("orphan_job_id", jobID))
		return err
	}
	return nil
}

// resume 佔位仍在時間內代表另一個送出進行中；超時則接手完成送出
func (c *completionReconciler) resume(ctx context.Context, rec *domain.VideoRecord, ev domain.JobStatusEvent, log *logger.LogInfo) (Outcome, error) {
	if ev.Status == domain.JobProgressing || !rec.ResubmitStale(nowFunc(), c.resubmitWindow) {
		log.Debug("resubmit in flight, event dropped")
		return OutcomeDuplicate, nil
	}

	log.Warn("taking over stale resubmit", zap.Time("reserved_at", rec.UpdatedAt))
	next := rec.Clone()
	if err := c.resubmit(ctx, rec, next, missingOrAll(rec.Renditions), log); err != nil {
		if errors.Is(err, domain.ErrSubmitJob) {
			return "", errprocess.Wrap(err, fmt.Sprintf("videoID[%s] 接手重送失敗", rec.VideoID))
		}
		return "", err
	}
	log.Info("stale resubmit completed", zap.String("new_job_id", next.JobID), zap.Int("retry_count", next.RetryCount))
	c.publish(ctx, next, log)
	return OutcomeRetried, nil
}

func missingOrAll(r domain.Renditions) []domain.RenditionTag {
	if missing := r.Missing(); len(missing) > 0 {
		return missing
	}
	return domain.AllRenditionTags
}

func (c *completionReconciler) submit(ctx context.Context, rec *domain.VideoRecord, tags []domain.RenditionTag) (string, error) {
	req := domain.EncodeJobRequest{
		VideoID:        rec.VideoID,
		SourceLocation: rec.SourceLocation,
		Outputs:        c.builder.ForTags(rec.VideoID, tags),
		SubmittedAt:    nowFunc(),
	}
	if rec.ThumbnailURL == "" {
		req.Thumbnail = c.builder.Thumbnail(rec.VideoID)
	}
	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()
	jobID, err := c.submitter.SubmitJob(submitCtx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrSubmitJob, err)
	}
	return jobID, nil
}

func (c *completionReconciler) publish(ctx context.Context, rec *domain.VideoRecord, log *logger.LogInfo) {
	if c.notifier == nil {
		return
	}
	change := domain.StatusChange{VideoID: rec.VideoID, Status: rec.Status, JobID: rec.JobID, At: nowFunc()}
	if err := c.notifier.Publish(ctx, change); err != nil {
		log.Warn("publish status failed", zap.Error(err))
	}
}

// Retry 也可接手逾時未完成的重送佔位
func (c *completionReconciler) Retry(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	rec, err := c.repo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.VideoFailed && !rec.ResubmitStale(nowFunc(), c.resubmitWindow) {
		return nil, fmt.Errorf("videoID[%s] status %s: %w", videoID, rec.Status, domain.ErrInvalidTransition)
	}
	missing := missingOrAll(rec.Renditions)
	log := logger.Log.With(zap.String("video_id", videoID))

	next := rec.Clone()
	next.Status = domain.VideoPending
	next.RetryCount = 0
	next.ErrorInfo = nil
	if err := c.resubmit(ctx, rec, next, missing, log); err != nil {
		if errors.Is(err, domain.ErrSubmitJob) {
			return nil, errprocess.Wrap(err, fmt.Sprintf("videoID[%s] retry 送出失敗", videoID))
		}
		return nil, err
	}
	log.Info("operator retry", zap.String("job_id", next.JobID), zap.Int("outputs", len(missing)))
	c.publish(ctx, next, log)
	return next, nil
}

func (c *completionReconciler) Reprocess(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	rec, err := c.repo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.VideoCompleted {
		return nil, fmt.Errorf("videoID[%s] status %s: %w", videoID, rec.Status, domain.ErrInvalidTransition)
	}
	log := logger.Log.With(zap.String("video_id", videoID))

	next := rec.Clone()
	next.Status = domain.VideoPending
	next.Renditions = domain.Renditions{}
	next.ThumbnailURL = ""
	next.DurationSeconds = 0
	next.CompletedAt = nil
	next.ErrorInfo = nil
	next.RetryCount = 0
	if err := c.resubmit(ctx, rec, next, domain.AllRenditionTags, log); err != nil {
		if errors.Is(err, domain.ErrSubmitJob) {
			return nil, errprocess.Wrap(err, fmt.Sprintf("videoID[%s] reprocess 送出失敗", videoID))
		}
		return nil, err
	}
	log.Info("operator reprocess", zap.String("job_id", next.JobID))
	c.publish(ctx, next, log)
	return next, nil
}
