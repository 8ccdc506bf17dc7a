package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"
	"tiered_video_service/pkg/database"
	"tiered_video_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVideoRepo mock repository.VideoRepo
type MockVideoRepo struct {
	mock.Mock
}

func (m *MockVideoRepo) AutoMigrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockVideoRepo) Create(ctx context.Context, video *domain.VideoRecord) error {
	return m.Called(ctx, video).Error(0)
}

func (m *MockVideoRepo) GetByID(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.VideoRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVideoRepo) GetByJobID(ctx context.Context, jobID string) (*domain.VideoRecord, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.VideoRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVideoRepo) CompareAndSwap(ctx context.Context, next *domain.VideoRecord, expectedVersion int64) error {
	return m.Called(ctx, next, expectedVersion).Error(0)
}

func (m *MockVideoRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.VideoRecord, int64, error) {
	args := m.Called(ctx, filter)
	var videos []domain.VideoRecord
	if args.Get(0) != nil {
		videos = args.Get(0).([]domain.VideoRecord)
	}
	return videos, args.Get(1).(int64), args.Error(2)
}

// MockJobSubmitter mock 轉碼服務
type MockJobSubmitter struct {
	mock.Mock
}

func (m *MockJobSubmitter) SubmitJob(ctx context.Context, req domain.EncodeJobRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockUploadClaimer mock redis claim
type MockUploadClaimer struct {
	mock.Mock
}

func (m *MockUploadClaimer) Claim(ctx context.Context, videoID string) (bool, error) {
	args := m.Called(ctx, videoID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUploadClaimer) Release(ctx context.Context, videoID string) error {
	return m.Called(ctx, videoID).Error(0)
}

// MockAlerter mock 告警通道
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, alert domain.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

// MockAnomalyRepo mock anomaly log
type MockAnomalyRepo struct {
	mock.Mock
}

func (m *MockAnomalyRepo) Insert(ctx context.Context, a domain.Anomaly) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockAnomalyRepo) List(ctx context.Context, videoID string, limit int64) ([]domain.Anomaly, error) {
	args := m.Called(ctx, videoID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Anomaly), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockStatusNotifier mock 狀態推播
type MockStatusNotifier struct {
	mock.Mock
}

func (m *MockStatusNotifier) Publish(ctx context.Context, change domain.StatusChange) error {
	return m.Called(ctx, change).Error(0)
}

func (m *MockStatusNotifier) Subscribe(ctx context.Context, videoID string) (<-chan domain.StatusChange, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) != nil {
		return args.Get(0).(<-chan domain.StatusChange), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockEntitlementResolver mock 身分服務
type MockEntitlementResolver struct {
	mock.Mock
}

func (m *MockEntitlementResolver) Resolve(ctx context.Context, userID string) (domain.EntitlementView, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.EntitlementView), args.Error(1)
}

// MockObjectStore mock MinIO
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	return m.Called(ctx, objectName, reader, size, contentType).Error(0)
}

func (m *MockObjectStore) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

// MockOrchestrator mock JobOrchestrator
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Orchestrate(ctx context.Context, n domain.UploadNotification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

// MockReconciler mock CompletionReconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, ev domain.JobStatusEvent) (Outcome, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(Outcome), args.Error(1)
}

func (m *MockReconciler) Retry(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.VideoRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReconciler) Reprocess(ctx context.Context, videoID string) (*domain.VideoRecord, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.VideoRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeSubmitter 依序發 job id，記錄每次送出的內容
type fakeSubmitter struct {
	mu    sync.Mutex
	reqs  []domain.EncodeJobRequest
	err   error
	delay time.Duration
}

func (f *fakeSubmitter) SubmitJob(_ context.Context, req domain.EncodeJobRequest) (string, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	return fmt.Sprintf("job-%d", len(f.reqs)), nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeSubmitter) last() domain.EncodeJobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

// countingAlerter 記錄告警次數
type countingAlerter struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (a *countingAlerter) Alert(_ context.Context, alert domain.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *countingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

// fakeAcknowledger amqp.Acknowledger
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue []bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked++
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	return f.Nack(0, false, requeue)
}

// fakeFetcher 依序回傳訊息，用完後阻塞到 ctx 結束
type fakeFetcher struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

// newTestStore 真實 sqlite store，用於 CAS 併發測試
func newTestStore(t *testing.T) repository.VideoRepo {
	logger.SetNewNop()
	db, err := database.NewSQLiteConnection(filepath.Join(t.TempDir(), "videos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewSqliteVideoRepo(db)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

var testBuilder = NewRenditionSpecBuilder("s3://videos", 10)

// fullOutputs 一個 job 全部成功的輸出
func fullOutputs(videoID string) []domain.JobOutput {
	var outs []domain.JobOutput
	for _, tag := range domain.AllRenditionTags {
		outs = append(outs, domain.JobOutput{LocationURI: testBuilder.OutputLocation(videoID, tag), DurationMs: 62_500})
	}
	outs = append(outs, domain.JobOutput{LocationURI: "s3://videos/thumbnails/" + videoID + "_thumbnail.0000000.jpg"})
	return outs
}

func outputsFor(videoID string, tags ...domain.RenditionTag) []domain.JobOutput {
	outs := make([]domain.JobOutput, 0, len(tags))
	for _, tag := range tags {
		outs = append(outs, domain.JobOutput{LocationURI: testBuilder.OutputLocation(videoID, tag)})
	}
	return outs
}
