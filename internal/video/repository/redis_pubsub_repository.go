package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/database"
	"tiered_video_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StatusChannel redis channel for a video
func StatusChannel(videoID string) string {
	return "video:status:" + videoID
}

// RedisPubSub definition redis pub/sub for video status changes
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish 將 change 序列化後，發布到 video:status:<id>
func (r *RedisPubSub) Publish(ctx context.Context, change domain.StatusChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, StatusChannel(change.VideoID), data).Err()
}

// Subscribe 訂閱單一影片，ctx 結束時關閉訂閱與 channel
func (r *RedisPubSub) Subscribe(ctx context.Context, videoID string) (<-chan domain.StatusChange, error) {
	sub := r.client.Subscribe(ctx, StatusChannel(videoID))
	// 等待訂閱確認，避免訂閱前的 publish 遺失
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", StatusChannel(videoID), err)
	}

	out := make(chan domain.StatusChange, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var change domain.StatusChange
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					logger.Log.Warn("status payload decode failed", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// claimValue upload claim 內容
type claimValue struct {
	ClaimedAt time.Time `json:"claimed_at"`
}

// UploadClaim 以 SET NX 保證同一 videoId 同時只有一個 orchestrate
type UploadClaim struct {
	repo database.RedisRepository[claimValue]
	ttl  time.Duration
}

// NewUploadClaim create UploadClaim
func NewUploadClaim(client redis.UniversalClient, ttl time.Duration) *UploadClaim {
	return &UploadClaim{repo: database.NewRedisRepository[claimValue](client), ttl: ttl}
}

func claimKey(videoID string) string {
	return "upload:claim:" + videoID
}

// Claim 取得回傳 true
func (u *UploadClaim) Claim(ctx context.Context, videoID string) (bool, error) {
	return u.repo.SetNX(ctx, claimKey(videoID), claimValue{ClaimedAt: time.Now().UTC()}, u.ttl)
}

// Release 送出失敗時釋放，讓重送的通知可以重新處理
func (u *UploadClaim) Release(ctx context.Context, videoID string) error {
	return u.repo.Del(ctx, claimKey(videoID))
}
