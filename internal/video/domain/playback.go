package domain

import "io"

// Decision resolver 結果類型
type Decision string

const (
	// DecisionOK 完全符合
	DecisionOK Decision = "OK"
	// DecisionDegraded 以較低但仍符合方案的畫質提供
	DecisionDegraded Decision = "DEGRADED"
	// DecisionUnavailable 無法提供
	DecisionUnavailable Decision = "UNAVAILABLE"
)

// Unavailable reasons
const (
	ReasonProcessing  = "processing"
	ReasonFailed      = "failed"
	ReasonNotProduced = "not yet produced"
	ReasonUnknownTier = "unknown tier"
)

// ResolveResult TierResolver 的輸出
type ResolveResult struct {
	Decision     Decision     `json:"decision"`
	RenditionTag RenditionTag `json:"renditionTag,omitempty"`
	Locator      string       `json:"locator,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// Playable OK 或 DEGRADED
func (r ResolveResult) Playable() bool {
	return r.Decision == DecisionOK || r.Decision == DecisionDegraded
}

// PlaybackRes usecase 回傳給 handler 的播放資訊
type PlaybackRes struct {
	VideoID            string       `json:"video_id"`
	Decision           Decision     `json:"decision"`
	Degraded           bool         `json:"degraded"`
	Reason             string       `json:"reason,omitempty"`
	Tier               Tier         `json:"tier"`
	Quality            RenditionTag `json:"quality,omitempty"`
	URL                string       `json:"url,omitempty"`
	MaxDurationSeconds *int         `json:"max_duration_seconds"`
	AvailableQualities []Quality    `json:"available_qualities"`
	ThumbnailURL       string       `json:"thumbnail_url,omitempty"`
	DurationSeconds    float64      `json:"duration_seconds,omitempty"`
}

// UploadVideoRes usecase upload video response
type UploadVideoRes struct {
	Message string `json:"msg"`
	VideoID string `json:"video_id"`
}

// UploadVideoReq handler 傳入的上傳內容
type UploadVideoReq struct {
	FileName    string
	ContentType string
	Size        int64
	File        io.Reader
}

// VideoListRes list 回傳
type VideoListRes struct {
	Videos []VideoRecord `json:"videos"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}
