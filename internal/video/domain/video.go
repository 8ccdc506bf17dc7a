package domain

import (
	"strings"
	"time"
)

// VideoStatus definition video lifecycle status
type VideoStatus string

const (
	// VideoPending 已送出轉碼工作，尚未收到任何進度
	VideoPending VideoStatus = "PENDING"
	// VideoProcessing 轉碼中
	VideoProcessing VideoStatus = "PROCESSING"
	// VideoCompleted 轉碼完成
	VideoCompleted VideoStatus = "COMPLETED"
	// VideoFailed 超過重試上限
	VideoFailed VideoStatus = "FAILED"
)

// IsTerminal COMPLETED / FAILED
func (s VideoStatus) IsTerminal() bool {
	return s == VideoCompleted || s == VideoFailed
}

// Valid 是否為已知狀態
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoPending, VideoProcessing, VideoCompleted, VideoFailed:
		return true
	}
	return false
}

// RenditionTag 轉碼輸出的識別
type RenditionTag string

const (
	// TagFreePreview 免費試看片段
	TagFreePreview RenditionTag = "free_preview"
	// TagStandard480p 標準方案
	TagStandard480p RenditionTag = "standard_480p"
	// TagPremium720p 進階方案預設畫質
	TagPremium720p RenditionTag = "premium_720p"
	// TagPremium1080p 進階方案最高畫質
	TagPremium1080p RenditionTag = "premium_1080p"
)

// AllRenditionTags 系統支援的所有輸出，依 tier 由低到高
var AllRenditionTags = []RenditionTag{TagFreePreview, TagStandard480p, TagPremium720p, TagPremium1080p}

// Valid 是否為已知 tag
func (t RenditionTag) Valid() bool {
	for _, tag := range AllRenditionTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Renditions rendition tag -> output locator
type Renditions map[RenditionTag]string

// Has tag 是否已產出
func (r Renditions) Has(tag RenditionTag) bool {
	loc, ok := r[tag]
	return ok && loc != ""
}

// Tags 已產出的 tag，依 AllRenditionTags 排序
func (r Renditions) Tags() []RenditionTag {
	tags := make([]RenditionTag, 0, len(r))
	for _, tag := range AllRenditionTags {
		if r.Has(tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Missing 尚未產出的 tag
func (r Renditions) Missing() []RenditionTag {
	var missing []RenditionTag
	for _, tag := range AllRenditionTags {
		if !r.Has(tag) {
			missing = append(missing, tag)
		}
	}
	return missing
}

// Equal 內容相同
func (r Renditions) Equal(o Renditions) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// ErrorInfo FAILED 時記錄的錯誤原因
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VideoRecord 每個上傳來源檔一筆
type VideoRecord struct {
	VideoID         string      `gorm:"primaryKey;type:varchar(64)" json:"video_id"`
	SourceLocation  string      `gorm:"not null" json:"source_location"`
	Status          VideoStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	JobID           string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"job_id"`
	Renditions      Renditions  `gorm:"serializer:json" json:"renditions"`
	ThumbnailURL    string      `json:"thumbnail_url,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	ErrorInfo       *ErrorInfo  `gorm:"serializer:json" json:"error_info,omitempty"`
	RetryCount      int         `gorm:"not null;default:0" json:"retry_count"`
	// Version 每次條件寫入 +1，作為 compare-and-swap 的依據
	Version     int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName gorm table name
func (VideoRecord) TableName() string {
	return "video_records"
}

// resubmitPrefix 重送進行中時暫存在 job_id，保留原 jobId 讓重複事件仍能對應到紀錄
const resubmitPrefix = "resubmit:"

// ResubmitJobID 重送佔位 jobId，已是佔位時原樣回傳
func ResubmitJobID(jobID string) string {
	if IsResubmitJobID(jobID) {
		return jobID
	}
	return resubmitPrefix + jobID
}

// IsResubmitJobID jobId 是否為重送佔位
func IsResubmitJobID(jobID string) bool {
	return strings.HasPrefix(jobID, resubmitPrefix)
}

// ResubmitStale 佔位超過 window 未完成，視為持有者已中斷
func (v *VideoRecord) ResubmitStale(now time.Time, window time.Duration) bool {
	return IsResubmitJobID(v.JobID) && now.Sub(v.UpdatedAt) >= window
}

// NewVideoRecord 建立 PENDING 狀態的紀錄
func NewVideoRecord(videoID, sourceLocation, jobID string, now time.Time) *VideoRecord {
	return &VideoRecord{
		VideoID:        videoID,
		SourceLocation: sourceLocation,
		Status:         VideoPending,
		JobID:          jobID,
		Renditions:     Renditions{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone deep copy，CAS 前修改副本避免污染讀到的狀態
func (v *VideoRecord) Clone() *VideoRecord {
	c := *v
	c.Renditions = make(Renditions, len(v.Renditions))
	for k, loc := range v.Renditions {
		c.Renditions[k] = loc
	}
	if v.ErrorInfo != nil {
		e := *v.ErrorInfo
		c.ErrorInfo = &e
	}
	if v.CompletedAt != nil {
		t := *v.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// MergeRenditions append-only 合併，已存在的 tag 不覆寫；回傳新增數量
func (v *VideoRecord) MergeRenditions(in Renditions) int {
	if v.Renditions == nil {
		v.Renditions = Renditions{}
	}
	added := 0
	for tag, loc := range in {
		if v.Renditions.Has(tag) || loc == "" {
			continue
		}
		v.Renditions[tag] = loc
		added++
	}
	return added
}

// ListFilter list 查詢條件
type ListFilter struct {
	Status VideoStatus
	Page   int
	Limit  int
}

// Normalize 補上預設分頁
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 12
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Offset 分頁起點
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}
