package domain

import "time"

// UploadNotification 上傳完成通知，videoId 可省略
type UploadNotification struct {
	SourceLocation string `json:"sourceLocation"`
	VideoID        string `json:"videoId,omitempty"`
}

// JobStatus 轉碼服務回報的狀態
type JobStatus string

const (
	// JobComplete 工作完成
	JobComplete JobStatus = "COMPLETE"
	// JobError 工作失敗
	JobError JobStatus = "ERROR"
	// JobProgressing 工作開始處理
	JobProgressing JobStatus = "PROGRESSING"
)

// JobOutput 單一輸出檔
type JobOutput struct {
	Tag         string `json:"tag,omitempty"`
	LocationURI string `json:"locationUri"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// JobStatusEvent 轉碼服務非同步回報，可能重複、亂序或延遲
type JobStatusEvent struct {
	JobID        string      `json:"jobId"`
	Status       JobStatus   `json:"status"`
	Outputs      []JobOutput `json:"outputs,omitempty"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// RenditionSpec 單一輸出規格
type RenditionSpec struct {
	Tag          RenditionTag `json:"tag"`
	Tier         Tier         `json:"tier"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	VideoBitrate int          `json:"videoBitrate"`
	AudioBitrate int          `json:"audioBitrate"`
	// MaxDurationSeconds 0 表示不裁切
	MaxDurationSeconds int    `json:"maxDurationSeconds,omitempty"`
	Destination        string `json:"destination"`
	NameModifier       string `json:"nameModifier"`
}

// ThumbnailSpec 縮圖擷取規格
type ThumbnailSpec struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Destination string `json:"destination"`
	MaxCaptures int    `json:"maxCaptures"`
}

// EncodeJobRequest 送往轉碼服務的工作
type EncodeJobRequest struct {
	JobID          string          `json:"jobId"`
	VideoID        string          `json:"videoId"`
	SourceLocation string          `json:"sourceLocation"`
	Outputs        []RenditionSpec `json:"outputs"`
	Thumbnail      *ThumbnailSpec  `json:"thumbnail,omitempty"`
	SubmittedAt    time.Time       `json:"submittedAt"`
}

// StatusChange 狀態異動通知，推送給 websocket 訂閱者
type StatusChange struct {
	VideoID string      `json:"videoId"`
	Status  VideoStatus `json:"status"`
	JobID   string      `json:"jobId"`
	At      time.Time   `json:"at"`
}

// Anomaly 終態後收到矛盾事件的稽核紀錄
type Anomaly struct {
	VideoID      string      `bson:"video_id" json:"video_id"`
	JobID        string      `bson:"job_id" json:"job_id"`
	StoredStatus VideoStatus `bson:"stored_status" json:"stored_status"`
	EventStatus  JobStatus   `bson:"event_status" json:"event_status"`
	Detail       string      `bson:"detail" json:"detail"`
	ObservedAt   time.Time   `bson:"observed_at" json:"observed_at"`
}

// Alert 超過重試上限時送給營運人員
type Alert struct {
	VideoID    string    `json:"videoId"`
	JobID      string    `json:"jobId"`
	RetryCount int       `json:"retryCount"`
	ErrorCode  string    `json:"errorCode"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raisedAt"`
}
