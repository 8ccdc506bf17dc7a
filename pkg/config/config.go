package config

import "time"

// Streaming definition streaming_service / transcode_worker / videoctl YAML structure
type Streaming struct {
	Port       string `mapstructure:"port"`
	IP         string `mapstructure:"ip"`
	HealthPort string `mapstructure:"health_port"`

	// Store 選擇 metadata store backend: "postgres" 或 "sqlite"
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MemberDB   DatabaseConfig `mapstructure:"member_pg"`
	Mongo      DatabaseConfig `mapstructure:"mongo"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`
	KafKa      KafkaConfig    `mapstructure:"kafka"`

	Transcode   TranscodeConfig   `mapstructure:"transcode"`
	Delivery    DeliveryConfig    `mapstructure:"delivery"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	// Addr 有值時使用單機連線，否則走 .env 的 sentinel 設定
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket_name"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string        `mapstructure:"ip"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	TranscodeQ    string        `mapstructure:"transcode_queue"`
	UploadQ       string        `mapstructure:"upload_queue"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	StatusTopic   string        `mapstructure:"status_topic"`
	AlertTopic    string        `mapstructure:"alert_topic"`
	GroupID       string        `mapstructure:"group_id"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// TranscodeConfig 轉碼工作的重試與送出策略
type TranscodeConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	SubmitRate     float64       `mapstructure:"submit_rate"`
	SubmitBurst    int           `mapstructure:"submit_burst"`
	OutputPrefix   string        `mapstructure:"output_prefix"`
	PreviewSeconds int           `mapstructure:"preview_seconds"`
	ClaimTTL       time.Duration `mapstructure:"claim_ttl"`
}

// DeliveryConfig 播放連結的簽章效期
type DeliveryConfig struct {
	FreeURLExpiry time.Duration `mapstructure:"free_url_expiry"`
	PaidURLExpiry time.Duration `mapstructure:"paid_url_expiry"`
}

// EntitlementConfig 訂閱方案快取設定
type EntitlementConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Defaults 補齊未設定的欄位
func (s *Streaming) Defaults() {
	if s.Store == "" {
		s.Store = "postgres"
	}
	if s.SQLitePath == "" {
		s.SQLitePath = "./data/videos.db"
	}
	if s.HealthPort == "" {
		s.HealthPort = "50061"
	}
	if s.RabbitMQ.TranscodeQ == "" {
		s.RabbitMQ.TranscodeQ = "transcode"
	}
	if s.RabbitMQ.UploadQ == "" {
		s.RabbitMQ.UploadQ = "upload"
	}
	if s.KafKa.StatusTopic == "" {
		s.KafKa.StatusTopic = "transcode.status"
	}
	if s.KafKa.AlertTopic == "" {
		s.KafKa.AlertTopic = "ops.alerts"
	}
	if s.KafKa.GroupID == "" {
		s.KafKa.GroupID = "completion-reconciler"
	}
	if s.Transcode.MaxRetries <= 0 {
		s.Transcode.MaxRetries = 3
	}
	if s.Transcode.SubmitTimeout <= 0 {
		s.Transcode.SubmitTimeout = 5 * time.Second
	}
	if s.Transcode.SubmitRate <= 0 {
		s.Transcode.SubmitRate = 10
	}
	if s.Transcode.SubmitBurst <= 0 {
		s.Transcode.SubmitBurst = 5
	}
	if s.Transcode.OutputPrefix == "" {
		s.Transcode.OutputPrefix = "s3://" + s.MinIO.BucketName
	}
	if s.Transcode.PreviewSeconds <= 0 {
		s.Transcode.PreviewSeconds = 10
	}
	if s.Transcode.ClaimTTL <= 0 {
		s.Transcode.ClaimTTL = 2 * s.Transcode.SubmitTimeout
	}
	if s.Delivery.FreeURLExpiry <= 0 {
		s.Delivery.FreeURLExpiry = 15 * time.Minute
	}
	if s.Delivery.PaidURLExpiry <= 0 {
		s.Delivery.PaidURLExpiry = 2 * time.Hour
	}
	if s.Entitlement.CacheTTL <= 0 {
		s.Entitlement.CacheTTL = 5 * time.Minute
	}
}
