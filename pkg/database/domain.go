package database

import (
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Connection definition sql / amqp / mongo setting
type Connection struct {
	ConnectStr string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoDB definition mongo db
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// MinIOConnection definition minio
type MinIOConnection struct {
	Endpoint   string
	User       string
	Password   string
	BucketName string
	UseSSL     bool

	RetryCount    int
	RetryInterval time.Duration
}

// KafkaConnection definition kafka
type KafkaConnection struct {
	Brokers []string
	Topic   string
	GroupID string

	RetryCount    int
	RetryInterval time.Duration
}

// retryDelay 設定值以秒為單位，未設定時預設 1 秒
func retryDelay(interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Second
	}
	if interval < time.Millisecond {
		return interval * time.Second
	}
	return interval
}

func attempts(count int) int {
	if count <= 0 {
		return 1
	}
	return count
}
