package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriterWithRetry 嘗試連線 broker 確認可用後建立 Writer
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	if err := waitKafka(k); err != nil {
		return nil, err
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(k.Brokers...),
		Topic:                  k.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaReaderWithRetry consumer group reader，offset 由呼叫端 CommitMessages
func NewKafkaReaderWithRetry(k KafkaConnection) (*kafka.Reader, error) {
	if err := waitKafka(k); err != nil {
		return nil, err
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.Brokers,
		Topic:          k.Topic,
		GroupID:        k.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	}), nil
}

func waitKafka(k KafkaConnection) error {
	if len(k.Brokers) == 0 {
		return fmt.Errorf("kafka brokers 未設定")
	}
	var err error
	for attempt := 1; attempt <= attempts(k.RetryCount); attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		cancel()
		if err == nil {
			conn.Close()
			log.Printf("Kafka[%s] 連線成功 (嘗試 %d 次)", k.Topic, attempt)
			return nil
		}

		log.Printf("Kafka[%s] 連線失敗 (嘗試 %d/%d): %v", k.Topic, attempt, k.RetryCount, err)
		time.Sleep(retryDelay(k.RetryInterval))
	}
	return fmt.Errorf("無法連線 Kafka，經過 %d 次嘗試: %w", k.RetryCount, err)
}
