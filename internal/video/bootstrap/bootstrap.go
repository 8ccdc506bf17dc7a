// Package bootstrap 建立 streaming_service / transcode_worker / videoctl 共用的外部連線與 usecase
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/repository"
	"tiered_video_service/pkg/config"
	"tiered_video_service/pkg/database"
	"tiered_video_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// PGDSN postgres 連線字串
func PGDSN(c config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.Host, c.User, c.Password, c.Database, c.Port)
}

// OpenVideoRepo 依 store 設定開啟 metadata store 並建立資料表
func OpenVideoRepo(ctx context.Context, cfg config.Streaming) (repository.VideoRepo, func(), error) {
	var (
		repo    repository.VideoRepo
		closeFn func()
	)
	switch cfg.Store {
	case "sqlite":
		db, err := database.NewSQLiteConnection(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo, closeFn = repository.NewSqliteVideoRepo(db), func() { db.Close() }
	case "postgres":
		db, err := database.NewPGConnection(database.Connection{
			ConnectStr:    PGDSN(cfg.PostgreSQL),
			RetryCount:    cfg.PostgreSQL.RetryCount,
			RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		repo = repository.NewVideoRepo(db)
	default:
		return nil, nil, fmt.Errorf("unknown store[%s]", cfg.Store)
	}

	if err := repo.AutoMigrate(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("資料表遷移失敗: %w", err)
	}
	logger.Log.Info("video store ready", zap.String("store", cfg.Store))
	return repo, closeFn, nil
}

// OpenRedis addr 有值走單機，否則走 .env sentinel
func OpenRedis(cfg config.Streaming) (*redis.Client, error) {
	if cfg.Redis.Addr != "" {
		return database.NewRedisAddrClient(cfg.Redis.Addr, cfg.Redis.RedisDB)
	}
	masterName, sentinelAddrs := config.GetRedisSetting()
	return database.NewRedisClient(masterName, sentinelAddrs, cfg.Redis.RedisDB)
}

// OpenRabbit 連線並宣告 transcode / upload queue
func OpenRabbit(cfg config.Streaming) (*amqp.Connection, database.RabbitRepo, error) {
	rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port)
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    rabbitURL,
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: cfg.RabbitMQ.RetryInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("RabbitMQ 連線失敗: %w", err)
	}

	ch, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, cfg.RabbitMQ.RetryInterval)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("取得 RabbitMQ Channel 失敗: %w", err)
	}

	rabbit := database.NewRabbitRepository(ch)
	for _, q := range []string{cfg.RabbitMQ.TranscodeQ, cfg.RabbitMQ.UploadQ} {
		if err := rabbit.DeclareQueue(q); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("Queue[%s] Declare failed: %w", q, err)
		}
	}
	return conn, rabbit, nil
}

// OpenAnomalyRepo 矛盾事件稽核存放於 mongo
func OpenAnomalyRepo(ctx context.Context, cfg config.Streaming) (repository.AnomalyRepo, *database.MongoDB, error) {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	if cfg.Mongo.User == "" {
		uri = fmt.Sprintf("mongodb://%s:%d", cfg.Mongo.Host, cfg.Mongo.Port)
	}
	mongoDB, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    uri,
		RetryCount:    cfg.Mongo.RetryCount,
		RetryInterval: time.Duration(cfg.Mongo.RetryInterval),
	}, cfg.Mongo.Database)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewAnomalyRepo(mongoDB.Database), mongoDB, nil
}

// NewAlertWriter 營運告警 topic writer
func NewAlertWriter(cfg config.Streaming) (*kafka.Writer, error) {
	return database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.KafKa.Brokers,
		Topic:         cfg.KafKa.AlertTopic,
		RetryCount:    cfg.KafKa.RetryCount,
		RetryInterval: cfg.KafKa.RetryInterval,
	})
}

// NewStatusReader 轉碼狀態 topic consumer group reader
func NewStatusReader(cfg config.Streaming) (*kafka.Reader, error) {
	return database.NewKafkaReaderWithRetry(database.KafkaConnection{
		Brokers:       cfg.KafKa.Brokers,
		Topic:         cfg.KafKa.StatusTopic,
		GroupID:       cfg.KafKa.GroupID,
		RetryCount:    cfg.KafKa.RetryCount,
		RetryInterval: cfg.KafKa.RetryInterval,
	})
}

// Pipeline 轉碼流程的 usecase 組合
type Pipeline struct {
	Builder      *app.RenditionSpecBuilder
	Submitter    app.JobSubmitter
	Orchestrator app.JobOrchestrator
	Reconciler   app.CompletionReconciler
}

// Deps Pipeline 需要的外部連線，Alerts / Anomalies / Notifier / Claimer 可為 nil
type Deps struct {
	Repo      repository.VideoRepo
	Rabbit    database.RabbitRepo
	Alerts    app.MessageWriter
	Anomalies repository.AnomalyRepo
	Notifier  app.StatusNotifier
	Claimer   app.UploadClaimer
}

// NewPipeline 以設定組出 orchestrator 與 reconciler
func NewPipeline(cfg config.Streaming, d Deps) Pipeline {
	t := cfg.Transcode
	builder := app.NewRenditionSpecBuilder(t.OutputPrefix, t.PreviewSeconds)
	submitter := app.NewAMQPJobSubmitter(d.Rabbit, cfg.RabbitMQ.TranscodeQ, t.SubmitRate, t.SubmitBurst)

	var orchOpts []app.OrchestratorOption
	var recOpts []app.ReconcilerOption
	if d.Claimer != nil {
		orchOpts = append(orchOpts, app.WithUploadClaimer(d.Claimer))
	}
	if d.Notifier != nil {
		orchOpts = append(orchOpts, app.WithStatusNotifier(d.Notifier))
		recOpts = append(recOpts, app.WithReconcileNotifier(d.Notifier))
	}
	if d.Anomalies != nil {
		recOpts = append(recOpts, app.WithAnomalyLog(d.Anomalies))
	}
	var alerter app.Alerter
	if d.Alerts != nil {
		alerter = app.NewKafkaAlerter(d.Alerts)
	}

	return Pipeline{
		Builder:      builder,
		Submitter:    submitter,
		Orchestrator: app.NewJobOrchestrator(d.Repo, submitter, builder, t.SubmitTimeout, orchOpts...),
		Reconciler: app.NewCompletionReconciler(
			d.Repo, submitter, builder, alerter, t.MaxRetries, t.SubmitTimeout, recOpts...,
		),
	}
}
