package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	memberapp "tiered_video_service/internal/member/app"
	memberrepo "tiered_video_service/internal/member/repository"
	"tiered_video_service/internal/video/api/handlers"
	"tiered_video_service/internal/video/api/router"
	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/bootstrap"
	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"
	"tiered_video_service/pkg/config"
	"tiered_video_service/pkg/database"
	"tiered_video_service/pkg/logger"
	testtool "tiered_video_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.Streaming, config.EnvConfig.StreamingLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Streaming](config.EnvConfig.Streaming, config.EnvConfig.StreamingYAMLPath)
	cfg.Defaults()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. metadata store
	videoRepo, closeStore, err := bootstrap.OpenVideoRepo(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Unable to open video store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	// 2. redis：upload claim / status pub-sub / entitlement cache
	rdb, err := bootstrap.OpenRedis(cfg)
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	defer rdb.Close()
	pubsub := repository.NewRedisPubSub(rdb)

	// 3. MinIO
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:       cfg.MinIO.User,
		Password:   cfg.MinIO.Password,
		BucketName: cfg.MinIO.BucketName,
		UseSSL:     cfg.MinIO.UseSSL,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: cfg.MinIO.RetryInterval,
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries", zap.Error(err))
	}

	// 4. RabbitMQ 轉碼服務入口
	rabbitConn, rabbit, err := bootstrap.OpenRabbit(cfg)
	if err != nil {
		logger.Log.Fatal("Unable to connect to rabbitmq", zap.Error(err))
	}
	defer rabbitConn.Close()

	// 5. Kafka 告警 / Mongo 稽核
	alertWriter, err := bootstrap.NewAlertWriter(cfg)
	if err != nil {
		logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
	}
	defer alertWriter.Close()

	anomalies, mongoDB, err := bootstrap.OpenAnomalyRepo(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongo", zap.Error(err))
	}
	defer mongoDB.Close(context.Background())

	// 6. 會員方案
	memberPool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    bootstrap.PGDSN(cfg.MemberDB),
		RetryCount:    cfg.MemberDB.RetryCount,
		RetryInterval: time.Duration(cfg.MemberDB.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to member database", zap.Error(err))
	}
	defer memberPool.Close()
	memberRepo := memberrepo.NewMemberRepository(memberPool)
	if err := memberRepo.AutoMigrate(ctx); err != nil {
		logger.Log.Fatal("member 資料表遷移失敗", zap.Error(err))
	}
	entitlements := memberapp.NewEntitlementUseCase(
		memberRepo,
		database.NewRedisRepository[domain.EntitlementView](rdb),
		cfg.Entitlement.CacheTTL,
	)

	pipeline := bootstrap.NewPipeline(cfg, bootstrap.Deps{
		Repo:      videoRepo,
		Rabbit:    rabbit,
		Alerts:    alertWriter,
		Anomalies: anomalies,
		Notifier:  pubsub,
		Claimer:   repository.NewUploadClaim(rdb, cfg.Transcode.ClaimTTL),
	})
	playback := app.NewPlaybackUseCase(
		videoRepo,
		pipeline.Orchestrator,
		entitlements,
		minioClient,
		pipeline.Builder,
		app.URLExpiry{Free: cfg.Delivery.FreeURLExpiry, Paid: cfg.Delivery.PaidURLExpiry},
	)

	// 7. Fiber
	r := fiber.New(fiber.Config{BodyLimit: 2 << 30})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.StreamingLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(recover.New())
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, router.Handlers{
		Video:  handlers.NewVideoHandler(playback),
		Events: handlers.NewEventsHandler(pipeline.Reconciler),
		Status: handlers.NewStatusHandler(playback, pubsub),
	})

	testtool.StartPprof()

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down streaming service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Log.Error("fiber shutdown failed", zap.Error(err))
		}
	}()

	logger.Log.Info(fmt.Sprintf("streaming service listening on : %s", cfg.Port))
	if err := r.Listen(cfg.IP + ":" + cfg.Port); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}
