package main

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"syscall"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/bootstrap"
	"tiered_video_service/internal/video/repository"
	"tiered_video_service/pkg/config"
	"tiered_video_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService videoctl health 查詢的 service 名稱
const HealthService = "transcode_worker"

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.Worker, config.EnvConfig.WorkerLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Streaming](config.EnvConfig.Streaming, config.EnvConfig.StreamingYAMLPath)
	cfg.Defaults()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	videoRepo, closeStore, err := bootstrap.OpenVideoRepo(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Unable to open video store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	rdb, err := bootstrap.OpenRedis(cfg)
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	rabbitConn, rabbit, err := bootstrap.OpenRabbit(cfg)
	if err != nil {
		logger.Log.Fatal("Unable to connect to rabbitmq", zap.Error(err))
	}
	defer rabbitConn.Close()

	alertWriter, err := bootstrap.NewAlertWriter(cfg)
	if err != nil {
		logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
	}
	defer alertWriter.Close()

	statusReader, err := bootstrap.NewStatusReader(cfg)
	if err != nil {
		logger.Log.Fatal("Kafka Reader 建立失敗", zap.Error(err))
	}
	defer statusReader.Close()

	anomalies, mongoDB, err := bootstrap.OpenAnomalyRepo(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongo", zap.Error(err))
	}
	defer mongoDB.Close(context.Background())

	pubsub := repository.NewRedisPubSub(rdb)
	pipeline := bootstrap.NewPipeline(cfg, bootstrap.Deps{
		Repo:      videoRepo,
		Rabbit:    rabbit,
		Alerts:    alertWriter,
		Anomalies: anomalies,
		Notifier:  pubsub,
		Claimer:   repository.NewUploadClaim(rdb, cfg.Transcode.ClaimTTL),
	})

	uploads, err := rabbit.Consume(cfg.RabbitMQ.UploadQ, HealthService)
	if err != nil {
		logger.Log.Fatal("consume upload queue failed", zap.Error(err))
	}

	lis, err := net.Listen("tcp", cfg.IP+":"+cfg.HealthPort)
	if err != nil {
		logger.Log.Fatal("Failed to listen health port", zap.String("port", cfg.HealthPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.NewUploadConsumer(pipeline.Orchestrator).Run(gctx, uploads)
	})
	g.Go(func() error {
		return app.NewStatusConsumer(pipeline.Reconciler).Run(gctx, statusReader)
	})
	g.Go(func() error {
		logger.Log.Info("health gRPC server listening", zap.String("port", cfg.HealthPort))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("transcode worker stopped with error", zap.Error(err))
		return
	}
	logger.Log.Info("transcode worker stopped")
}
