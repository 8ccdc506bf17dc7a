package main

import (
	"context"
	"sync"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/bootstrap"
	"tiered_video_service/internal/video/repository"
	"tiered_video_service/pkg/config"
)

// commandContext 延遲建立連線，只開啟子命令真正用到的後端
type commandContext struct {
	configPath string

	configOnce sync.Once
	config     config.Streaming
	configErr  error

	openStore      func(ctx context.Context, cfg config.Streaming) (repository.VideoRepo, func(), error)
	openReconciler func(ctx context.Context, cfg config.Streaming, repo repository.VideoRepo) (app.CompletionReconciler, func(), error)
	openAnomalies  func(ctx context.Context, cfg config.Streaming) (repository.AnomalyRepo, func(), error)
}

func newCommandContext() *commandContext {
	return &commandContext{
		openStore:      bootstrap.OpenVideoRepo,
		openReconciler: openReconciler,
		openAnomalies:  openAnomalies,
	}
}

func (c *commandContext) ensureConfig() (config.Streaming, error) {
	c.configOnce.Do(func() {
		path := c.configPath
		if path == "" {
			path = config.EnvConfig.StreamingYAMLPath
		}
		c.config, c.configErr = config.ReadConfig[config.Streaming](config.EnvConfig.Streaming, path)
		c.config.Defaults()
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(ctx context.Context, fn func(repository.VideoRepo) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	repo, closeFn, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(repo)
}

func (c *commandContext) withReconciler(ctx context.Context, fn func(app.CompletionReconciler) error) error {
	return c.withStore(ctx, func(repo repository.VideoRepo) error {
		reconciler, closeFn, err := c.openReconciler(ctx, c.config, repo)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(reconciler)
	})
}

func (c *commandContext) withAnomalies(ctx context.Context, fn func(repository.AnomalyRepo) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	anomalies, closeFn, err := c.openAnomalies(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(anomalies)
}

// openReconciler 營運操作只需要送出轉碼工作，不需要 kafka 告警
func openReconciler(ctx context.Context, cfg config.Streaming, repo repository.VideoRepo) (app.CompletionReconciler, func(), error) {
	conn, rabbit, err := bootstrap.OpenRabbit(cfg)
	if err != nil {
		return nil, nil, err
	}
	var notifier app.StatusNotifier
	rdb, err := bootstrap.OpenRedis(cfg)
	if err == nil {
		notifier = repository.NewRedisPubSub(rdb)
	}
	pipeline := bootstrap.NewPipeline(cfg, bootstrap.Deps{Repo: repo, Rabbit: rabbit, Notifier: notifier})
	return pipeline.Reconciler, func() {
		if rdb != nil {
			rdb.Close()
		}
		conn.Close()
	}, nil
}

func openAnomalies(ctx context.Context, cfg config.Streaming) (repository.AnomalyRepo, func(), error) {
	anomalies, mongoDB, err := bootstrap.OpenAnomalyRepo(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return anomalies, func() { mongoDB.Close(context.Background()) }, nil
}
