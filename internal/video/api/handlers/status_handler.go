package handlers

import (
	"context"
	"errors"
	"time"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// StatusHandler 以 websocket 推送影片狀態
type StatusHandler struct {
	playback app.PlaybackUseCase
	notifier app.StatusNotifier
}

// NewStatusHandler create status websocket handler
func NewStatusHandler(playback app.PlaybackUseCase, notifier app.StatusNotifier) *StatusHandler {
	return &StatusHandler{playback: playback, notifier: notifier}
}

// Upgrade 非 websocket 請求回 426，影片不存在回 404
func (h *StatusHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := h.playback.Get(c.UserContext(), c.Params("video_id")); err != nil {
		if errors.Is(err, domain.ErrVideoNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "Video not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "Status unavailable")
	}
	return c.Next()
}

// HandleConnection 先送目前狀態，之後轉送每次異動，進入終態後關閉
func (h *StatusHandler) HandleConnection(conn *websocket.Conn) {
	videoID := conn.Params("video_id")
	log := logger.Log.With(zap.String("video_id", videoID))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.Close()
		log.Debug("status websocket closed")
	}()

	// client 關閉時結束訂閱
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	changes, err := h.notifier.Subscribe(ctx, videoID)
	if err != nil {
		log.Error("subscribe status failed", zap.Error(err))
		return
	}

	rec, err := h.playback.Get(ctx, videoID)
	if err != nil {
		return
	}
	current := domain.StatusChange{VideoID: rec.VideoID, Status: rec.Status, JobID: rec.JobID, At: rec.UpdatedAt}
	if err := conn.WriteJSON(current); err != nil || rec.Status.IsTerminal() {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				return
			}
			if change.Status.IsTerminal() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
