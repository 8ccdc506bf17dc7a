package router

import (
	"tiered_video_service/internal/video/api/handlers"
	"tiered_video_service/pkg/middlewares"
	t_token "tiered_video_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers streaming_service 的所有 handler
type Handlers struct {
	Video  *handlers.VideoHandler
	Events *handlers.EventsHandler
	Status *handlers.StatusHandler
}

// RegisterRoutes 注册影片、事件與營運路由
// @title Tiered Video Service API
// @version 1.0
// @description Upload, transcoding status and tier-aware playback
// @host localhost:8083
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(app *fiber.App, h Handlers) {
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/", handlers.ConnectCheck)

	videoRoutes := app.Group("/video")
	videoRoutes.Get("/", h.Video.ListVideos)
	videoRoutes.Get("/:video_id", h.Video.GetVideo)
	// 瀏覽器 websocket 無法帶 header，token 走 query auth
	videoRoutes.Get("/:video_id/ws", middlewares.JWTMiddleware(), h.Status.Upgrade, websocket.New(h.Status.HandleConnection))

	authed := videoRoutes.Use(middlewares.JWTMiddleware())
	authed.Post("/upload", h.Video.UploadVideo)
	authed.Get("/:video_id/play", h.Video.Play)

	events := app.Group("/events", middlewares.JWTMiddleware(), middlewares.RequireRole(t_token.RoleService, t_token.RoleAdmin))
	events.Post("/transcode", h.Events.TranscodeEvent)

	admin := app.Group("/admin", middlewares.JWTMiddleware(), middlewares.RequireRole(t_token.RoleAdmin))
	admin.Post("/debug", handlers.DebugLogFlag)
	admin.Post("/video/:video_id/retry", h.Events.RetryVideo)
	admin.Post("/video/:video_id/reprocess", h.Events.ReprocessVideo)
}
