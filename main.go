package main

import (
	"tiered_video_service/internal/video/api/router"

	"github.com/gofiber/fiber/v2"
)

// 服務拆分為 streaming_service / transcode_worker / videoctl，此程式只用於 init swagger
// swag init output ./docs
func main() {
	app := fiber.New()

	router.RegisterRoutes(app, router.Handlers{})
}
