package handlers

import (
	"errors"
	"strconv"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/logger"
	"tiered_video_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RetryAfterSeconds 處理中影片建議的重試間隔
const RetryAfterSeconds = 10

// VideoHandler 上傳、播放與列表
type VideoHandler struct {
	playback app.PlaybackUseCase
}

// NewVideoHandler create video handler
func NewVideoHandler(playback app.PlaybackUseCase) *VideoHandler {
	return &VideoHandler{playback: playback}
}

// UploadVideo godoc
// @Summary Upload a source video
// @Description Stores the file under original/<video_id>/ and submits one encode job for every rendition
// @Tags Video
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Video File"
// @Success 202 {object} domain.UploadVideoRes
// @Failure 400 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /video/upload [post]
func (h *VideoHandler) UploadVideo(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Missing file")
	}
	file, err := fileHeader.Open()
	if err != nil {
		logger.Log.Errorf("Open file failed", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to open file")
	}
	defer file.Close()

	res, err := h.playback.Upload(c.UserContext(), domain.UploadVideoReq{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(fiber.HeaderContentType),
		Size:        fileHeader.Size,
		File:        file,
	})
	switch {
	case errors.Is(err, domain.ErrUnsupportedSource):
		return errorJSON(c, fiber.StatusUnsupportedMediaType, "Unsupported file type")
	case errors.Is(err, domain.ErrSubmitJob):
		return errorJSON(c, fiber.StatusServiceUnavailable, "Encode engine unavailable, retry later")
	case err != nil:
		return errorJSON(c, fiber.StatusInternalServerError, "Upload failed")
	}
	return c.Status(fiber.StatusAccepted).JSON(res)
}

// Play godoc
// @Summary Resolve the playable rendition for the caller's tier
// @Description 200 for OK/DEGRADED, 202 with Retry-After while processing, 410 when failed, 404 when not produced, 403 for unknown tier
// @Tags Video
// @Produce json
// @Security BearerAuth
// @Param video_id path string true "Video ID"
// @Param quality query string false "720p or 1080p, premium only"
// @Success 200 {object} domain.PlaybackRes
// @Success 202 {object} domain.PlaybackRes
// @Failure 403 {object} domain.PlaybackRes
// @Failure 404 {object} map[string]string
// @Failure 410 {object} domain.PlaybackRes
// @Router /video/{video_id}/play [get]
func (h *VideoHandler) Play(c *fiber.Ctx) error {
	videoID := c.Params("video_id")
	quality := domain.Quality(c.Query("quality"))
	switch quality {
	case "", domain.Quality480p, domain.Quality720p, domain.Quality1080p:
	default:
		return errorJSON(c, fiber.StatusBadRequest, "Invalid quality")
	}

	res, err := h.playback.Play(c.UserContext(), videoID, middlewares.MemberID(c), quality)
	if errors.Is(err, domain.ErrVideoNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Video not found")
	}
	if err != nil {
		logger.Log.Error("play failed", zap.String("video_id", videoID), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "Playback unavailable")
	}

	status := PlaybackStatus(res)
	if status == fiber.StatusAccepted {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds))
	}
	return c.Status(status).JSON(res)
}

// PlaybackStatus decision/reason 對應的 HTTP status
func PlaybackStatus(res *domain.PlaybackRes) int {
	if res.Decision != domain.DecisionUnavailable {
		return fiber.StatusOK
	}
	switch res.Reason {
	case domain.ReasonProcessing:
		return fiber.StatusAccepted
	case domain.ReasonFailed:
		return fiber.StatusGone
	case domain.ReasonUnknownTier:
		return fiber.StatusForbidden
	}
	return fiber.StatusNotFound
}

// GetVideo godoc
// @Summary Get video metadata
// @Tags Video
// @Produce json
// @Param video_id path string true "Video ID"
// @Success 200 {object} domain.VideoRecord
// @Failure 404 {object} map[string]string
// @Router /video/{video_id} [get]
func (h *VideoHandler) GetVideo(c *fiber.Ctx) error {
	rec, err := h.playback.Get(c.UserContext(), c.Params("video_id"))
	if errors.Is(err, domain.ErrVideoNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Video not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(rec)
}

// ListVideos godoc
// @Summary List videos newest first
// @Tags Video
// @Produce json
// @Param status query string false "PENDING, PROCESSING, COMPLETED or FAILED"
// @Param page query int false "Page, default 1"
// @Param limit query int false "Page size, default 12"
// @Success 200 {object} domain.VideoListRes
// @Failure 400 {object} map[string]string
// @Router /video [get]
func (h *VideoHandler) ListVideos(c *fiber.Ctx) error {
	filter := domain.ListFilter{Status: domain.VideoStatus(c.Query("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid status")
	}
	var err error
	if s := c.Query("page"); s != "" {
		if filter.Page, err = strconv.Atoi(s); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "Invalid page")
		}
	}
	if s := c.Query("limit"); s != "" {
		if filter.Limit, err = strconv.Atoi(s); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "Invalid limit")
		}
	}

	res, err := h.playback.List(c.UserContext(), filter)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "List failed")
	}
	return c.JSON(res)
}
