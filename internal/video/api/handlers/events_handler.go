package handlers

import (
	"errors"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// EventsHandler 轉碼服務 webhook 與營運操作
type EventsHandler struct {
	reconciler app.CompletionReconciler
}

// NewEventsHandler create events handler
func NewEventsHandler(r app.CompletionReconciler) *EventsHandler {
	return &EventsHandler{reconciler: r}
}

// TranscodeEvent godoc
// @Summary Job status webhook
// @Description Same contract as the job-status topic; 5xx asks the sender to redeliver
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body domain.JobStatusEvent true "Job status event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /events/transcode [post]
func (h *EventsHandler) TranscodeEvent(c *fiber.Ctx) error {
	var ev domain.JobStatusEvent
	if err := c.BodyParser(&ev); err != nil || ev.JobID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid event")
	}

	outcome, err := h.reconciler.Reconcile(c.UserContext(), ev)
	if err != nil {
		logger.Log.Error("webhook reconcile failed", zap.String("job_id", ev.JobID), zap.Error(err))
		return errorJSON(c, fiber.StatusServiceUnavailable, "Retry later")
	}
	return c.JSON(fiber.Map{"outcome": string(outcome)})
}

// RetryVideo godoc
// @Summary Resubmit a FAILED video
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param video_id path string true "Video ID"
// @Success 200 {object} domain.VideoRecord
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /admin/video/{video_id}/retry [post]
func (h *EventsHandler) RetryVideo(c *fiber.Ctx) error {
	rec, err := h.reconciler.Retry(c.UserContext(), c.Params("video_id"))
	return operatorResult(c, rec, err)
}

// ReprocessVideo godoc
// @Summary Re-encode a COMPLETED video from scratch
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param video_id path string true "Video ID"
// @Success 200 {object} domain.VideoRecord
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /admin/video/{video_id}/reprocess [post]
func (h *EventsHandler) ReprocessVideo(c *fiber.Ctx) error {
	rec, err := h.reconciler.Reprocess(c.UserContext(), c.Params("video_id"))
	return operatorResult(c, rec, err)
}

func operatorResult(c *fiber.Ctx, rec *domain.VideoRecord, err error) error {
	switch {
	case errors.Is(err, domain.ErrVideoNotFound):
		return errorJSON(c, fiber.StatusNotFound, "Video not found")
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrVersionConflict):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSubmitJob):
		return errorJSON(c, fiber.StatusServiceUnavailable, "Encode engine unavailable, retry later")
	case err != nil:
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(rec)
}
