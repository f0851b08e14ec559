package handlers

import (
	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// NotificationHandlerInterface defines the contract for queue processor handlers
type NotificationHandlerInterface interface {
	ProcessQueue(c fiber.Ctx) error
}

// NotificationHandler exposes the queue processor to the CRON caller
type NotificationHandler struct {
	baseHandler
	queueFlow businessflow.NotificationQueueFlow
}

func NewNotificationHandler(queueFlow businessflow.NotificationQueueFlow, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		baseHandler: newBaseHandler(logger),
		queueFlow:   queueFlow,
	}
}

// ProcessQueue runs one queue processor invocation
// @Summary Process Notification Queue
// @Tags Cron
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ProcessQueueResponse}
// @Failure 500 {object} dto.APIResponse "Queue could not be read"
// @Router /api/v1/cron/notifications/process [post]
func (h *NotificationHandler) ProcessQueue(c fiber.Ctx) error {
	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/cron/notifications/process", dispatchRequestTimeout)
	defer cancel()

	result, err := h.queueFlow.ProcessDue(ctx)
	if err != nil {
		h.logger.Error("queue processing failed", zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process notification queue", businessErrorReason(err, "QUEUE_PROCESSING_FAILED"), nil)
	}

	if result.Busy {
		return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
			OK:      true,
			Reason:  "PROCESSOR_BUSY",
			Message: "Another invocation is processing the queue",
			Data:    result,
		})
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Notification queue processed", result)
}
