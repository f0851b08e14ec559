package handlers

import (
	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// WebhookHandlerInterface defines the contract for provider webhook handlers
type WebhookHandlerInterface interface {
	EmailEvent(c fiber.Ctx) error
}

// WebhookHandler receives asynchronous delivery events from the email provider
type WebhookHandler struct {
	baseHandler
	webhookFlow businessflow.EmailWebhookFlow
}

func NewWebhookHandler(webhookFlow businessflow.EmailWebhookFlow, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		baseHandler: newBaseHandler(logger),
		webhookFlow: webhookFlow,
	}
}

// EmailEvent applies one email delivery event. Processing faults are acknowledged with 200
// so the provider does not retry them; only malformed bodies are rejected.
// @Summary Email Provider Webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.EmailWebhookResult}
// @Failure 400 {object} dto.APIResponse "Malformed payload"
// @Failure 401 {object} dto.APIResponse "Invalid webhook credentials"
// @Router /api/v1/webhooks/email [post]
func (h *WebhookHandler) EmailEvent(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/webhooks/email")
	defer cancel()

	result, err := h.webhookFlow.HandleEvent(ctx, c.Body())
	if err != nil {
		if businessflow.IsInvalidWebhookPayload(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Malformed webhook payload", "INVALID_PAYLOAD", nil)
		}
		h.logger.Error("email webhook processing failed", zap.Error(err))
		return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
			OK:      true,
			Reason:  "EVENT_NOT_APPLIED",
			Message: "Event acknowledged",
		})
	}

	if result.Ignored {
		return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
			OK:     true,
			Reason: result.Reason,
			Data:   result,
		})
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Event processed", result)
}
