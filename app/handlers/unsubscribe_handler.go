package handlers

import (
	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// UnsubscribeHandlerInterface defines the contract for the public opt-out endpoint
type UnsubscribeHandlerInterface interface {
	Unsubscribe(c fiber.Ctx) error
}

// UnsubscribeHandler serves the signed newsletter opt-out link
type UnsubscribeHandler struct {
	baseHandler
	unsubscribeFlow businessflow.UnsubscribeFlow
}

func NewUnsubscribeHandler(unsubscribeFlow businessflow.UnsubscribeFlow, logger *zap.Logger) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		baseHandler:     newBaseHandler(logger),
		unsubscribeFlow: unsubscribeFlow,
	}
}

// Unsubscribe opts the client in the link out of newsletters
// @Summary Newsletter Unsubscribe
// @Tags Newsletter
// @Produce json
// @Param c query int true "Client ID"
// @Param t query string true "Signed token"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.APIResponse "Invalid or tampered link"
// @Router /api/v1/newsletter/unsubscribe [get]
func (h *UnsubscribeHandler) Unsubscribe(c fiber.Ctx) error {
	var req dto.UnsubscribeRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid unsubscribe link", "INVALID_REQUEST", err.Error())
	}
	if valid, err := h.validate(c, &req); !valid {
		return err
	}

	ctx, cancel := createRequestContext(c, "/api/v1/newsletter/unsubscribe")
	defer cancel()

	if err := h.unsubscribeFlow.Unsubscribe(ctx, &req); err != nil {
		switch {
		case businessflow.IsInvalidUnsubscribeToken(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Unsubscribe link is invalid", "INVALID_UNSUBSCRIBE_TOKEN", nil)
		case businessflow.IsClientNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", nil)
		}
		h.logger.Error("unsubscribe failed", zap.Uint("client_id", req.ClientID), zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe", businessErrorReason(err, "UNSUBSCRIBE_FAILED"), nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "You have been unsubscribed from the newsletter", nil)
}
