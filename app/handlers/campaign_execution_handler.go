package handlers

import (
	"fmt"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// CampaignExecutionHandlerInterface defines the contract for campaign execution handlers
type CampaignExecutionHandlerInterface interface {
	ExecuteCampaign(c fiber.Ctx) error
	ExecuteDueCampaigns(c fiber.Ctx) error
	PublishDueSocial(c fiber.Ctx) error
	DownloadReport(c fiber.Ctx) error
}

// CampaignExecutionHandler handles campaign execution HTTP requests
type CampaignExecutionHandler struct {
	baseHandler
	executionFlow businessflow.CampaignExecutionFlow
	socialFlow    businessflow.SocialPublishFlow
	reportFlow    businessflow.CampaignReportFlow
}

func NewCampaignExecutionHandler(
	executionFlow businessflow.CampaignExecutionFlow,
	socialFlow businessflow.SocialPublishFlow,
	reportFlow businessflow.CampaignReportFlow,
	logger *zap.Logger,
) *CampaignExecutionHandler {
	return &CampaignExecutionHandler{
		baseHandler:   newBaseHandler(logger),
		executionFlow: executionFlow,
		socialFlow:    socialFlow,
		reportFlow:    reportFlow,
	}
}

// ExecuteCampaign runs one campaign immediately, whatever its status
// @Summary Execute Campaign
// @Tags Campaigns
// @Produce json
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.ExecuteCampaignResponse}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign is already executing"
// @Router /api/v1/campaigns/{id}/execute [post]
func (h *CampaignExecutionHandler) ExecuteCampaign(c fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	req := dto.ExecuteCampaignRequest{CampaignID: id}
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}
	if valid, err := h.validate(c, &req); !valid {
		return err
	}

	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/campaigns/:id/execute", dispatchRequestTimeout)
	defer cancel()

	result, err := h.executionFlow.ExecuteCampaign(ctx, req.CampaignID)
	if err != nil {
		switch {
		case businessflow.IsCampaignNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		case businessflow.IsCampaignBusy(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is already being executed", "CAMPAIGN_BUSY", nil)
		}
		h.logger.Error("campaign execution failed", zap.Uint("campaign_id", req.CampaignID), zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign execution failed", businessErrorReason(err, "CAMPAIGN_EXECUTION_FAILED"), nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, fmt.Sprintf("Campaign %s", result.Status), result)
}

// ExecuteDueCampaigns executes every scheduled campaign that is due
// @Summary Execute Due Campaigns
// @Tags Cron
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ExecuteDueCampaignsResponse}
// @Router /api/v1/cron/campaigns/execute-due [post]
func (h *CampaignExecutionHandler) ExecuteDueCampaigns(c fiber.Ctx) error {
	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/cron/campaigns/execute-due", dispatchRequestTimeout)
	defer cancel()

	result, err := h.executionFlow.ExecuteDueCampaigns(ctx)
	if err != nil {
		h.logger.Error("due campaign pass failed", zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to execute due campaigns", businessErrorReason(err, "CAMPAIGN_EXECUTION_FAILED"), nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Due campaigns processed", result)
}

// PublishDueSocial publishes deferred social containers whose time has come
// @Summary Publish Due Social Containers
// @Tags Cron
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.PublishDueContainersResponse}
// @Router /api/v1/cron/social/publish-due [post]
func (h *CampaignExecutionHandler) PublishDueSocial(c fiber.Ctx) error {
	ctx, cancel := createRequestContextWithTimeout(c, "/api/v1/cron/social/publish-due", dispatchRequestTimeout)
	defer cancel()

	result, err := h.socialFlow.PublishDueContainers(ctx)
	if err != nil {
		h.logger.Error("deferred social publish pass failed", zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to publish scheduled posts", businessErrorReason(err, "SOCIAL_PUBLISH_FAILED"), nil)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Scheduled posts processed", result)
}

// DownloadReport streams the campaign delivery workbook
// @Summary Download Campaign Report
// @Tags Campaigns
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Campaign ID"
// @Router /api/v1/campaigns/{id}/report [get]
func (h *CampaignExecutionHandler) DownloadReport(c fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/campaigns/:id/report")
	defer cancel()

	filename, data, err := h.reportFlow.ExportReport(ctx, id)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		h.logger.Error("campaign report export failed", zap.Uint("campaign_id", id), zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to export report", businessErrorReason(err, "REPORT_EXPORT_FAILED"), nil)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(data)
}
