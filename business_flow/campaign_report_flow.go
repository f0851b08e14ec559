package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	reportContentsSheet   = "Contents"
	reportNewsletterSheet = "Newsletter"
)

// CampaignReportFlow exports the delivery state of a campaign as a workbook
type CampaignReportFlow interface {
	ExportReport(ctx context.Context, campaignID uint) (string, []byte, error)
}

type CampaignReportFlowImpl struct {
	campaignRepo   repository.CampaignRepository
	contentRepo    repository.CampaignContentRepository
	newsletterRepo repository.NewsletterCampaignRepository
	emailRepo      repository.NewsletterEmailRepository
	logger         *zap.Logger
}

func NewCampaignReportFlow(
	campaignRepo repository.CampaignRepository,
	contentRepo repository.CampaignContentRepository,
	newsletterRepo repository.NewsletterCampaignRepository,
	emailRepo repository.NewsletterEmailRepository,
	logger *zap.Logger,
) CampaignReportFlow {
	return &CampaignReportFlowImpl{
		campaignRepo:   campaignRepo,
		contentRepo:    contentRepo,
		newsletterRepo: newsletterRepo,
		emailRepo:      emailRepo,
		logger:         logger.Named("campaign_report"),
	}
}

// ExportReport returns the file name and xlsx bytes
func (f *CampaignReportFlowImpl) ExportReport(ctx context.Context, campaignID uint) (string, []byte, error) {
	campaign, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return "", nil, NewBusinessError("CAMPAIGN_FETCH_FAILED", "Failed to load campaign", err)
	}
	if campaign == nil {
		return "", nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}

	contents, err := f.contentRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return "", nil, NewBusinessError("CONTENT_FETCH_FAILED", "Failed to load campaign contents", err)
	}

	newsletters, err := f.newsletterRepo.ListByCampaignID(ctx, campaignID)
	if err != nil {
		return "", nil, NewBusinessError("NEWSLETTER_FETCH_FAILED", "Failed to load newsletters", err)
	}
	var emails []*models.NewsletterEmail
	for _, n := range newsletters {
		rows, err := f.emailRepo.ListByNewsletter(ctx, n.ID)
		if err != nil {
			return "", nil, NewBusinessError("NEWSLETTER_FETCH_FAILED", "Failed to load newsletter emails", err)
		}
		emails = append(emails, rows...)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	xl.SetSheetName(xl.GetSheetName(0), reportContentsSheet)
	header := []string{"content_id", "content_type", "step", "status", "retry_count", "error", "post_id", "publish_at", "sent_at"}
	_ = xl.SetSheetRow(reportContentsSheet, "A1", &header)
	for i, c := range contents {
		step, _ := c.ContentType.Step()
		record := []string{
			strconv.FormatUint(uint64(c.ID), 10),
			string(c.ContentType),
			strconv.Itoa(step),
			string(c.Status),
			strconv.Itoa(c.RetryCount),
			utils.Deref(c.ErrorMessage),
			utils.Deref(c.PostID),
			formatReportTime(c.PublishAt),
			formatReportTime(c.SentAt),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(reportContentsSheet, cell, &record)
	}

	if _, err := xl.NewSheet(reportNewsletterSheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to create newsletter sheet", err)
	}
	header = []string{"newsletter_email_id", "client_id", "email", "status", "sent_at", "delivered_at", "opened_at", "clicked_at", "bounced_at", "complained_at", "error"}
	_ = xl.SetSheetRow(reportNewsletterSheet, "A1", &header)
	for i, e := range emails {
		record := []string{
			strconv.FormatUint(uint64(e.ID), 10),
			strconv.FormatUint(uint64(e.ClientID), 10),
			e.Email,
			string(e.Status),
			formatReportTime(e.SentAt),
			formatReportTime(e.DeliveredAt),
			formatReportTime(e.OpenedAt),
			formatReportTime(e.ClickedAt),
			formatReportTime(e.BouncedAt),
			formatReportTime(e.ComplainedAt),
			utils.Deref(e.ErrorMessage),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(reportNewsletterSheet, cell, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	loggerFrom(ctx, f.logger).Info("campaign report exported",
		zap.Uint("campaign_id", campaignID),
		zap.Int("contents", len(contents)),
		zap.Int("emails", len(emails)))
	return fmt.Sprintf("campaign_%d_report.xlsx", campaignID), buf.Bytes(), nil
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
