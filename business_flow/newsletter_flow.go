package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
)

// NewsletterSendResult summarizes one newsletter blast
type NewsletterSendResult struct {
	Recipients int
	Sent       int
	Failed     int
}

// NewsletterFlow fans a newsletter out to its recipients synchronously
type NewsletterFlow interface {
	Send(ctx context.Context, newsletter *models.NewsletterCampaign, recipients []*models.Client) (*NewsletterSendResult, error)
}

// NewsletterFlowImpl implements NewsletterFlow
type NewsletterFlowImpl struct {
	newsletterRepo repository.NewsletterCampaignRepository
	emailRepo      repository.NewsletterEmailRepository
	email          services.EmailService
	unsubscribe    *services.UnsubscribeSigner
	opts           DispatchOptions
	logger         *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewNewsletterFlow(
	newsletterRepo repository.NewsletterCampaignRepository,
	emailRepo repository.NewsletterEmailRepository,
	email services.EmailService,
	unsubscribe *services.UnsubscribeSigner,
	opts DispatchOptions,
	logger *zap.Logger,
) NewsletterFlow {
	return &NewsletterFlowImpl{
		newsletterRepo: newsletterRepo,
		emailRepo:      emailRepo,
		email:          email,
		unsubscribe:    unsubscribe,
		opts:           opts.withDefaults(),
		logger:         logger.Named("newsletter"),
		now:            utils.UTCNow,
		sleep:          sleepContext,
	}
}

// Send creates one email record per recipient and sends them strictly in order with the
// provider delay between sends. A recipient failure is stored on its record and never aborts
// the loop. The returned error is reserved for a missing channel or an aborted context.
func (f *NewsletterFlowImpl) Send(ctx context.Context, newsletter *models.NewsletterCampaign, recipients []*models.Client) (*NewsletterSendResult, error) {
	logger := loggerFrom(ctx, f.logger).With(zap.Uint("newsletter_id", newsletter.ID))
	result := &NewsletterSendResult{}

	if !f.email.Enabled() {
		err := services.NewConfigError("EMAIL_NOT_CONFIGURED", "email channel has no provider credentials")
		f.closeNewsletter(ctx, newsletter, result, models.NewsletterStatusFailed)
		return result, err
	}

	sentOne := false
	for _, client := range recipients {
		address := client.EmailAddress()
		if address == "" || !client.AcceptsNewsletter() {
			continue
		}
		result.Recipients++

		if sentOne {
			if err := f.sleep(ctx, f.opts.EmailDelay); err != nil {
				f.closeNewsletter(ctx, newsletter, result, models.NewsletterStatusFailed)
				return result, err
			}
		}
		sentOne = true

		record := &models.NewsletterEmail{
			NewsletterCampaignID: newsletter.ID,
			ClientID:             client.ID,
			Email:                address,
			Status:               models.EmailStatusPending,
		}
		if err := f.emailRepo.Save(ctx, record); err != nil {
			logger.Error("failed to create newsletter email record", zap.Uint("client_id", client.ID), zap.Error(err))
			result.Failed++
			newsletterEmailsSent.WithLabelValues("failed").Inc()
			continue
		}

		messageID, err := f.sendOne(ctx, newsletter, client, record)
		now := f.now()
		if err != nil {
			record.Status = models.EmailStatusFailed
			record.ErrorMessage = errString(err)
			result.Failed++
			newsletterEmailsSent.WithLabelValues("failed").Inc()
			logger.Info("newsletter email not sent",
				zap.Uint("newsletter_email_id", record.ID),
				zap.Uint("client_id", client.ID),
				zap.Error(err))
		} else {
			record.Status = models.EmailStatusSent
			record.ProviderMessageID = &messageID
			record.StampStatusTime(models.EmailStatusSent, now)
			result.Sent++
			newsletterEmailsSent.WithLabelValues("sent").Inc()
		}
		if err := f.emailRepo.Update(ctx, record); err != nil {
			logger.Error("failed to store newsletter email outcome", zap.Uint("newsletter_email_id", record.ID), zap.Error(err))
		}
	}

	status := models.NewsletterStatusSent
	if result.Recipients > 0 && result.Sent == 0 {
		status = models.NewsletterStatusFailed
	}
	f.closeNewsletter(ctx, newsletter, result, status)

	logger.Info("newsletter sent",
		zap.Int("recipients", result.Recipients),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (f *NewsletterFlowImpl) sendOne(ctx context.Context, newsletter *models.NewsletterCampaign, client *models.Client, record *models.NewsletterEmail) (string, error) {
	var unsubscribeURL string
	if f.unsubscribe != nil {
		unsubscribeURL = f.unsubscribe.URL(client.ID)
	}
	vars := templateVars(client, f.opts, unsubscribeURL)
	subject := services.RenderTemplate(newsletter.Subject, vars)
	body := services.RenderTemplate(newsletter.Body, vars)

	html, err := services.RenderBrandedHTML(services.BrandedEmail{
		StudioName:     f.opts.StudioName,
		Title:          subject,
		Body:           body,
		CTAURL:         f.opts.AppURL,
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return "", err
	}

	return f.email.Send(ctx, services.EmailMessage{
		To:       record.Email,
		Subject:  subject,
		HTMLBody: html,
		TextBody: body,
		Tag:      f.opts.NewsletterTag,
		Metadata: map[string]string{
			utils.NewsletterEmailTag: uintString(record.ID),
			"newsletter_id":          uintString(newsletter.ID),
		},
	})
}

func (f *NewsletterFlowImpl) closeNewsletter(ctx context.Context, newsletter *models.NewsletterCampaign, result *NewsletterSendResult, status models.NewsletterStatus) {
	now := f.now()
	newsletter.Status = status
	newsletter.RecipientCount = result.Recipients
	newsletter.SentCount = result.Sent
	newsletter.FailedCount = result.Failed
	newsletter.SentAt = &now
	if err := f.newsletterRepo.Update(ctx, newsletter); err != nil {
		f.logger.Error("failed to store newsletter totals", zap.Uint("newsletter_id", newsletter.ID), zap.Error(err))
	}
}
