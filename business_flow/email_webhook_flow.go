package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// EmailWebhookFlow reconciles provider delivery events into stored newsletter email status
type EmailWebhookFlow interface {
	HandleEvent(ctx context.Context, raw []byte) (*dto.EmailWebhookResult, error)
}

// EmailWebhookFlowImpl implements EmailWebhookFlow
type EmailWebhookFlowImpl struct {
	emailRepo      repository.NewsletterEmailRepository
	eventRepo      repository.EmailTrackingEventRepository
	newsletterRepo repository.NewsletterCampaignRepository
	tx             repository.Transactor
	logger         *zap.Logger

	now func() time.Time
}

func NewEmailWebhookFlow(
	emailRepo repository.NewsletterEmailRepository,
	eventRepo repository.EmailTrackingEventRepository,
	newsletterRepo repository.NewsletterCampaignRepository,
	tx repository.Transactor,
	logger *zap.Logger,
) EmailWebhookFlow {
	return &EmailWebhookFlowImpl{
		emailRepo:      emailRepo,
		eventRepo:      eventRepo,
		newsletterRepo: newsletterRepo,
		tx:             tx,
		logger:         logger.Named("email_webhook"),
		now:            utils.UTCNow,
	}
}

// HandleEvent applies one webhook. A malformed body returns ErrInvalidWebhookPayload;
// unsupported or untagged events are acknowledged as ignored.
func (f *EmailWebhookFlowImpl) HandleEvent(ctx context.Context, raw []byte) (*dto.EmailWebhookResult, error) {
	logger := loggerFrom(ctx, f.logger)

	ev, err := ParseEmailWebhook(raw, f.now())
	if err != nil {
		emailWebhookEvents.WithLabelValues("invalid", "rejected").Inc()
		return nil, err
	}

	result := &dto.EmailWebhookResult{EventType: ev.Type, EmailID: ev.EmailID}
	if !ev.Supported() {
		result.Ignored, result.Reason = true, "UNSUPPORTED_EVENT"
		emailWebhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		return result, nil
	}
	if ev.EmailID == nil {
		result.Ignored, result.Reason = true, "NO_CORRELATION_ID"
		emailWebhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		return result, nil
	}

	logger = logger.With(zap.Uint("newsletter_email_id", *ev.EmailID), zap.String("event_type", ev.Type))

	var newsletterID uint
	err = f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		email, err := f.emailRepo.ByIDForUpdate(txCtx, *ev.EmailID)
		if err != nil {
			return err
		}
		if email == nil {
			result.Ignored, result.Reason = true, "EMAIL_NOT_FOUND"
			return nil
		}
		newsletterID = email.NewsletterCampaignID

		applied := ev.Status.Outranks(email.Status)
		if applied {
			email.Status = ev.Status
			email.StampStatusTime(ev.Status, ev.OccurredAt)
			if ev.Status == models.EmailStatusClicked && ev.ClickURL != "" {
				email.LastClickURL = utils.ToPtr(ev.ClickURL)
			}
			if err := f.emailRepo.Update(txCtx, email); err != nil {
				return err
			}
		}
		result.Applied = applied

		event := &models.EmailTrackingEvent{
			NewsletterEmailID: email.ID,
			EventType:         ev.Type,
			MappedStatus:      ev.Status,
			Applied:           applied,
			OccurredAt:        ev.OccurredAt,
			Payload:           datatypes.JSON(ev.Raw),
		}
		if err := f.eventRepo.Save(txCtx, event); err != nil {
			return err
		}

		counters, err := f.emailRepo.Counters(txCtx, email.NewsletterCampaignID)
		if err != nil {
			return err
		}
		return f.newsletterRepo.UpdateCounters(txCtx, email.NewsletterCampaignID, counters)
	})
	if err != nil {
		emailWebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return nil, NewBusinessError("WEBHOOK_PROCESSING_FAILED", "Failed to apply email event", err)
	}

	switch {
	case result.Ignored:
		emailWebhookEvents.WithLabelValues(ev.Type, "ignored").Inc()
		logger.Info("webhook event for unknown email ignored")
	case result.Applied:
		emailWebhookEvents.WithLabelValues(ev.Type, "applied").Inc()
		logger.Debug("email status advanced", zap.String("status", string(ev.Status)), zap.Uint("newsletter_id", newsletterID))
	default:
		emailWebhookEvents.WithLabelValues(ev.Type, "stale").Inc()
		logger.Debug("lower priority event recorded without status change")
	}
	return result, nil
}
