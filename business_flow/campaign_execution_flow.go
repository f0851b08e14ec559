package businessflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
)

// CampaignExecutionFlow drives campaigns from generated content to multi-channel delivery
type CampaignExecutionFlow interface {
	ExecuteCampaign(ctx context.Context, campaignID uint) (*dto.ExecuteCampaignResponse, error)
	ExecuteDueCampaigns(ctx context.Context) (*dto.ExecuteDueCampaignsResponse, error)
}

// CampaignExecutionFlowImpl implements CampaignExecutionFlow
type CampaignExecutionFlowImpl struct {
	campaignRepo     repository.CampaignRepository
	contentRepo      repository.CampaignContentRepository
	clientRepo       repository.ClientRepository
	announcementRepo repository.AnnouncementRepository
	queueRepo        repository.NotificationQueueRepository
	newsletterRepo   repository.NewsletterCampaignRepository
	socialRepo       repository.SocialConnectionRepository
	tx               repository.Transactor
	newsletter       NewsletterFlow
	social           services.SocialPublisher
	locker           Locker
	opts             DispatchOptions
	logger           *zap.Logger

	now func() time.Time
}

// CampaignExecutionDeps groups the collaborators of the orchestrator
type CampaignExecutionDeps struct {
	CampaignRepo     repository.CampaignRepository
	ContentRepo      repository.CampaignContentRepository
	ClientRepo       repository.ClientRepository
	AnnouncementRepo repository.AnnouncementRepository
	QueueRepo        repository.NotificationQueueRepository
	NewsletterRepo   repository.NewsletterCampaignRepository
	SocialRepo       repository.SocialConnectionRepository
	Transactor       repository.Transactor
	Newsletter       NewsletterFlow
	Social           services.SocialPublisher
	Locker           Locker
}

func NewCampaignExecutionFlow(deps CampaignExecutionDeps, opts DispatchOptions, logger *zap.Logger) CampaignExecutionFlow {
	locker := deps.Locker
	if locker == nil {
		locker = NoopLocker{}
	}
	return &CampaignExecutionFlowImpl{
		campaignRepo:     deps.CampaignRepo,
		contentRepo:      deps.ContentRepo,
		clientRepo:       deps.ClientRepo,
		announcementRepo: deps.AnnouncementRepo,
		queueRepo:        deps.QueueRepo,
		newsletterRepo:   deps.NewsletterRepo,
		socialRepo:       deps.SocialRepo,
		tx:               deps.Transactor,
		newsletter:       deps.Newsletter,
		social:           deps.Social,
		locker:           locker,
		opts:             opts.withDefaults(),
		logger:           logger.Named("campaign_execution"),
		now:              utils.UTCNow,
	}
}

// contentResult is what a per-type handler decided for one content row
type contentResult struct {
	status      models.ContentStatus
	reason      string
	postID      string
	containerID string
	publishAt   *time.Time
}

// ExecuteCampaign runs one campaign regardless of its status
func (f *CampaignExecutionFlowImpl) ExecuteCampaign(ctx context.Context, campaignID uint) (*dto.ExecuteCampaignResponse, error) {
	return f.executeLocked(ctx, campaignID, false)
}

// executeLocked loads the campaign under its lock. With scheduledOnly set, a campaign that
// another runner already picked up or finished is rejected with ErrCampaignNotScheduled.
func (f *CampaignExecutionFlowImpl) executeLocked(ctx context.Context, campaignID uint, scheduledOnly bool) (*dto.ExecuteCampaignResponse, error) {
	logger := loggerFrom(ctx, f.logger).With(zap.Uint("campaign_id", campaignID))

	release, err := f.locker.TryLock(ctx, campaignLockKey(campaignID), f.opts.CampaignTTL)
	switch {
	case errors.Is(err, ErrLockNotAvailable):
		return nil, NewBusinessError("CAMPAIGN_BUSY", "Campaign is already being executed", ErrCampaignBusy)
	case err != nil:
		logger.Warn("campaign lock unavailable, continuing without it", zap.Error(err))
	default:
		defer release()
	}

	campaign, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_FETCH_FAILED", "Failed to load campaign", err)
	}
	if campaign == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", ErrCampaignNotFound)
	}
	if scheduledOnly && campaign.Status != models.CampaignStatusScheduled {
		return nil, NewBusinessErrorf("CAMPAIGN_NOT_SCHEDULED", "Campaign is %s", ErrCampaignNotScheduled, campaign.Status)
	}

	return f.execute(ctx, campaign, logger)
}

// ExecuteDueCampaigns executes every scheduled campaign whose time has come. One failing
// campaign does not stop the others.
func (f *CampaignExecutionFlowImpl) ExecuteDueCampaigns(ctx context.Context) (*dto.ExecuteDueCampaignsResponse, error) {
	logger := loggerFrom(ctx, f.logger)

	due, err := f.campaignRepo.ListDue(ctx, f.now(), 0)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_FETCH_FAILED", "Failed to load due campaigns", err)
	}

	result := &dto.ExecuteDueCampaignsResponse{
		Found:     len(due),
		Campaigns: make([]dto.ExecuteCampaignResponse, 0, len(due)),
	}
	for _, campaign := range due {
		if ctx.Err() != nil {
			break
		}

		res, err := f.executeLocked(ctx, campaign.ID, true)
		switch {
		case IsCampaignBusy(err), IsCampaignNotScheduled(err), IsCampaignNotFound(err):
			logger.Debug("due campaign skipped", zap.Uint("campaign_id", campaign.ID), zap.Error(err))
			result.Skipped++
			continue
		case err != nil:
			logger.Error("due campaign execution failed", zap.Uint("campaign_id", campaign.ID), zap.Error(err))
			result.Failed++
			result.Campaigns = append(result.Campaigns, dto.ExecuteCampaignResponse{
				CampaignID: campaign.ID,
				Status:     string(models.CampaignStatusFailed),
				Errors:     []string{err.Error()},
			})
			continue
		}

		if res.Status == string(models.CampaignStatusCompleted) {
			result.Executed++
		} else {
			result.Failed++
		}
		result.Campaigns = append(result.Campaigns, *res)
	}

	logger.Info("due campaigns processed",
		zap.Int("found", result.Found),
		zap.Int("executed", result.Executed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (f *CampaignExecutionFlowImpl) execute(ctx context.Context, campaign *models.Campaign, logger *zap.Logger) (*dto.ExecuteCampaignResponse, error) {
	if err := f.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusExecuting); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to mark campaign as executing", err)
	}
	campaign.Status = models.CampaignStatusExecuting

	contents, err := f.contentRepo.ListForExecution(ctx, campaign.ID)
	if err != nil {
		f.finishCampaign(ctx, campaign, models.CampaignStatusFailed, logger)
		return nil, NewBusinessError("CONTENT_FETCH_FAILED", "Failed to load campaign contents", err)
	}

	resp := &dto.ExecuteCampaignResponse{
		CampaignID: campaign.ID,
		Errors:     []string{},
		Contents:   make([]dto.ContentOutcome, 0, len(contents)),
	}

	anyFailed := false
	for _, content := range contents {
		outcome := f.executeContent(ctx, campaign, content, logger)
		resp.Contents = append(resp.Contents, outcome)
		if outcome.Status == string(models.ContentStatusFailed) {
			anyFailed = true
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %s", content.ContentType, utils.Deref(outcome.Reason)))
		}
	}

	status := models.CampaignStatusCompleted
	if anyFailed {
		status = models.CampaignStatusFailed
	}
	executedAt := f.finishCampaign(ctx, campaign, status, logger)

	resp.Executed = true
	resp.Status = string(status)
	resp.ExecutedAt = &executedAt

	logger.Info("campaign executed",
		zap.String("status", string(status)),
		zap.Int("contents", len(contents)),
		zap.Int("errors", len(resp.Errors)))
	return resp, nil
}

func (f *CampaignExecutionFlowImpl) finishCampaign(ctx context.Context, campaign *models.Campaign, status models.CampaignStatus, logger *zap.Logger) time.Time {
	executedAt := f.now()
	if err := f.campaignRepo.MarkExecuted(ctx, campaign.ID, status, executedAt); err != nil {
		logger.Error("failed to store campaign outcome", zap.String("status", string(status)), zap.Error(err))
	}
	campaign.Status = status
	campaign.ExecutedAt = &executedAt
	campaignExecutions.WithLabelValues(string(status)).Inc()
	return executedAt
}

// executeContent runs one content row in isolation and persists its outcome
func (f *CampaignExecutionFlowImpl) executeContent(ctx context.Context, campaign *models.Campaign, content *models.CampaignContent, logger *zap.Logger) dto.ContentOutcome {
	logger = logger.With(zap.Uint("content_id", content.ID), zap.String("content_type", string(content.ContentType)))

	// Rows delivered by an earlier run keep their state on re-execution.
	if content.Status.IsDelivered() {
		return outcomeOf(content)
	}

	var res contentResult
	step, known := content.ContentType.Step()
	switch {
	case !known:
		res = failedResult(fmt.Errorf("%w: %s", ErrUnknownContentType, content.ContentType))
	case campaign.IsStepSkipped(step):
		res = contentResult{status: models.ContentStatusSkipped, reason: fmt.Sprintf("step %d skipped by operator", step)}
	default:
		var err error
		res, err = f.runHandler(ctx, campaign, content)
		if err != nil {
			res = failedResult(err)
		}
	}

	f.applyResult(ctx, content, res, logger)
	campaignContentOutcomes.WithLabelValues(string(content.ContentType), string(content.Status)).Inc()
	return outcomeOf(content)
}

// runHandler dispatches to the handler of the content type. Panics are contained to the row.
func (f *CampaignExecutionFlowImpl) runHandler(ctx context.Context, campaign *models.Campaign, content *models.CampaignContent) (res contentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch content.ContentType {
	case models.ContentTypeBrief:
		return contentResult{status: models.ContentStatusSent}, nil
	case models.ContentTypePushNotification:
		return f.executePush(ctx, campaign, content)
	case models.ContentTypeNewsletter:
		return f.executeNewsletter(ctx, campaign, content)
	case models.ContentTypeInstagramPost, models.ContentTypeInstagramStory, models.ContentTypeFacebookPost:
		return f.executeSocial(ctx, campaign, content)
	default:
		return contentResult{}, fmt.Errorf("%w: %s", ErrUnknownContentType, content.ContentType)
	}
}

func failedResult(err error) contentResult {
	return contentResult{status: models.ContentStatusFailed, reason: err.Error()}
}

func (f *CampaignExecutionFlowImpl) applyResult(ctx context.Context, content *models.CampaignContent, res contentResult, logger *zap.Logger) {
	if !content.CanTransitionTo(res.status) {
		logger.Warn("refusing content status regression",
			zap.String("from", string(content.Status)),
			zap.String("to", string(res.status)))
		return
	}

	now := f.now()
	content.Status = res.status
	content.ErrorMessage = nil
	if res.reason != "" {
		content.ErrorMessage = utils.ToPtr(utils.TruncateString(res.reason, 1000))
	}

	switch res.status {
	case models.ContentStatusFailed:
		content.RetryCount++
		logger.Warn("content execution failed", zap.String("reason", res.reason))
	case models.ContentStatusSent, models.ContentStatusPublished:
		content.SentAt = &now
	}
	if res.postID != "" {
		content.PostID = utils.ToPtr(res.postID)
	}
	if res.containerID != "" {
		content.ContainerID = utils.ToPtr(res.containerID)
	}
	if res.publishAt != nil {
		content.PublishAt = res.publishAt
	}

	if err := f.contentRepo.Update(ctx, content); err != nil {
		logger.Error("failed to store content outcome", zap.String("status", string(res.status)), zap.Error(err))
	}
}

func outcomeOf(content *models.CampaignContent) dto.ContentOutcome {
	return dto.ContentOutcome{
		ContentID:   content.ID,
		ContentType: string(content.ContentType),
		Status:      string(content.Status),
		Reason:      content.ErrorMessage,
		PostID:      content.PostID,
	}
}

// executePush records one announcement and enqueues one push item per recipient
func (f *CampaignExecutionFlowImpl) executePush(ctx context.Context, campaign *models.Campaign, content *models.CampaignContent) (contentResult, error) {
	var recipients []uint
	if campaign.IsTestMode() {
		client, err := f.clientRepo.ByID(ctx, *campaign.TestClientID)
		if err != nil {
			return contentResult{}, err
		}
		if client == nil {
			return contentResult{}, ErrTestClientNotFound
		}
		recipients = []uint{client.ID}
	} else {
		ids, err := f.clientRepo.ListActiveIDs(ctx)
		if err != nil {
			return contentResult{}, err
		}
		recipients = ids
	}

	title := utils.Deref(content.Title)
	if title == "" {
		title = campaign.Name
	}
	campaignID := campaign.ID
	now := f.now()

	err := f.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		announcement := &models.Announcement{
			CampaignID: &campaignID,
			Title:      title,
			Body:       content.Body,
			URL:        content.LinkURL,
			ImageURL:   content.ImageURL,
			IsTest:     campaign.IsTestMode(),
		}
		if err := f.announcementRepo.Save(txCtx, announcement); err != nil {
			return fmt.Errorf("create announcement: %w", err)
		}
		if len(recipients) == 0 {
			return nil
		}

		payload := models.AnnouncementPayload{
			AnnouncementID: announcement.ID,
			CampaignID:     &campaignID,
			IsTest:         campaign.IsTestMode(),
			Link:           utils.Deref(content.LinkURL),
		}
		items := make([]*models.NotificationQueueItem, 0, len(recipients))
		for _, clientID := range recipients {
			item := &models.NotificationQueueItem{
				ClientID:     clientID,
				Category:     models.NotificationCategoryAnnouncement,
				Channel:      models.NotificationChannelPush,
				Title:        title,
				Body:         content.Body,
				ScheduledFor: now,
				Status:       models.QueueItemStatusPending,
			}
			if err := item.SetPayload(payload); err != nil {
				return err
			}
			items = append(items, item)
		}
		if err := f.queueRepo.SaveBatch(txCtx, items); err != nil {
			return fmt.Errorf("enqueue push notifications: %w", err)
		}
		return nil
	})
	if err != nil {
		return contentResult{}, err
	}

	return contentResult{status: models.ContentStatusSent}, nil
}

// executeNewsletter records a newsletter sub-record and runs the synchronous send loop
func (f *CampaignExecutionFlowImpl) executeNewsletter(ctx context.Context, campaign *models.Campaign, content *models.CampaignContent) (contentResult, error) {
	var recipients []*models.Client
	if campaign.IsTestMode() {
		client, err := f.clientRepo.ByID(ctx, *campaign.TestClientID)
		if err != nil {
			return contentResult{}, err
		}
		if client == nil {
			return contentResult{}, ErrTestClientNotFound
		}
		recipients = []*models.Client{client}
	} else {
		clients, err := f.clientRepo.ListNewsletterRecipients(ctx)
		if err != nil {
			return contentResult{}, err
		}
		recipients = clients
	}

	subject := utils.Deref(content.Title)
	if subject == "" {
		subject = campaign.Name
	}
	campaignID, contentID := campaign.ID, content.ID
	newsletter := &models.NewsletterCampaign{
		CampaignID: &campaignID,
		ContentID:  &contentID,
		Subject:    subject,
		Body:       content.Body,
		Status:     models.NewsletterStatusSending,
		IsTest:     campaign.IsTestMode(),
	}
	if err := f.newsletterRepo.Save(ctx, newsletter); err != nil {
		return contentResult{}, fmt.Errorf("create newsletter: %w", err)
	}

	sent, err := f.newsletter.Send(ctx, newsletter, recipients)
	if err != nil {
		return contentResult{}, err
	}
	if sent.Recipients > 0 && sent.Sent == 0 {
		return contentResult{}, ErrNoNewsletterDelivered
	}
	return contentResult{status: models.ContentStatusSent}, nil
}

// executeSocial publishes to the content's platform. Authoring gaps skip the row.
func (f *CampaignExecutionFlowImpl) executeSocial(ctx context.Context, campaign *models.Campaign, content *models.CampaignContent) (contentResult, error) {
	if campaign.IsTestMode() {
		return contentResult{status: models.ContentStatusSkipped, reason: "social publishing is disabled in test mode"}, nil
	}
	if err := services.ValidateSocialContent(content); err != nil {
		return contentResult{status: models.ContentStatusSkipped, reason: err.Error()}, nil
	}

	platform, _ := models.PlatformFor(content.ContentType)
	conn, err := f.socialRepo.ByOperatorAndPlatform(ctx, campaign.OperatorID, platform)
	if err != nil {
		return contentResult{}, err
	}
	if conn == nil {
		return contentResult{}, services.NewConfigError("NO_SOCIAL_CONNECTION", fmt.Sprintf("no connected %s account", platform))
	}

	var scheduledAt *time.Time
	if content.PublishAt != nil && content.PublishAt.After(f.now()) {
		at := *content.PublishAt
		scheduledAt = &at
	}

	res, err := f.social.Publish(ctx, content, conn, scheduledAt)
	if err != nil {
		if services.IsValidation(err) {
			return contentResult{status: models.ContentStatusSkipped, reason: err.Error()}, nil
		}
		return contentResult{}, err
	}

	out := contentResult{
		status:      models.ContentStatusPublished,
		postID:      res.PostID,
		containerID: res.ContainerID,
		publishAt:   res.ScheduledAt,
	}
	if res.Deferred || res.ScheduledAt != nil {
		out.status = models.ContentStatusScheduled
	}
	return out, nil
}
