package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
)

// SocialPublishFlow publishes deferred media containers once their scheduled time arrives
type SocialPublishFlow interface {
	PublishDueContainers(ctx context.Context) (*dto.PublishDueContainersResponse, error)
}

// SocialPublishFlowImpl implements SocialPublishFlow
type SocialPublishFlowImpl struct {
	contentRepo  repository.CampaignContentRepository
	campaignRepo repository.CampaignRepository
	socialRepo   repository.SocialConnectionRepository
	social       services.SocialPublisher
	batchSize    int
	maxAttempts  int
	logger       *zap.Logger

	now func() time.Time
}

func NewSocialPublishFlow(
	contentRepo repository.CampaignContentRepository,
	campaignRepo repository.CampaignRepository,
	socialRepo repository.SocialConnectionRepository,
	social services.SocialPublisher,
	opts DispatchOptions,
	logger *zap.Logger,
) SocialPublishFlow {
	opts = opts.withDefaults()
	return &SocialPublishFlowImpl{
		contentRepo:  contentRepo,
		campaignRepo: campaignRepo,
		socialRepo:   socialRepo,
		social:       social,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
		logger:       logger.Named("social_publish"),
		now:          utils.UTCNow,
	}
}

func (f *SocialPublishFlowImpl) PublishDueContainers(ctx context.Context) (*dto.PublishDueContainersResponse, error) {
	logger := loggerFrom(ctx, f.logger)

	rows, err := f.contentRepo.ListDueContainers(ctx, f.now(), f.batchSize)
	if err != nil {
		return nil, NewBusinessError("CONTENT_FETCH_FAILED", "Failed to load scheduled social contents", err)
	}

	result := &dto.PublishDueContainersResponse{Found: len(rows)}
	operators := map[uint]uint{}
	failedCampaigns := map[uint]bool{}
	for _, content := range rows {
		if ctx.Err() != nil {
			break
		}
		rowLogger := logger.With(zap.Uint("content_id", content.ID), zap.Uint("campaign_id", content.CampaignID))

		postID, err := f.publishOne(ctx, content, operators)
		now := f.now()
		switch {
		case err != nil && services.IsTransient(err) && content.RetryCount+1 < f.maxAttempts:
			// Row stays scheduled and is picked up again on the next pass.
			content.ErrorMessage = errString(err)
			content.RetryCount++
			result.Retried++
			rowLogger.Info("deferred publish will be retried", zap.Int("retry_count", content.RetryCount), zap.Error(err))
		case err != nil:
			content.Status = models.ContentStatusFailed
			content.ErrorMessage = errString(err)
			content.RetryCount++
			result.Failed++
			rowLogger.Warn("deferred publish failed", zap.Error(err))
			if !errors.Is(err, ErrCampaignNotFound) && !failedCampaigns[content.CampaignID] {
				failedCampaigns[content.CampaignID] = true
				if err := f.campaignRepo.UpdateStatus(ctx, content.CampaignID, models.CampaignStatusFailed); err != nil {
					rowLogger.Error("failed to mark campaign failed", zap.Error(err))
				}
			}
		default:
			content.Status = models.ContentStatusPublished
			content.PostID = &postID
			content.ErrorMessage = nil
			content.SentAt = &now
			result.Published++
			rowLogger.Info("deferred container published", zap.String("post_id", postID))
		}
		campaignContentOutcomes.WithLabelValues(string(content.ContentType), string(content.Status)).Inc()

		if err := f.contentRepo.Update(ctx, content); err != nil {
			rowLogger.Error("failed to store publish outcome", zap.Error(err))
		}
	}
	return result, nil
}

func (f *SocialPublishFlowImpl) publishOne(ctx context.Context, content *models.CampaignContent, operators map[uint]uint) (string, error) {
	operatorID, ok := operators[content.CampaignID]
	if !ok {
		campaign, err := f.campaignRepo.ByID(ctx, content.CampaignID)
		if err != nil {
			return "", err
		}
		if campaign == nil {
			return "", services.NewPermanentError("CAMPAIGN_NOT_FOUND", "campaign not found", 0, ErrCampaignNotFound)
		}
		operatorID = campaign.OperatorID
		operators[content.CampaignID] = operatorID
	}

	platform, _ := models.PlatformFor(content.ContentType)
	conn, err := f.socialRepo.ByOperatorAndPlatform(ctx, operatorID, platform)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", services.NewConfigError("NO_SOCIAL_CONNECTION", "no connected account for this platform")
	}
	if conn.IsExpired(f.now()) {
		return "", services.NewPermanentError(services.ErrTokenExpired.Error(), "social access token has expired", 0, services.ErrTokenExpired)
	}
	return f.social.PublishContainer(ctx, conn, utils.Deref(content.ContainerID))
}
