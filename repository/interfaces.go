// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// Transactor runs fn with a transaction bound to the context it receives
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
}

// CampaignRepository defines operations for marketing campaigns
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error)
	UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error
	MarkExecuted(ctx context.Context, id uint, status models.CampaignStatus, executedAt time.Time) error
}

// CampaignContentRepository defines operations for campaign contents
type CampaignContentRepository interface {
	Repository[models.CampaignContent, models.CampaignContentFilter]
	ListByCampaign(ctx context.Context, campaignID uint) ([]*models.CampaignContent, error)
	ListForExecution(ctx context.Context, campaignID uint) ([]*models.CampaignContent, error)
	ListDueContainers(ctx context.Context, now time.Time, limit int) ([]*models.CampaignContent, error)
	Update(ctx context.Context, content *models.CampaignContent) error
}

// ClientRepository defines operations for studio clients
type ClientRepository interface {
	Repository[models.Client, models.ClientFilter]
	ByIDs(ctx context.Context, ids []uint) ([]*models.Client, error)
	ListActiveIDs(ctx context.Context) ([]uint, error)
	ListNewsletterRecipients(ctx context.Context) ([]*models.Client, error)
	MarkNewsletterOptOut(ctx context.Context, id uint, at time.Time) error
}

// DeviceTokenRepository defines operations for push delivery targets
type DeviceTokenRepository interface {
	Repository[models.DeviceToken, models.DeviceTokenFilter]
	ListActiveByClientIDs(ctx context.Context, clientIDs []uint) ([]*models.DeviceToken, error)
	Deactivate(ctx context.Context, id uint, at time.Time) error
	Touch(ctx context.Context, id uint, at time.Time) error
}

// AnnouncementRepository defines operations for in-app announcements
type AnnouncementRepository interface {
	Repository[models.Announcement, models.AnnouncementFilter]
}

// NotificationQueueRepository defines operations for the notification queue
type NotificationQueueRepository interface {
	Repository[models.NotificationQueueItem, models.NotificationQueueFilter]
	ListDue(ctx context.Context, now time.Time, channels []models.NotificationChannel, maxAttempts, limit int) ([]*models.NotificationQueueItem, error)
	Update(ctx context.Context, item *models.NotificationQueueItem) error
}

// NotificationLogRepository is append-only
type NotificationLogRepository interface {
	Repository[models.NotificationLog, models.NotificationLogFilter]
}

// NewsletterCampaignRepository defines operations for newsletter sub-records
type NewsletterCampaignRepository interface {
	Repository[models.NewsletterCampaign, any]
	ListByCampaignID(ctx context.Context, campaignID uint) ([]*models.NewsletterCampaign, error)
	Update(ctx context.Context, newsletter *models.NewsletterCampaign) error
	UpdateCounters(ctx context.Context, id uint, counters models.NewsletterCounters) error
}

// NewsletterEmailRepository defines operations for per-recipient newsletter emails
type NewsletterEmailRepository interface {
	Repository[models.NewsletterEmail, models.NewsletterEmailFilter]
	ByIDForUpdate(ctx context.Context, id uint) (*models.NewsletterEmail, error)
	ListByNewsletter(ctx context.Context, newsletterCampaignID uint) ([]*models.NewsletterEmail, error)
	Counters(ctx context.Context, newsletterCampaignID uint) (models.NewsletterCounters, error)
	Update(ctx context.Context, email *models.NewsletterEmail) error
}

// EmailTrackingEventRepository is append-only
type EmailTrackingEventRepository interface {
	Repository[models.EmailTrackingEvent, any]
}

// SocialConnectionRepository reads operator platform credentials
type SocialConnectionRepository interface {
	ByOperatorAndPlatform(ctx context.Context, operatorID uint, platform models.SocialPlatform) (*models.SocialConnection, error)
}
