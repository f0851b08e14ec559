package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewsletterCampaignRepositoryImpl implements NewsletterCampaignRepository
type NewsletterCampaignRepositoryImpl struct {
	*BaseRepository[models.NewsletterCampaign, any]
}

func NewNewsletterCampaignRepository(db *gorm.DB) NewsletterCampaignRepository {
	return &NewsletterCampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.NewsletterCampaign, any](db, nil),
	}
}

func (r *NewsletterCampaignRepositoryImpl) ListByCampaignID(ctx context.Context, campaignID uint) ([]*models.NewsletterCampaign, error) {
	var rows []*models.NewsletterCampaign
	err := r.getDB(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateCounters overwrites the webhook-driven counters with a fresh aggregate
func (r *NewsletterCampaignRepositoryImpl) UpdateCounters(ctx context.Context, id uint, c models.NewsletterCounters) error {
	return r.getDB(ctx).Model(&models.NewsletterCampaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"delivered_count":  c.Delivered,
			"opened_count":     c.Opened,
			"clicked_count":    c.Clicked,
			"bounced_count":    c.Bounced,
			"complained_count": c.Complained,
			"updated_at":       utils.UTCNow(),
		}).Error
}

// NewsletterEmailRepositoryImpl implements NewsletterEmailRepository
type NewsletterEmailRepositoryImpl struct {
	*BaseRepository[models.NewsletterEmail, models.NewsletterEmailFilter]
}

func NewNewsletterEmailRepository(db *gorm.DB) NewsletterEmailRepository {
	return &NewsletterEmailRepositoryImpl{
		BaseRepository: NewBaseRepository[models.NewsletterEmail, models.NewsletterEmailFilter](db, applyNewsletterEmailFilter),
	}
}

func applyNewsletterEmailFilter(db *gorm.DB, f models.NewsletterEmailFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.NewsletterCampaignID != nil {
		db = db.Where("newsletter_campaign_id = ?", *f.NewsletterCampaignID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.ProviderMessageID != nil {
		db = db.Where("provider_message_id = ?", *f.ProviderMessageID)
	}
	return db
}

// ByIDForUpdate loads an email row and locks it until the surrounding transaction ends
func (r *NewsletterEmailRepositoryImpl) ByIDForUpdate(ctx context.Context, id uint) (*models.NewsletterEmail, error) {
	var row models.NewsletterEmail
	err := r.getDB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock newsletter email %d: %w", id, err)
	}
	return &row, nil
}

func (r *NewsletterEmailRepositoryImpl) ListByNewsletter(ctx context.Context, newsletterCampaignID uint) ([]*models.NewsletterEmail, error) {
	return r.ByFilter(ctx, models.NewsletterEmailFilter{NewsletterCampaignID: &newsletterCampaignID}, "id ASC", 0, 0)
}

// Counters re-aggregates delivery counters from every email of a newsletter.
// Delivered counts every email that reached delivered or beyond on the engagement path.
func (r *NewsletterEmailRepositoryImpl) Counters(ctx context.Context, newsletterCampaignID uint) (models.NewsletterCounters, error) {
	var row struct {
		Delivered  int
		Opened     int
		Clicked    int
		Bounced    int
		Complained int
	}
	err := r.getDB(ctx).Model(&models.NewsletterEmail{}).
		Select(`
			COUNT(*) FILTER (WHERE status IN ('delivered','opened','clicked')) AS delivered,
			COUNT(*) FILTER (WHERE status IN ('opened','clicked')) AS opened,
			COUNT(*) FILTER (WHERE status = 'clicked') AS clicked,
			COUNT(*) FILTER (WHERE status = 'bounced') AS bounced,
			COUNT(*) FILTER (WHERE status = 'complained') AS complained`).
		Where("newsletter_campaign_id = ?", newsletterCampaignID).
		Scan(&row).Error
	if err != nil {
		return models.NewsletterCounters{}, err
	}
	return models.NewsletterCounters{
		Delivered:  row.Delivered,
		Opened:     row.Opened,
		Clicked:    row.Clicked,
		Bounced:    row.Bounced,
		Complained: row.Complained,
	}, nil
}

// EmailTrackingEventRepositoryImpl implements EmailTrackingEventRepository
type EmailTrackingEventRepositoryImpl struct {
	*BaseRepository[models.EmailTrackingEvent, any]
}

func NewEmailTrackingEventRepository(db *gorm.DB) EmailTrackingEventRepository {
	return &EmailTrackingEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.EmailTrackingEvent, any](db, nil),
	}
}
