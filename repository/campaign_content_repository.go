package repository

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// CampaignContentRepositoryImpl implements CampaignContentRepository
type CampaignContentRepositoryImpl struct {
	*BaseRepository[models.CampaignContent, models.CampaignContentFilter]
}

func NewCampaignContentRepository(db *gorm.DB) CampaignContentRepository {
	return &CampaignContentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignContent, models.CampaignContentFilter](db, applyCampaignContentFilter),
	}
}

func applyCampaignContentFilter(db *gorm.DB, f models.CampaignContentFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.ContentType != nil {
		db = db.Where("content_type = ?", *f.ContentType)
	}
	if len(f.ContentTypeList) > 0 {
		db = db.Where("content_type IN ?", f.ContentTypeList)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.ExcludeStatus != nil {
		db = db.Where("status <> ?", *f.ExcludeStatus)
	}
	if f.PublishBefore != nil {
		db = db.Where("publish_at <= ?", *f.PublishBefore)
	}
	if f.HasContainerID != nil {
		if *f.HasContainerID {
			db = db.Where("container_id IS NOT NULL AND container_id <> ''")
		} else {
			db = db.Where("container_id IS NULL OR container_id = ''")
		}
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *CampaignContentRepositoryImpl) ListByCampaign(ctx context.Context, campaignID uint) ([]*models.CampaignContent, error) {
	return r.ByFilter(ctx, models.CampaignContentFilter{CampaignID: &campaignID}, "id ASC", 0, 0)
}

// ListForExecution returns every content row of a campaign that was not skipped earlier
func (r *CampaignContentRepositoryImpl) ListForExecution(ctx context.Context, campaignID uint) ([]*models.CampaignContent, error) {
	skipped := models.ContentStatusSkipped
	return r.ByFilter(ctx, models.CampaignContentFilter{
		CampaignID:    &campaignID,
		ExcludeStatus: &skipped,
	}, "id ASC", 0, 0)
}

// ListDueContainers returns scheduled social rows whose deferred container is due for publishing
func (r *CampaignContentRepositoryImpl) ListDueContainers(ctx context.Context, now time.Time, limit int) ([]*models.CampaignContent, error) {
	status := models.ContentStatusScheduled
	hasContainer := true
	return r.ByFilter(ctx, models.CampaignContentFilter{
		Status:          &status,
		PublishBefore:   &now,
		HasContainerID:  &hasContainer,
		ContentTypeList: []models.ContentType{models.ContentTypeInstagramPost, models.ContentTypeInstagramStory},
	}, "publish_at ASC, id ASC", limit, 0)
}
