package repository

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db, applyCampaignFilter),
	}
}

func applyCampaignFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.OperatorID != nil {
		db = db.Where("operator_id = ?", *f.OperatorID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Type != nil {
		db = db.Where("type = ?", *f.Type)
	}
	if f.ScheduledBefore != nil {
		db = db.Where("scheduled_for <= ?", *f.ScheduledBefore)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	if f.ExecutedAfter != nil {
		db = db.Where("executed_at >= ?", *f.ExecutedAfter)
	}
	if f.HasTestRecipient != nil {
		if *f.HasTestRecipient {
			db = db.Where("test_client_id IS NOT NULL")
		} else {
			db = db.Where("test_client_id IS NULL")
		}
	}
	return db
}

// ListDue returns scheduled campaigns whose scheduled_for has passed, oldest first
func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	status := models.CampaignStatusScheduled
	return r.ByFilter(ctx, models.CampaignFilter{
		Status:          &status,
		ScheduledBefore: &now,
	}, "scheduled_for ASC, id ASC", limit, 0)
}

// UpdateStatus updates only the status of a campaign
func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id uint, status models.CampaignStatus) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
}

// MarkExecuted stores the terminal status and execution time of a campaign
func (r *CampaignRepositoryImpl) MarkExecuted(ctx context.Context, id uint, status models.CampaignStatus, executedAt time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"executed_at": executedAt,
			"updated_at":  utils.UTCNow(),
		}).Error
}
