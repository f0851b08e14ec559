package repository

import (
	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// AnnouncementRepositoryImpl implements AnnouncementRepository
type AnnouncementRepositoryImpl struct {
	*BaseRepository[models.Announcement, models.AnnouncementFilter]
}

func NewAnnouncementRepository(db *gorm.DB) AnnouncementRepository {
	return &AnnouncementRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Announcement, models.AnnouncementFilter](db, func(db *gorm.DB, f models.AnnouncementFilter) *gorm.DB {
			if f.ID != nil {
				db = db.Where("id = ?", *f.ID)
			}
			if f.CampaignID != nil {
				db = db.Where("campaign_id = ?", *f.CampaignID)
			}
			if f.IsTest != nil {
				db = db.Where("is_test = ?", *f.IsTest)
			}
			return db
		}),
	}
}
