package repository

import (
	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// NotificationLogRepositoryImpl implements NotificationLogRepository
type NotificationLogRepositoryImpl struct {
	*BaseRepository[models.NotificationLog, models.NotificationLogFilter]
}

func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &NotificationLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.NotificationLog, models.NotificationLogFilter](db, applyNotificationLogFilter),
	}
}

func applyNotificationLogFilter(db *gorm.DB, f models.NotificationLogFilter) *gorm.DB {
	if f.QueueItemID != nil {
		db = db.Where("queue_item_id = ?", *f.QueueItemID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.Channel != nil {
		db = db.Where("channel = ?", *f.Channel)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}
