package repository

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// NotificationQueueRepositoryImpl implements NotificationQueueRepository
type NotificationQueueRepositoryImpl struct {
	*BaseRepository[models.NotificationQueueItem, models.NotificationQueueFilter]
}

func NewNotificationQueueRepository(db *gorm.DB) NotificationQueueRepository {
	return &NotificationQueueRepositoryImpl{
		BaseRepository: NewBaseRepository[models.NotificationQueueItem, models.NotificationQueueFilter](db, applyNotificationQueueFilter),
	}
}

func applyNotificationQueueFilter(db *gorm.DB, f models.NotificationQueueFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.Channel != nil {
		db = db.Where("channel = ?", *f.Channel)
	}
	if len(f.Channels) > 0 {
		db = db.Where("channel IN ?", f.Channels)
	}
	if f.Category != nil {
		db = db.Where("category = ?", *f.Category)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.ScheduledBefore != nil {
		db = db.Where("scheduled_for <= ?", *f.ScheduledBefore)
	}
	if f.MaxAttempts != nil {
		db = db.Where("attempts < ?", *f.MaxAttempts)
	}
	return db
}

// ListDue returns pending items on the given channels scheduled at or before now with attempts
// below the cap, oldest-due first
func (r *NotificationQueueRepositoryImpl) ListDue(ctx context.Context, now time.Time, channels []models.NotificationChannel, maxAttempts, limit int) ([]*models.NotificationQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	status := models.QueueItemStatusPending
	return r.ByFilter(ctx, models.NotificationQueueFilter{
		Status:          &status,
		Channels:        channels,
		ScheduledBefore: &now,
		MaxAttempts:     &maxAttempts,
	}, "scheduled_for ASC, id ASC", limit, 0)
}
