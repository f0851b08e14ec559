package repository

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// DeviceTokenRepositoryImpl implements DeviceTokenRepository
type DeviceTokenRepositoryImpl struct {
	*BaseRepository[models.DeviceToken, models.DeviceTokenFilter]
}

func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &DeviceTokenRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DeviceToken, models.DeviceTokenFilter](db, applyDeviceTokenFilter),
	}
}

func applyDeviceTokenFilter(db *gorm.DB, f models.DeviceTokenFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if len(f.ClientIDs) > 0 {
		db = db.Where("client_id IN ?", f.ClientIDs)
	}
	if f.Platform != nil {
		db = db.Where("platform = ?", *f.Platform)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	return db
}

// ListActiveByClientIDs loads all active delivery targets of the given clients
func (r *DeviceTokenRepositoryImpl) ListActiveByClientIDs(ctx context.Context, clientIDs []uint) ([]*models.DeviceToken, error) {
	if len(clientIDs) == 0 {
		return nil, nil
	}
	active := true
	return r.ByFilter(ctx, models.DeviceTokenFilter{
		ClientIDs: clientIDs,
		IsActive:  &active,
	}, "client_id ASC, id ASC", 0, 0)
}

// Deactivate marks a target as gone so later batches skip it
func (r *DeviceTokenRepositoryImpl) Deactivate(ctx context.Context, id uint, at time.Time) error {
	return r.getDB(ctx).Model(&models.DeviceToken{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_at": at,
			"updated_at":     at,
		}).Error
}

func (r *DeviceTokenRepositoryImpl) Touch(ctx context.Context, id uint, at time.Time) error {
	return r.getDB(ctx).Model(&models.DeviceToken{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_used_at": at,
			"updated_at":   at,
		}).Error
}
