package repository

import (
	"context"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// ClientRepositoryImpl implements ClientRepository. Soft-deleted clients are
// excluded by gorm's DeletedAt scope.
type ClientRepositoryImpl struct {
	*BaseRepository[models.Client, models.ClientFilter]
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &ClientRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Client, models.ClientFilter](db, applyClientFilter),
	}
}

func applyClientFilter(db *gorm.DB, f models.ClientFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if len(f.IDs) > 0 {
		db = db.Where("id IN ?", f.IDs)
	}
	if f.Email != nil {
		db = db.Where("email = ?", *f.Email)
	}
	if f.IsActive != nil {
		db = db.Where("is_active = ?", *f.IsActive)
	}
	if f.NewsletterOptOut != nil {
		db = db.Where("newsletter_opt_out = ?", *f.NewsletterOptOut)
	}
	if f.HasEmail != nil {
		if *f.HasEmail {
			db = db.Where("email IS NOT NULL AND email <> ''")
		} else {
			db = db.Where("email IS NULL OR email = ''")
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

func (r *ClientRepositoryImpl) ByIDs(ctx context.Context, ids []uint) ([]*models.Client, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.ByFilter(ctx, models.ClientFilter{IDs: ids}, "id ASC", 0, 0)
}

// ListActiveIDs returns the ids of every active, non-deleted client
func (r *ClientRepositoryImpl) ListActiveIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.getDB(ctx).Model(&models.Client{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListNewsletterRecipients returns active clients with an email who did not opt out
func (r *ClientRepositoryImpl) ListNewsletterRecipients(ctx context.Context) ([]*models.Client, error) {
	active := true
	optOut := false
	hasEmail := true
	return r.ByFilter(ctx, models.ClientFilter{
		IsActive:         &active,
		NewsletterOptOut: &optOut,
		HasEmail:         &hasEmail,
	}, "id ASC", 0, 0)
}

func (r *ClientRepositoryImpl) MarkNewsletterOptOut(ctx context.Context, id uint, at time.Time) error {
	return r.getDB(ctx).Model(&models.Client{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"newsletter_opt_out": true,
			"opted_out_at":       at,
			"updated_at":         at,
		}).Error
}
