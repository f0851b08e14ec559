package repository

import (
	"context"
	"errors"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"gorm.io/gorm"
)

// SocialConnectionRepositoryImpl implements SocialConnectionRepository
type SocialConnectionRepositoryImpl struct {
	db *gorm.DB
}

func NewSocialConnectionRepository(db *gorm.DB) SocialConnectionRepository {
	return &SocialConnectionRepositoryImpl{db: db}
}

func (r *SocialConnectionRepositoryImpl) ByOperatorAndPlatform(ctx context.Context, operatorID uint, platform models.SocialPlatform) (*models.SocialConnection, error) {
	db := r.db.WithContext(ctx)
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		db = tx
	}

	var row models.SocialConnection
	err := db.Where("operator_id = ? AND platform = ?", operatorID, platform).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
