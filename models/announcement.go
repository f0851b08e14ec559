package models

import (
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/gorm"
)

// Announcement is the in-app notification shared by a campaign push fan-out
type Announcement struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID *uint     `gorm:"index:idx_announcements_campaign_id" json:"campaign_id,omitempty"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	URL        *string   `gorm:"type:text" json:"url,omitempty"`
	ImageURL   *string   `gorm:"type:text" json:"image_url,omitempty"`
	IsTest     bool      `gorm:"not null;default:false" json:"is_test"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (Announcement) TableName() string { return "announcements" }

func (a *Announcement) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// AnnouncementFilter represents filter criteria for announcements
type AnnouncementFilter struct {
	ID         *uint
	CampaignID *uint
	IsTest     *bool
}
