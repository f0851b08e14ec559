// Package models contains domain entities for campaign execution and notification dispatch
package models

import (
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a studio customer and the recipient of notifications
type Client struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_clients_uuid" json:"uuid"`
	FirstName string    `gorm:"size:255;not null" json:"first_name"`
	LastName  string    `gorm:"size:255;not null" json:"last_name"`
	Email     *string   `gorm:"size:255;index:idx_clients_email" json:"email,omitempty"`
	Phone     *string   `gorm:"size:20" json:"phone,omitempty"`

	IsActive         *bool      `gorm:"default:true;index:idx_clients_is_active" json:"is_active"`
	NewsletterOptOut bool       `gorm:"not null;default:false" json:"newsletter_opt_out"`
	OptedOutAt       *time.Time `json:"opted_out_at,omitempty"`

	CreatedAt time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index:idx_clients_deleted_at" json:"-"`
}

func (Client) TableName() string {
	return "clients"
}

// BeforeCreate is called before creating a new record
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// FullName joins first and last name
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// EmailAddress returns the trimmed email, empty when the client has none
func (c *Client) EmailAddress() string {
	if c.Email == nil {
		return ""
	}
	return strings.TrimSpace(*c.Email)
}

// AcceptsNewsletter reports whether the client may receive bulk newsletters
func (c *Client) AcceptsNewsletter() bool {
	return utils.IsTrue(c.IsActive) && !c.NewsletterOptOut && c.EmailAddress() != ""
}

// ClientFilter represents filter criteria for client queries
type ClientFilter struct {
	ID               *uint
	IDs              []uint
	Email            *string
	IsActive         *bool
	NewsletterOptOut *bool
	HasEmail         *bool
	CreatedAfter     *time.Time
	CreatedBefore    *time.Time
}
