package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ContentType identifies the channel-specific rendering of a campaign
type ContentType string

const (
	ContentTypeBrief            ContentType = "brief"
	ContentTypePushNotification ContentType = "push_notification"
	ContentTypeNewsletter       ContentType = "newsletter"
	ContentTypeInstagramPost    ContentType = "instagram_post"
	ContentTypeInstagramStory   ContentType = "instagram_story"
	ContentTypeFacebookPost     ContentType = "facebook_post"
)

// AllContentTypes lists every content type the orchestrator must be able to dispatch
var AllContentTypes = []ContentType{
	ContentTypeBrief,
	ContentTypePushNotification,
	ContentTypeNewsletter,
	ContentTypeInstagramPost,
	ContentTypeInstagramStory,
	ContentTypeFacebookPost,
}

// Campaign wizard steps. Steps 1 and 2 are setup and generation.
const (
	StepBrief      = 3
	StepPush       = 4
	StepNewsletter = 5
	StepInstagram  = 6
	StepFacebook   = 7
)

func (t ContentType) String() string {
	return string(t)
}

func (t ContentType) Valid() bool {
	_, ok := t.Step()
	return ok
}

// Step returns the lifecycle step a content type belongs to
func (t ContentType) Step() (int, bool) {
	switch t {
	case ContentTypeBrief:
		return StepBrief, true
	case ContentTypePushNotification:
		return StepPush, true
	case ContentTypeNewsletter:
		return StepNewsletter, true
	case ContentTypeInstagramPost, ContentTypeInstagramStory:
		return StepInstagram, true
	case ContentTypeFacebookPost:
		return StepFacebook, true
	default:
		return 0, false
	}
}

// IsSocial reports whether the content is published to a social platform
func (t ContentType) IsSocial() bool {
	return t == ContentTypeInstagramPost || t == ContentTypeInstagramStory || t == ContentTypeFacebookPost
}

// ContentStatus represents the delivery status of one campaign content row
type ContentStatus string

const (
	ContentStatusGenerated ContentStatus = "generated"
	ContentStatusSent      ContentStatus = "sent"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusScheduled ContentStatus = "scheduled"
	ContentStatusSkipped   ContentStatus = "skipped"
	ContentStatusFailed    ContentStatus = "failed"
)

func (s ContentStatus) String() string {
	return string(s)
}

func (s ContentStatus) Valid() bool {
	switch s {
	case ContentStatusGenerated, ContentStatusSent, ContentStatusPublished,
		ContentStatusScheduled, ContentStatusSkipped, ContentStatusFailed:
		return true
	default:
		return false
	}
}

// IsDelivered reports whether the row reached a non-failed outcome that needs no further dispatch
func (s ContentStatus) IsDelivered() bool {
	return s == ContentStatusSent || s == ContentStatusPublished || s == ContentStatusScheduled
}

// Scan implements the sql.Scanner interface for ContentStatus
func (s *ContentStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ContentStatus(v)
	case []byte:
		*s = ContentStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ContentStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ContentStatus
func (s ContentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ContentStatus: %s", s)
	}
	return string(s), nil
}

// CampaignContent is the rendered payload of a campaign for one channel
type CampaignContent struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CampaignID   uint           `gorm:"not null;uniqueIndex:uk_campaign_contents_campaign_type,priority:1" json:"campaign_id"`
	ContentType  ContentType    `gorm:"size:32;not null;uniqueIndex:uk_campaign_contents_campaign_type,priority:2" json:"content_type"`
	Title        *string        `gorm:"size:255" json:"title,omitempty"`
	Body         string         `gorm:"type:text;not null" json:"body"`
	ImageURL     *string        `gorm:"type:text" json:"image_url,omitempty"`
	VideoURL     *string        `gorm:"type:text" json:"video_url,omitempty"`
	LinkURL      *string        `gorm:"type:text" json:"link_url,omitempty"`
	Hashtags     pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"hashtags"`
	Status       ContentStatus  `gorm:"size:32;not null;default:'generated';index:idx_campaign_contents_status" json:"status"`
	ErrorMessage *string        `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int            `gorm:"not null;default:0" json:"retry_count"`
	PublishAt    *time.Time     `gorm:"index:idx_campaign_contents_publish_at" json:"publish_at,omitempty"`
	ContainerID  *string        `gorm:"size:128" json:"container_id,omitempty"`
	PostID       *string        `gorm:"size:128" json:"post_id,omitempty"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	CreatedAt    time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
}

func (CampaignContent) TableName() string { return "campaign_contents" }

// BeforeCreate is called before creating a new record
func (c *CampaignContent) BeforeCreate(tx *gorm.DB) error {
	if c.Status == "" {
		c.Status = ContentStatusGenerated
	}
	if c.Hashtags == nil {
		c.Hashtags = pq.StringArray{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *CampaignContent) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the content can move to the given status without regressing.
// Failed rows may be retried by a later execution.
func (c *CampaignContent) CanTransitionTo(newStatus ContentStatus) bool {
	switch c.Status {
	case ContentStatusGenerated, ContentStatusFailed:
		return newStatus == ContentStatusSent ||
			newStatus == ContentStatusPublished ||
			newStatus == ContentStatusScheduled ||
			newStatus == ContentStatusSkipped ||
			newStatus == ContentStatusFailed
	case ContentStatusScheduled:
		return newStatus == ContentStatusPublished || newStatus == ContentStatusFailed
	default:
		return false
	}
}

// HasText reports whether the content carries any non-blank body text
func (c *CampaignContent) HasText() bool {
	return strings.TrimSpace(c.Body) != ""
}

// CampaignContentFilter represents filter criteria for campaign contents
type CampaignContentFilter struct {
	ID              *uint          `json:"id,omitempty"`
	CampaignID      *uint          `json:"campaign_id,omitempty"`
	ContentType     *ContentType   `json:"content_type,omitempty"`
	Status          *ContentStatus `json:"status,omitempty"`
	ExcludeStatus   *ContentStatus `json:"exclude_status,omitempty"`
	PublishBefore   *time.Time     `json:"publish_before,omitempty"`
	HasContainerID  *bool          `json:"has_container_id,omitempty"`
	CreatedAfter    *time.Time     `json:"created_after,omitempty"`
	CreatedBefore   *time.Time     `json:"created_before,omitempty"`
	ContentTypeList []ContentType  `json:"content_type_list,omitempty"`
}
