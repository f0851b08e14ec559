package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a marketing campaign
type CampaignStatus string

const (
	CampaignStatusDraft         CampaignStatus = "draft"
	CampaignStatusAIGenerating  CampaignStatus = "ai_generating"
	CampaignStatusPendingReview CampaignStatus = "pending_review"
	CampaignStatusScheduled     CampaignStatus = "scheduled"
	CampaignStatusExecuting     CampaignStatus = "executing"
	CampaignStatusCompleted     CampaignStatus = "completed"
	CampaignStatusFailed        CampaignStatus = "failed"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusAIGenerating, CampaignStatusPendingReview,
		CampaignStatusScheduled, CampaignStatusExecuting, CampaignStatusCompleted,
		CampaignStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// CampaignType is the marketing intent of a campaign
type CampaignType string

const (
	CampaignTypePromo        CampaignType = "promo"
	CampaignTypeEvent        CampaignType = "event"
	CampaignTypeAnnouncement CampaignType = "announcement"
	CampaignTypeNewCourse    CampaignType = "new_course"
)

func (t CampaignType) Valid() bool {
	switch t {
	case CampaignTypePromo, CampaignTypeEvent, CampaignTypeAnnouncement, CampaignTypeNewCourse:
		return true
	default:
		return false
	}
}

// CampaignTarget describes the audience a campaign was authored for
type CampaignTarget struct {
	Segment  string  `json:"segment"`
	Category *string `json:"category,omitempty"`
}

// Value implements the driver.Valuer interface for CampaignTarget
func (t CampaignTarget) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements the sql.Scanner interface for CampaignTarget
func (t *CampaignTarget) Scan(value any) error {
	if value == nil {
		*t = CampaignTarget{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CampaignTarget", value)
	}

	return json.Unmarshal(bytes, t)
}

// Campaign represents a marketing campaign executed across one or more channels
type Campaign struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	OperatorID   uint           `gorm:"not null;index:idx_campaigns_operator_id" json:"operator_id"`
	Name         string         `gorm:"size:255;not null" json:"name"`
	Type         CampaignType   `gorm:"size:32;not null" json:"type"`
	Target       CampaignTarget `gorm:"type:jsonb;not null" json:"target"`
	Tone         *string        `gorm:"size:64" json:"tone,omitempty"`
	Status       CampaignStatus `gorm:"size:32;not null;default:'draft';index:idx_campaigns_status_scheduled_for,priority:1" json:"status"`
	SkippedSteps pq.Int64Array  `gorm:"type:bigint[];not null;default:'{}'" json:"skipped_steps"`
	TestClientID *uint          `json:"test_client_id,omitempty"`
	ScheduledFor *time.Time     `gorm:"index:idx_campaigns_status_scheduled_for,priority:2" json:"scheduled_for,omitempty"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`

	Contents []CampaignContent `gorm:"foreignKey:CampaignID" json:"contents,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.SkippedSteps == nil {
		c.SkippedSteps = pq.Int64Array{}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// IsTestMode reports whether fan-out is restricted to a single test recipient
func (c *Campaign) IsTestMode() bool {
	return c.TestClientID != nil
}

// IsStepSkipped reports whether the operator opted out of the given lifecycle step
func (c *Campaign) IsStepSkipped(step int) bool {
	return slices.Contains(c.SkippedSteps, int64(step))
}

// IsDue reports whether a scheduled campaign should be executed at now
func (c *Campaign) IsDue(now time.Time) bool {
	return c.Status == CampaignStatusScheduled && c.ScheduledFor != nil && !c.ScheduledFor.After(now)
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID               *uint           `json:"id,omitempty"`
	OperatorID       *uint           `json:"operator_id,omitempty"`
	Status           *CampaignStatus `json:"status,omitempty"`
	Type             *CampaignType   `json:"type,omitempty"`
	ScheduledBefore  *time.Time      `json:"scheduled_before,omitempty"`
	CreatedAfter     *time.Time      `json:"created_after,omitempty"`
	CreatedBefore    *time.Time      `json:"created_before,omitempty"`
	ExecutedAfter    *time.Time      `json:"executed_after,omitempty"`
	HasTestRecipient *bool           `json:"has_test_recipient,omitempty"`
}
