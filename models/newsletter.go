package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewsletterStatus is the status of a newsletter blast
type NewsletterStatus string

const (
	NewsletterStatusSending NewsletterStatus = "sending"
	NewsletterStatusSent    NewsletterStatus = "sent"
	NewsletterStatusFailed  NewsletterStatus = "failed"
)

// EmailStatus is the delivery status of one newsletter email
type EmailStatus string

const (
	EmailStatusPending    EmailStatus = "pending"
	EmailStatusSent       EmailStatus = "sent"
	EmailStatusDelivered  EmailStatus = "delivered"
	EmailStatusOpened     EmailStatus = "opened"
	EmailStatusClicked    EmailStatus = "clicked"
	EmailStatusBounced    EmailStatus = "bounced"
	EmailStatusComplained EmailStatus = "complained"
	EmailStatusFailed     EmailStatus = "failed"
)

var emailStatusPriority = map[EmailStatus]int{
	EmailStatusPending:    0,
	EmailStatusSent:       1,
	EmailStatusDelivered:  2,
	EmailStatusOpened:     3,
	EmailStatusClicked:    4,
	EmailStatusBounced:    10,
	EmailStatusComplained: 11,
	EmailStatusFailed:     12,
}

func (s EmailStatus) String() string {
	return string(s)
}

func (s EmailStatus) Valid() bool {
	_, ok := emailStatusPriority[s]
	return ok
}

// Priority returns the position of s in the total status order. Unknown statuses rank lowest.
func (s EmailStatus) Priority() int {
	if p, ok := emailStatusPriority[s]; ok {
		return p
	}
	return -1
}

// Outranks reports whether s strictly outranks other
func (s EmailStatus) Outranks(other EmailStatus) bool {
	return s.Priority() > other.Priority()
}

// Scan implements the sql.Scanner interface for EmailStatus
func (s *EmailStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = EmailStatus(v)
	case []byte:
		*s = EmailStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into EmailStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for EmailStatus
func (s EmailStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid EmailStatus: %s", s)
	}
	return string(s), nil
}

// NewsletterCampaign is the newsletter sub-record of a marketing campaign with its
// denormalized delivery counters
type NewsletterCampaign struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	CampaignID     *uint            `gorm:"index:idx_newsletter_campaigns_campaign_id" json:"campaign_id,omitempty"`
	ContentID      *uint            `json:"content_id,omitempty"`
	Subject        string           `gorm:"size:255;not null" json:"subject"`
	Body           string           `gorm:"type:text;not null" json:"body"`
	Status         NewsletterStatus `gorm:"size:16;not null;default:'sending'" json:"status"`
	IsTest         bool             `gorm:"not null;default:false" json:"is_test"`
	RecipientCount int              `gorm:"not null;default:0" json:"recipient_count"`
	SentCount      int              `gorm:"not null;default:0" json:"sent_count"`
	FailedCount    int              `gorm:"not null;default:0" json:"failed_count"`

	DeliveredCount  int `gorm:"not null;default:0" json:"delivered_count"`
	OpenedCount     int `gorm:"not null;default:0" json:"opened_count"`
	ClickedCount    int `gorm:"not null;default:0" json:"clicked_count"`
	BouncedCount    int `gorm:"not null;default:0" json:"bounced_count"`
	ComplainedCount int `gorm:"not null;default:0" json:"complained_count"`

	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (NewsletterCampaign) TableName() string { return "newsletter_campaigns" }

func (n *NewsletterCampaign) BeforeCreate(tx *gorm.DB) error {
	if n.Status == "" {
		n.Status = NewsletterStatusSending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = utils.UTCNow()
	}
	return nil
}

// NewsletterCounters are the re-aggregated webhook-driven counters of a newsletter
type NewsletterCounters struct {
	Delivered  int
	Opened     int
	Clicked    int
	Bounced    int
	Complained int
}

// NewsletterEmail is the per-recipient send record of a newsletter
type NewsletterEmail struct {
	ID                   uint        `gorm:"primaryKey" json:"id"`
	NewsletterCampaignID uint        `gorm:"not null;index:idx_newsletter_emails_newsletter_id" json:"newsletter_campaign_id"`
	ClientID             uint        `gorm:"not null;index:idx_newsletter_emails_client_id" json:"client_id"`
	Email                string      `gorm:"size:255;not null" json:"email"`
	Status               EmailStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	ProviderMessageID    *string     `gorm:"size:255;index:idx_newsletter_emails_provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage         *string     `gorm:"type:text" json:"error_message,omitempty"`
	LastClickURL         *string     `gorm:"type:text" json:"last_click_url,omitempty"`
	SentAt               *time.Time  `json:"sent_at,omitempty"`
	DeliveredAt          *time.Time  `json:"delivered_at,omitempty"`
	OpenedAt             *time.Time  `json:"opened_at,omitempty"`
	ClickedAt            *time.Time  `json:"clicked_at,omitempty"`
	BouncedAt            *time.Time  `json:"bounced_at,omitempty"`
	ComplainedAt         *time.Time  `json:"complained_at,omitempty"`
	CreatedAt            time.Time   `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt            *time.Time  `json:"updated_at,omitempty"`
}

func (NewsletterEmail) TableName() string { return "newsletter_emails" }

func (e *NewsletterEmail) BeforeCreate(tx *gorm.DB) error {
	if e.Status == "" {
		e.Status = EmailStatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.UTCNow()
	}
	return nil
}

func (e *NewsletterEmail) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	e.UpdatedAt = &now
	return nil
}

// StampStatusTime records at on the timestamp field belonging to status
func (e *NewsletterEmail) StampStatusTime(status EmailStatus, at time.Time) {
	t := at
	switch status {
	case EmailStatusSent:
		e.SentAt = &t
	case EmailStatusDelivered:
		e.DeliveredAt = &t
	case EmailStatusOpened:
		e.OpenedAt = &t
	case EmailStatusClicked:
		e.ClickedAt = &t
	case EmailStatusBounced:
		e.BouncedAt = &t
	case EmailStatusComplained:
		e.ComplainedAt = &t
	}
}

// NewsletterEmailFilter represents filter criteria for newsletter emails
type NewsletterEmailFilter struct {
	ID                   *uint
	NewsletterCampaignID *uint
	ClientID             *uint
	Status               *EmailStatus
	ProviderMessageID    *string
}

// EmailTrackingEvent is one provider webhook event applied to a newsletter email.
// Applied is false when the event did not outrank the stored status.
type EmailTrackingEvent struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	NewsletterEmailID uint           `gorm:"not null;index:idx_email_tracking_events_email_id" json:"newsletter_email_id"`
	EventType         string         `gorm:"size:64;not null" json:"event_type"`
	MappedStatus      EmailStatus    `gorm:"size:16;not null" json:"mapped_status"`
	Applied           bool           `gorm:"not null;default:false" json:"applied"`
	OccurredAt        time.Time      `gorm:"not null" json:"occurred_at"`
	Payload           datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt         time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

func (EmailTrackingEvent) TableName() string { return "email_tracking_events" }
