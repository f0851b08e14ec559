package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationChannel is the delivery mechanism of a queue item
type NotificationChannel string

const (
	NotificationChannelPush  NotificationChannel = "push"
	NotificationChannelEmail NotificationChannel = "email"
)

func (c NotificationChannel) Valid() bool {
	return c == NotificationChannelPush || c == NotificationChannelEmail
}

// NotificationCategory selects the payload schema of a queue item
type NotificationCategory string

const (
	NotificationCategoryReminder     NotificationCategory = "reminder"
	NotificationCategoryExpiry       NotificationCategory = "expiry"
	NotificationCategoryAnnouncement NotificationCategory = "announcement"
	NotificationCategoryGeneral      NotificationCategory = "general"
)

func (c NotificationCategory) Valid() bool {
	switch c {
	case NotificationCategoryReminder, NotificationCategoryExpiry,
		NotificationCategoryAnnouncement, NotificationCategoryGeneral:
		return true
	default:
		return false
	}
}

// QueueItemStatus represents the dispatch status of a queue item
type QueueItemStatus string

const (
	QueueItemStatusPending   QueueItemStatus = "pending"
	QueueItemStatusSent      QueueItemStatus = "sent"
	QueueItemStatusDelivered QueueItemStatus = "delivered"
	QueueItemStatusFailed    QueueItemStatus = "failed"
	QueueItemStatusSkipped   QueueItemStatus = "skipped"
)

func (s QueueItemStatus) String() string {
	return string(s)
}

func (s QueueItemStatus) Valid() bool {
	switch s {
	case QueueItemStatusPending, QueueItemStatusSent, QueueItemStatusDelivered,
		QueueItemStatusFailed, QueueItemStatusSkipped:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for QueueItemStatus
func (s *QueueItemStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = QueueItemStatus(v)
	case []byte:
		*s = QueueItemStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into QueueItemStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for QueueItemStatus
func (s QueueItemStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid QueueItemStatus: %s", s)
	}
	return string(s), nil
}

// NotificationQueueItem is one per-recipient notification awaiting channel dispatch
type NotificationQueueItem struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	ClientID          uint                 `gorm:"not null;index:idx_notification_queue_client_id" json:"client_id"`
	Category          NotificationCategory `gorm:"size:32;not null" json:"category"`
	Channel           NotificationChannel  `gorm:"size:16;not null" json:"channel"`
	Title             string               `gorm:"size:255;not null" json:"title"`
	Body              string               `gorm:"type:text;not null" json:"body"`
	Data              datatypes.JSON       `gorm:"type:jsonb" json:"data,omitempty"`
	ScheduledFor      time.Time            `gorm:"not null;index:idx_notification_queue_due,priority:3" json:"scheduled_for"`
	Status            QueueItemStatus      `gorm:"size:16;not null;default:'pending';index:idx_notification_queue_due,priority:1" json:"status"`
	Attempts          int                  `gorm:"not null;default:0;index:idx_notification_queue_due,priority:2" json:"attempts"`
	LastError         *string              `gorm:"type:text" json:"last_error,omitempty"`
	ProviderMessageID *string              `gorm:"size:255" json:"provider_message_id,omitempty"`
	SentAt            *time.Time           `json:"sent_at,omitempty"`
	CreatedAt         time.Time            `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt         *time.Time           `json:"updated_at,omitempty"`
}

func (NotificationQueueItem) TableName() string { return "notification_queue" }

// BeforeCreate is called before creating a new record
func (n *NotificationQueueItem) BeforeCreate(tx *gorm.DB) error {
	if n.Status == "" {
		n.Status = QueueItemStatusPending
	}
	if n.ScheduledFor.IsZero() {
		n.ScheduledFor = utils.UTCNow()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (n *NotificationQueueItem) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	n.UpdatedAt = &now
	return nil
}

// IsDispatchable reports whether the item may be attempted at now
func (n *NotificationQueueItem) IsDispatchable(now time.Time, maxAttempts int) bool {
	return n.Status == QueueItemStatusPending && n.Attempts < maxAttempts && !n.ScheduledFor.After(now)
}

// Payload decodes the data column into the category-specific payload
func (n *NotificationQueueItem) Payload() (QueuePayload, error) {
	return DecodeQueuePayload(n.Category, []byte(n.Data))
}

// SetPayload encodes p into the data column and aligns the category with it
func (n *NotificationQueueItem) SetPayload(p QueuePayload) error {
	raw, err := EncodeQueuePayload(p)
	if err != nil {
		return err
	}
	n.Category = p.Category()
	n.Data = datatypes.JSON(raw)
	return nil
}

// NotificationQueueFilter represents filter criteria for queue items
type NotificationQueueFilter struct {
	ID              *uint
	ClientID        *uint
	Channel         *NotificationChannel
	Channels        []NotificationChannel
	Category        *NotificationCategory
	Status          *QueueItemStatus
	ScheduledBefore *time.Time
	MaxAttempts     *int
}
