package models

import (
	"time"
)

// NotificationLog is the append-only audit trail of every dispatch attempt.
// Rows are never updated and outlive the queue items they describe.
type NotificationLog struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	QueueItemID       *uint                `gorm:"index:idx_notification_logs_queue_item_id" json:"queue_item_id,omitempty"`
	ClientID          uint                 `gorm:"not null;index:idx_notification_logs_client_id" json:"client_id"`
	Channel           NotificationChannel  `gorm:"size:16;not null" json:"channel"`
	Category          NotificationCategory `gorm:"size:32;not null" json:"category"`
	Status            QueueItemStatus      `gorm:"size:16;not null" json:"status"`
	Attempt           int                  `gorm:"not null" json:"attempt"`
	Title             string               `gorm:"size:255;not null" json:"title"`
	ProviderMessageID *string              `gorm:"size:255" json:"provider_message_id,omitempty"`
	Error             *string              `gorm:"type:text" json:"error,omitempty"`
	CreatedAt         time.Time            `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_notification_logs_created_at" json:"created_at"`
}

func (NotificationLog) TableName() string { return "notification_logs" }

// NotificationLogFilter represents filter criteria for notification logs
type NotificationLogFilter struct {
	QueueItemID   *uint
	ClientID      *uint
	Channel       *NotificationChannel
	Status        *QueueItemStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
