package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueuePayload is the category-keyed schema of a queue item's data column
type QueuePayload interface {
	Category() NotificationCategory
	// URL is the deep link opened when the notification is tapped, empty when none
	URL() string
}

// ReminderPayload accompanies an upcoming lesson reminder
type ReminderPayload struct {
	LessonID  uint      `json:"lesson_id"`
	BookingID *uint     `json:"booking_id,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	Link      string    `json:"url,omitempty"`
}

func (ReminderPayload) Category() NotificationCategory { return NotificationCategoryReminder }
func (p ReminderPayload) URL() string                  { return p.Link }

// ExpiryPayload accompanies a subscription expiry warning
type ExpiryPayload struct {
	SubscriptionID uint      `json:"subscription_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	RemainingUses  *int      `json:"remaining_uses,omitempty"`
	Link           string    `json:"url,omitempty"`
}

func (ExpiryPayload) Category() NotificationCategory { return NotificationCategoryExpiry }
func (p ExpiryPayload) URL() string                  { return p.Link }

// AnnouncementPayload references the announcement a campaign push fans out
type AnnouncementPayload struct {
	AnnouncementID uint   `json:"announcement_id"`
	CampaignID     *uint  `json:"campaign_id,omitempty"`
	IsTest         bool   `json:"is_test,omitempty"`
	Link           string `json:"url,omitempty"`
}

func (AnnouncementPayload) Category() NotificationCategory {
	return NotificationCategoryAnnouncement
}
func (p AnnouncementPayload) URL() string { return p.Link }

// GeneralPayload is the open map used by producers of uncategorized notifications
type GeneralPayload map[string]any

func (GeneralPayload) Category() NotificationCategory { return NotificationCategoryGeneral }

func (p GeneralPayload) URL() string {
	if v, ok := p["url"].(string); ok {
		return v
	}
	return ""
}

// DecodeQueuePayload parses raw data according to category. Empty data yields the zero payload.
func DecodeQueuePayload(category NotificationCategory, raw []byte) (QueuePayload, error) {
	empty := len(raw) == 0 || string(raw) == "null"

	switch category {
	case NotificationCategoryReminder:
		var p ReminderPayload
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode reminder payload: %w", err)
			}
		}
		return p, nil
	case NotificationCategoryExpiry:
		var p ExpiryPayload
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode expiry payload: %w", err)
			}
		}
		return p, nil
	case NotificationCategoryAnnouncement:
		var p AnnouncementPayload
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode announcement payload: %w", err)
			}
		}
		return p, nil
	case NotificationCategoryGeneral:
		p := GeneralPayload{}
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode general payload: %w", err)
			}
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notification category %q", category)
	}
}

// EncodeQueuePayload serializes a payload for the data column
func EncodeQueuePayload(p QueuePayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil queue payload")
	}
	return json.Marshal(p)
}
