package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DevicePlatform is the kind of device that registered a token
type DevicePlatform string

const (
	DevicePlatformWeb     DevicePlatform = "web"
	DevicePlatformIOS     DevicePlatform = "ios"
	DevicePlatformAndroid DevicePlatform = "android"
)

// PushSubscription is a browser push subscription as produced by PushManager.subscribe
type PushSubscription struct {
	Endpoint string               `json:"endpoint"`
	Keys     PushSubscriptionKeys `json:"keys"`
}

// PushSubscriptionKeys carries the client key material of a push subscription
type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// DeviceToken is a delivery target of the push channel. The token column holds either a
// structured push subscription object or a legacy opaque native-app token string.
type DeviceToken struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ClientID      uint           `gorm:"not null;index:idx_device_tokens_client_active,priority:1" json:"client_id"`
	Platform      DevicePlatform `gorm:"size:16;not null;default:'web'" json:"platform"`
	Token         datatypes.JSON `gorm:"type:jsonb;not null" json:"token"`
	IsActive      bool           `gorm:"not null;default:true;index:idx_device_tokens_client_active,priority:2" json:"is_active"`
	LastUsedAt    *time.Time     `json:"last_used_at,omitempty"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (DeviceToken) TableName() string { return "device_tokens" }

// BeforeCreate is called before creating a new record
func (d *DeviceToken) BeforeCreate(tx *gorm.DB) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.UTCNow()
	}
	return nil
}

// Subscription introspects the stored payload and returns the structured push subscription.
// The second return is false for legacy tokens and for objects missing endpoint or key material.
func (d *DeviceToken) Subscription() (*PushSubscription, bool) {
	raw := []byte(d.Token)
	if len(raw) == 0 {
		return nil, false
	}

	// Some producers store the subscription JSON as a JSON string.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}

	var sub PushSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	if strings.TrimSpace(sub.Endpoint) == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, false
	}
	return &sub, true
}

// DeviceTokenFilter represents filter criteria for device tokens
type DeviceTokenFilter struct {
	ID        *uint
	ClientID  *uint
	ClientIDs []uint
	Platform  *DevicePlatform
	IsActive  *bool
}
