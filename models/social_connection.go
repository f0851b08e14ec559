package models

import (
	"time"
)

// SocialPlatform is a publishing destination
type SocialPlatform string

const (
	SocialPlatformInstagram SocialPlatform = "instagram"
	SocialPlatformFacebook  SocialPlatform = "facebook"
)

// PlatformFor maps a social content type to its platform
func PlatformFor(t ContentType) (SocialPlatform, bool) {
	switch t {
	case ContentTypeInstagramPost, ContentTypeInstagramStory:
		return SocialPlatformInstagram, true
	case ContentTypeFacebookPost:
		return SocialPlatformFacebook, true
	default:
		return "", false
	}
}

// SocialConnection is an operator's OAuth credential for one platform. Read-only here.
type SocialConnection struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	OperatorID  uint           `gorm:"not null;uniqueIndex:uk_social_connections_operator_platform,priority:1" json:"operator_id"`
	Platform    SocialPlatform `gorm:"size:16;not null;uniqueIndex:uk_social_connections_operator_platform,priority:2" json:"platform"`
	AccountID   string         `gorm:"size:64;not null" json:"account_id"`
	AccountName *string        `gorm:"size:255" json:"account_name,omitempty"`
	AccessToken string         `gorm:"type:text;not null" json:"-"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	CreatedAt   time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (SocialConnection) TableName() string { return "social_connections" }

// IsExpired reports whether the access token is past its expiry at now
func (s *SocialConnection) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}
