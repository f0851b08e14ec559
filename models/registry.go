package models

// AllModels lists every persisted entity in dependency order
func AllModels() []any {
	return []any{
		&Client{},
		&DeviceToken{},
		&Campaign{},
		&CampaignContent{},
		&Announcement{},
		&NotificationQueueItem{},
		&NotificationLog{},
		&NewsletterCampaign{},
		&NewsletterEmail{},
		&EmailTrackingEvent{},
		&SocialConnection{},
	}
}
