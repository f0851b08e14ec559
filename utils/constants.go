package utils

import (
	"time"
)

// Token constants
const (
	// AccessTokenTTL is the time-to-live for operator access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour
)

// Dispatch constants
const (
	// QueueBatchSize is the maximum number of queue items pulled per processor invocation
	QueueBatchSize = 50

	// MaxDispatchAttempts is the attempt cap after which a queue item is terminal
	MaxDispatchAttempts = 3

	// EmailSendDelay is the pause between two consecutive provider email sends
	EmailSendDelay = 100 * time.Millisecond

	// CampaignExecutionLockTTL bounds how long one campaign execution holds its lock
	CampaignExecutionLockTTL = 30 * time.Minute

	// QueueProcessorLeaseTTL bounds how long one processor invocation holds the queue lease
	QueueProcessorLeaseTTL = 5 * time.Minute

	// ChannelConfigRetryDelay postpones queue rows whose provider rejected the channel credentials
	ChannelConfigRetryDelay = 15 * time.Minute

	// NewsletterEmailTag is the metadata key correlating provider webhooks to newsletter emails
	NewsletterEmailTag = "newsletter_email_id"
)

// Social publish window for provider-side scheduling
const (
	SocialScheduleMinLead = 10 * time.Minute
	SocialScheduleMaxLead = 75 * 24 * time.Hour
)
