package dto

import "time"

// ExecuteCampaignRequest triggers one manual campaign execution
type ExecuteCampaignRequest struct {
	CampaignID uint `json:"-" validate:"required,gt=0"`
}

// ContentOutcome describes the final state of one content row after execution
type ContentOutcome struct {
	ContentID   uint    `json:"content_id"`
	ContentType string  `json:"content_type"`
	Status      string  `json:"status"`
	Reason      *string `json:"reason,omitempty"`
	PostID      *string `json:"post_id,omitempty"`
}

// ExecuteCampaignResponse is the orchestrator contract result
type ExecuteCampaignResponse struct {
	CampaignID uint             `json:"campaign_id"`
	Executed   bool             `json:"executed"`
	Status     string           `json:"status"`
	Errors     []string         `json:"errors"`
	Contents   []ContentOutcome `json:"contents,omitempty"`
	ExecutedAt *time.Time       `json:"executed_at,omitempty"`
}

// ExecuteDueCampaignsResponse aggregates one CRON-driven due-campaign pass
type ExecuteDueCampaignsResponse struct {
	Found     int                       `json:"found"`
	Executed  int                       `json:"executed"`
	Failed    int                       `json:"failed"`
	Skipped   int                       `json:"skipped"`
	Campaigns []ExecuteCampaignResponse `json:"campaigns"`
}

// PublishDueContainersResponse summarizes a deferred social publish pass
type PublishDueContainersResponse struct {
	Found     int `json:"found"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}
