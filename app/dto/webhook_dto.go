package dto

// EmailWebhookResult is what the reconciler reports for one webhook delivery
type EmailWebhookResult struct {
	EventType string `json:"event_type,omitempty"`
	EmailID   *uint  `json:"email_id,omitempty"`
	Applied   bool   `json:"applied"`
	Ignored   bool   `json:"ignored,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// UnsubscribeRequest carries the signed opt-out link parameters
type UnsubscribeRequest struct {
	ClientID uint   `query:"c" validate:"required,gt=0"`
	Token    string `query:"t" validate:"required"`
}
