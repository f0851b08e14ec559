// Package businessflow contains campaign execution, notification dispatch and webhook reconciliation
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrCampaignBusy          = errors.New("campaign is already executing")
	ErrCampaignNotScheduled  = errors.New("campaign is no longer scheduled")
	ErrUnknownContentType    = errors.New("unknown content type")
	ErrTestClientNotFound    = errors.New("test client not found")
	ErrNoNewsletterDelivered = errors.New("newsletter was not delivered to any recipient")

	// Queue-related errors
	ErrProcessorBusy = errors.New("another queue processor invocation holds the lease")

	// Webhook-related errors
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// Unsubscribe-related errors
	ErrInvalidUnsubscribeToken = errors.New("invalid unsubscribe token")
	ErrClientNotFound          = errors.New("client not found")

	ErrLockNotAvailable = errors.New("lock not available")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignBusy(err error) bool {
	return errors.Is(err, ErrCampaignBusy)
}

func IsCampaignNotScheduled(err error) bool {
	return errors.Is(err, ErrCampaignNotScheduled)
}

func IsProcessorBusy(err error) bool {
	return errors.Is(err, ErrProcessorBusy)
}

func IsInvalidWebhookPayload(err error) bool {
	return errors.Is(err, ErrInvalidWebhookPayload)
}

func IsInvalidUnsubscribeToken(err error) bool {
	return errors.Is(err, ErrInvalidUnsubscribeToken)
}

func IsClientNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}
