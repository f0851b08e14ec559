package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mrz1836/postmark"
)

// EmailMessage is a rendered transactional email
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Tag      string
	Metadata map[string]string
}

// EmailService sends transactional email and returns the provider message id
type EmailService interface {
	Send(ctx context.Context, msg EmailMessage) (string, error)
	Enabled() bool
}

// PostmarkSender is the subset of the Postmark client used for sending
type PostmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// EmailSenderConfig identifies the sender of outgoing email
type EmailSenderConfig struct {
	From          string
	ReplyTo       string
	MessageStream string
	TrackOpens    bool
}

// PostmarkEmailService implements EmailService with Postmark
type PostmarkEmailService struct {
	client PostmarkSender
	sender EmailSenderConfig
}

// NewPostmarkEmailService builds the adapter. A nil client disables the email channel.
func NewPostmarkEmailService(client PostmarkSender, sender EmailSenderConfig) *PostmarkEmailService {
	return &PostmarkEmailService{client: client, sender: sender}
}

// NewPostmarkClient creates the Postmark API client from a server token
func NewPostmarkClient(serverToken, accountToken string) *postmark.Client {
	return postmark.NewClient(serverToken, accountToken)
}

func (s *PostmarkEmailService) Enabled() bool {
	return s.client != nil && s.sender.From != ""
}

// Send performs one synchronous send. Failures are *DispatchError values whose Code carries
// the provider error name and StatusCode the provider error code.
func (s *PostmarkEmailService) Send(ctx context.Context, msg EmailMessage) (string, error) {
	if !s.Enabled() {
		return "", NewConfigError("EMAIL_NOT_CONFIGURED", "email provider token or sender address missing")
	}
	if strings.TrimSpace(msg.To) == "" {
		return "", NewValidationError("MISSING_RECIPIENT", "recipient email address is empty")
	}

	email := postmark.Email{
		From:          s.sender.From,
		To:            msg.To,
		ReplyTo:       s.sender.ReplyTo,
		Subject:       msg.Subject,
		Tag:           msg.Tag,
		HTMLBody:      msg.HTMLBody,
		TextBody:      msg.TextBody,
		Metadata:      msg.Metadata,
		MessageStream: s.sender.MessageStream,
		TrackOpens:    s.sender.TrackOpens,
		TrackLinks:    "HtmlOnly",
	}

	resp, err := s.client.SendEmail(ctx, email)
	if resp.ErrorCode != 0 {
		return "", postmarkError(resp)
	}
	if err != nil {
		return "", NewTransientError("EMAIL_REQUEST_FAILED", err.Error(), 0, err)
	}
	if resp.MessageID == "" {
		return "", NewTransientError("EMAIL_EMPTY_RESPONSE", "provider returned no message id", 0, nil)
	}
	return resp.MessageID, nil
}

// Postmark API error codes that will not succeed on retry
var postmarkPermanentCodes = map[int64]string{
	300: "invalid_email_request",
	406: "inactive_recipient",
	412: "account_pending_approval",
}

func postmarkError(resp postmark.EmailResponse) *DispatchError {
	const apiErrorStatus = 422
	switch {
	case resp.ErrorCode == 10:
		return &DispatchError{Kind: ErrorKindConfig, Code: "invalid_api_token", Message: resp.Message, StatusCode: apiErrorStatus, Err: ErrChannelDisabled}
	case postmarkPermanentCodes[resp.ErrorCode] != "":
		return NewPermanentError(postmarkPermanentCodes[resp.ErrorCode], resp.Message, apiErrorStatus, nil)
	default:
		return NewTransientError(fmt.Sprintf("postmark_error_%d", resp.ErrorCode), resp.Message, apiErrorStatus, nil)
	}
}

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Personalization variables understood by RenderTemplate
const (
	TemplateVarFirstName      = "first_name"
	TemplateVarLastName       = "last_name"
	TemplateVarFullName       = "full_name"
	TemplateVarEmail          = "email"
	TemplateVarStudioName     = "studio_name"
	TemplateVarAppURL         = "app_url"
	TemplateVarUnsubscribeURL = "unsubscribe_url"
)

var knownTemplateVars = map[string]struct{}{
	TemplateVarFirstName:      {},
	TemplateVarLastName:       {},
	TemplateVarFullName:       {},
	TemplateVarEmail:          {},
	TemplateVarStudioName:     {},
	TemplateVarAppURL:         {},
	TemplateVarUnsubscribeURL: {},
}

// RenderTemplate replaces {{key}} placeholders for known variables. Unknown placeholders
// and known ones absent from vars stay verbatim.
func RenderTemplate(tpl string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		key := templateVarPattern.FindStringSubmatch(match)[1]
		if _, ok := knownTemplateVars[key]; !ok {
			return match
		}
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}
