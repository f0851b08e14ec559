package businessflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNewsletterFlow(email services.EmailService, newsletters *fakeNewsletterRepo, emails *fakeEmailRepo, sleeps *int) NewsletterFlow {
	f := NewNewsletterFlow(newsletters, emails, email,
		services.NewUnsubscribeSigner("secret", "https://api.lotus.example"),
		DispatchOptions{StudioName: "Lotus", AppURL: "https://lotus.example", EmailDelay: time.Second},
		testLogger())
	impl := f.(*NewsletterFlowImpl)
	impl.sleep = func(context.Context, time.Duration) error {
		*sleeps++
		return nil
	}
	return impl
}

func TestNewsletterFlow_Send(t *testing.T) {
	email := services.NewMockEmailService()
	email.Failures["broken@example.com"] = services.NewTransientError("EMAIL_REQUEST_FAILED", "timeout", 0, nil)
	newsletters, emails := newFakeNewsletterRepo(), &fakeEmailRepo{}
	var sleeps int

	newsletter := &models.NewsletterCampaign{Subject: "{{first_name}}, spring is here", Body: "Unsubscribe: {{unsubscribe_url}}"}
	require.NoError(t, newsletters.Save(context.Background(), newsletter))

	recipients := []*models.Client{
		testClient(1, "a@example.com", true, false),
		testClient(2, "optedout@example.com", true, true),
		testClient(3, "", true, false),
		testClient(4, "broken@example.com", true, false),
		testClient(5, "c@example.com", true, false),
	}

	res, err := newTestNewsletterFlow(email, newsletters, emails, &sleeps).Send(context.Background(), newsletter, recipients)
	require.NoError(t, err)

	assert.Equal(t, &NewsletterSendResult{Recipients: 3, Sent: 2, Failed: 1}, res)
	assert.Equal(t, 2, sleeps)

	require.Len(t, emails.emails, 3)
	assert.Equal(t, models.EmailStatusSent, emails.emails[0].Status)
	assert.NotNil(t, emails.emails[0].ProviderMessageID)
	assert.NotNil(t, emails.emails[0].SentAt)
	assert.Equal(t, models.EmailStatusFailed, emails.emails[1].Status)
	assert.Contains(t, utils.Deref(emails.emails[1].ErrorMessage), "timeout")

	sent := email.GetSent()
	require.Len(t, sent, 3)
	assert.Equal(t, "Client, spring is here", sent[0].Subject)
	assert.True(t, strings.HasPrefix(sent[0].TextBody, "Unsubscribe: https://api.lotus.example/api/v1/newsletter/unsubscribe?c=1&t="))
	assert.Equal(t, "newsletter", sent[0].Tag)
	assert.Equal(t, "1", sent[0].Metadata[utils.NewsletterEmailTag])
	assert.Contains(t, sent[0].HTMLBody, "Unsubscribe")

	assert.Equal(t, models.NewsletterStatusSent, newsletter.Status)
	assert.Equal(t, 3, newsletter.RecipientCount)
	assert.Equal(t, 2, newsletter.SentCount)
	assert.Equal(t, 1, newsletter.FailedCount)
	assert.NotNil(t, newsletter.SentAt)
}

func TestNewsletterFlow_ChannelNotConfigured(t *testing.T) {
	email := services.NewMockEmailService()
	email.Disabled = true
	newsletters, emails := newFakeNewsletterRepo(), &fakeEmailRepo{}
	var sleeps int

	newsletter := &models.NewsletterCampaign{Subject: "s", Body: "b"}
	_, err := newTestNewsletterFlow(email, newsletters, emails, &sleeps).
		Send(context.Background(), newsletter, []*models.Client{testClient(1, "a@example.com", true, false)})

	assert.True(t, services.IsConfig(err))
	assert.Equal(t, models.NewsletterStatusFailed, newsletter.Status)
	assert.Empty(t, emails.emails)
}

func TestNewsletterFlow_NoRecipients(t *testing.T) {
	newsletters, emails := newFakeNewsletterRepo(), &fakeEmailRepo{}
	var sleeps int
	newsletter := &models.NewsletterCampaign{Subject: "s", Body: "b"}

	res, err := newTestNewsletterFlow(services.NewMockEmailService(), newsletters, emails, &sleeps).
		Send(context.Background(), newsletter, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Recipients)
	assert.Equal(t, models.NewsletterStatusSent, newsletter.Status)
}
