package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	emails      *fakeEmailRepo
	events      *fakeEventRepo
	newsletters *fakeNewsletterRepo
}

func newWebhookFixture() *webhookFixture {
	fx := &webhookFixture{emails: &fakeEmailRepo{}, events: &fakeEventRepo{}, newsletters: newFakeNewsletterRepo()}
	_ = fx.emails.Save(context.Background(), &models.NewsletterEmail{
		NewsletterCampaignID: 4,
		ClientID:             1,
		Email:                "a@example.com",
		Status:               models.EmailStatusSent,
	})
	return fx
}

func (fx *webhookFixture) flow() EmailWebhookFlow {
	return NewEmailWebhookFlow(fx.emails, fx.events, fx.newsletters, fakeTx{}, testLogger())
}

func TestEmailWebhook_OutOfOrderEventsKeepHighestStatus(t *testing.T) {
	fx := newWebhookFixture()
	flow := fx.flow()
	ctx := context.Background()

	clicked := `{"type":"email.clicked","created_at":"2026-03-01T10:05:00Z","data":{"email_id":"re_1",
		"tags":[{"name":"newsletter_email_id","value":"1"}],"click":{"link":"https://lotus.example/book"}}}`
	res, err := flow.HandleEvent(ctx, []byte(clicked))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.EmailID)
	assert.Equal(t, uint(1), *res.EmailID)

	delivered := `{"type":"email.delivered","created_at":"2026-03-01T10:00:00Z","data":{"email_id":"re_1",
		"tags":{"newsletter_email_id":1}}}`
	res, err = flow.HandleEvent(ctx, []byte(delivered))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.False(t, res.Ignored)

	email := fx.emails.emails[0]
	assert.Equal(t, models.EmailStatusClicked, email.Status)
	assert.Equal(t, "https://lotus.example/book", utils.Deref(email.LastClickURL))
	require.NotNil(t, email.ClickedAt)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), *email.ClickedAt)
	assert.Nil(t, email.DeliveredAt)

	require.Len(t, fx.events.events, 2)
	assert.True(t, fx.events.events[0].Applied)
	assert.False(t, fx.events.events[1].Applied)
	assert.Equal(t, models.EmailStatusDelivered, fx.events.events[1].MappedStatus)

	assert.Equal(t, models.NewsletterCounters{Delivered: 1, Opened: 1, Clicked: 1}, fx.newsletters.counters[4])
}

func TestEmailWebhook_RecordShapeBounceOutranksEngagement(t *testing.T) {
	fx := newWebhookFixture()
	fx.emails.emails[0].Status = models.EmailStatusOpened

	bounce := `{"RecordType":"Bounce","MessageID":"pm-1","BouncedAt":"2026-03-01T11:00:00Z",
		"Metadata":{"newsletter_email_id":"1","newsletter_id":"4"}}`
	res, err := fx.flow().HandleEvent(context.Background(), []byte(bounce))
	require.NoError(t, err)

	assert.True(t, res.Applied)
	assert.Equal(t, "email.bounced", res.EventType)
	assert.Equal(t, models.EmailStatusBounced, fx.emails.emails[0].Status)
	assert.NotNil(t, fx.emails.emails[0].BouncedAt)
	assert.Equal(t, models.NewsletterCounters{Bounced: 1}, fx.newsletters.counters[4])
}

func TestEmailWebhook_IgnoredEvents(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"unsupported type", `{"type":"email.delivery_delayed","data":{"tags":{"newsletter_email_id":"1"}}}`, "UNSUPPORTED_EVENT"},
		{"unknown type", `{"type":"contact.created","data":{}}`, "UNSUPPORTED_EVENT"},
		{"untagged", `{"type":"email.opened","data":{"email_id":"re_2"}}`, "NO_CORRELATION_ID"},
		{"non numeric tag", `{"type":"email.opened","data":{"tags":{"newsletter_email_id":"abc"}}}`, "NO_CORRELATION_ID"},
		{"unknown email", `{"type":"email.opened","data":{"tags":{"newsletter_email_id":"99"}}}`, "EMAIL_NOT_FOUND"},
		{"record without metadata", `{"RecordType":"Open","MessageID":"pm-2"}`, "NO_CORRELATION_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newWebhookFixture()
			res, err := fx.flow().HandleEvent(context.Background(), []byte(tt.body))
			require.NoError(t, err)
			assert.True(t, res.Ignored)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, models.EmailStatusSent, fx.emails.emails[0].Status)
			assert.Empty(t, fx.events.events)
		})
	}
}

func TestEmailWebhook_MalformedPayload(t *testing.T) {
	for _, body := range []string{"", "not json", `[{"type":"email.opened"}]`, `{"type":`, `{"type":"email.opened","data":{"tags":"x"}}`} {
		_, err := newWebhookFixture().flow().HandleEvent(context.Background(), []byte(body))
		assert.True(t, IsInvalidWebhookPayload(err), "body %q", body)
	}
}

func TestParseEmailWebhook_TimeFallback(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ev, err := ParseEmailWebhook([]byte(`{"type":"email.opened","created_at":"yesterday","data":{}}`), now)
	require.NoError(t, err)
	assert.Equal(t, now, ev.OccurredAt)
	assert.Equal(t, models.EmailStatusOpened, ev.Status)

	ev, err = ParseEmailWebhook([]byte(`{"RecordType":"Click","OriginalLink":"https://x.test","ReceivedAt":"2026-03-01T09:00:00.123Z","Metadata":{"newsletter_email_id":7}}`), now)
	require.NoError(t, err)
	assert.Equal(t, "email.clicked", ev.Type)
	assert.Equal(t, "https://x.test", ev.ClickURL)
	assert.Equal(t, uint(7), *ev.EmailID)
	assert.Equal(t, 2026, ev.OccurredAt.Year())
}
