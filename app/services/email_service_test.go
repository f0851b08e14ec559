package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mrz1836/postmark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePostmark struct {
	resp postmark.EmailResponse
	err  error
	sent []postmark.Email
}

func (f *fakePostmark) SendEmail(_ context.Context, email postmark.Email) (postmark.EmailResponse, error) {
	f.sent = append(f.sent, email)
	return f.resp, f.err
}

func testSender() EmailSenderConfig {
	return EmailSenderConfig{From: "studio@example.com", ReplyTo: "hello@example.com", MessageStream: "broadcast", TrackOpens: true}
}

func TestPostmarkEmailService_Send(t *testing.T) {
	ctx := context.Background()
	msg := EmailMessage{
		To:       "jane@example.com",
		Subject:  "Spring classes",
		HTMLBody: "<p>hi</p>",
		TextBody: "hi",
		Tag:      "newsletter",
		Metadata: map[string]string{"newsletter_email_id": "9"},
	}

	t.Run("success returns provider id", func(t *testing.T) {
		client := &fakePostmark{resp: postmark.EmailResponse{MessageID: "pm-1"}}
		svc := NewPostmarkEmailService(client, testSender())

		id, err := svc.Send(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, "pm-1", id)

		require.Len(t, client.sent, 1)
		sent := client.sent[0]
		assert.Equal(t, "studio@example.com", sent.From)
		assert.Equal(t, "broadcast", sent.MessageStream)
		assert.Equal(t, "newsletter", sent.Tag)
		assert.Equal(t, "9", sent.Metadata["newsletter_email_id"])
	})

	t.Run("inactive recipient is permanent", func(t *testing.T) {
		client := &fakePostmark{resp: postmark.EmailResponse{ErrorCode: 406, Message: "inactive"}, err: errors.New("postmark 422")}
		svc := NewPostmarkEmailService(client, testSender())

		_, err := svc.Send(ctx, msg)
		require.Error(t, err)
		assert.True(t, IsPermanent(err))
		var de *DispatchError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "inactive_recipient", de.Code)
	})

	t.Run("bad token disables channel", func(t *testing.T) {
		client := &fakePostmark{resp: postmark.EmailResponse{ErrorCode: 10, Message: "bad token"}}
		svc := NewPostmarkEmailService(client, testSender())

		_, err := svc.Send(ctx, msg)
		assert.True(t, IsConfig(err))
		assert.ErrorIs(t, err, ErrChannelDisabled)
	})

	t.Run("other api errors are transient", func(t *testing.T) {
		client := &fakePostmark{resp: postmark.EmailResponse{ErrorCode: 500, Message: "busy"}}
		svc := NewPostmarkEmailService(client, testSender())

		_, err := svc.Send(ctx, msg)
		assert.True(t, IsTransient(err))
	})

	t.Run("network error is transient", func(t *testing.T) {
		client := &fakePostmark{err: errors.New("connection reset")}
		svc := NewPostmarkEmailService(client, testSender())

		_, err := svc.Send(ctx, msg)
		assert.True(t, IsTransient(err))
	})

	t.Run("no client means not configured", func(t *testing.T) {
		svc := NewPostmarkEmailService(nil, testSender())
		assert.False(t, svc.Enabled())

		_, err := svc.Send(ctx, msg)
		assert.True(t, IsConfig(err))
	})

	t.Run("empty recipient", func(t *testing.T) {
		client := &fakePostmark{resp: postmark.EmailResponse{MessageID: "x"}}
		svc := NewPostmarkEmailService(client, testSender())

		m := msg
		m.To = "  "
		_, err := svc.Send(ctx, m)
		assert.True(t, IsValidation(err))
		assert.Empty(t, client.sent)
	})
}

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{
		TemplateVarFirstName:  "Jane",
		TemplateVarStudioName: "Lotus",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"known vars", "Hi {{first_name}}, welcome to {{ studio_name }}", "Hi Jane, welcome to Lotus"},
		{"unknown placeholder stays", "Hi {{nickname}}", "Hi {{nickname}}"},
		{"known but absent stays", "Bye {{last_name}}", "Bye {{last_name}}"},
		{"no placeholders", "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderTemplate(tt.in, vars))
		})
	}
}

func TestRenderBrandedHTML(t *testing.T) {
	html, err := RenderBrandedHTML(BrandedEmail{
		StudioName:     "Lotus",
		Title:          "Spring",
		Body:           "First paragraph.\n\nSecond <b>paragraph</b>.",
		CTAURL:         "https://lotus.example/book",
		UnsubscribeURL: "https://api.lotus.example/api/v1/newsletter/unsubscribe?c=1&t=x",
	})
	require.NoError(t, err)

	assert.Contains(t, html, "First paragraph.")
	assert.Contains(t, html, "Second &lt;b&gt;paragraph&lt;/b&gt;.")
	assert.Contains(t, html, ">Open</a>")
	assert.Contains(t, html, "Unsubscribe")
	assert.Equal(t, 2, strings.Count(html, `<p style="margin:0 0 12px;`))
}

func TestUnsubscribeSigner(t *testing.T) {
	signer := NewUnsubscribeSigner("s3cret", "https://api.lotus.example/")

	token := signer.Token(12)
	assert.True(t, signer.Verify(12, token))
	assert.False(t, signer.Verify(13, token))
	assert.False(t, signer.Verify(12, token+"x"))
	assert.False(t, signer.Verify(12, ""))

	link := signer.URL(12)
	assert.True(t, strings.HasPrefix(link, "https://api.lotus.example/api/v1/newsletter/unsubscribe?"))
	assert.Contains(t, link, "c=12")
	assert.Contains(t, link, "t="+token)

	other := NewUnsubscribeSigner("different", "https://api.lotus.example")
	assert.False(t, other.Verify(12, token))

	unsigned := NewUnsubscribeSigner("", "https://api.lotus.example")
	assert.Empty(t, unsigned.URL(12))
	assert.False(t, unsigned.Verify(12, unsigned.Token(12)))
}
