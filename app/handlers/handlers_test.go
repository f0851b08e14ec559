package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutionFlow struct {
	err    error
	called uint
}

func (f *fakeExecutionFlow) ExecuteCampaign(_ context.Context, id uint) (*dto.ExecuteCampaignResponse, error) {
	f.called = id
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ExecuteCampaignResponse{CampaignID: id, Executed: true, Status: "completed", Errors: []string{}}, nil
}

func (f *fakeExecutionFlow) ExecuteDueCampaigns(context.Context) (*dto.ExecuteDueCampaignsResponse, error) {
	return &dto.ExecuteDueCampaignsResponse{Found: 2, Executed: 2}, f.err
}

type fakeSocialFlow struct{}

func (fakeSocialFlow) PublishDueContainers(context.Context) (*dto.PublishDueContainersResponse, error) {
	return &dto.PublishDueContainersResponse{Found: 1, Published: 1}, nil
}

type fakeReportFlow struct{ err error }

func (f fakeReportFlow) ExportReport(_ context.Context, id uint) (string, []byte, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return "campaign_1_report.xlsx", []byte("PK"), nil
}

type fakeQueueFlow struct {
	res *dto.ProcessQueueResponse
	err error
}

func (f fakeQueueFlow) ProcessDue(context.Context) (*dto.ProcessQueueResponse, error) {
	return f.res, f.err
}

type fakeWebhookFlow struct {
	res *dto.EmailWebhookResult
	err error
}

func (f fakeWebhookFlow) HandleEvent(context.Context, []byte) (*dto.EmailWebhookResult, error) {
	return f.res, f.err
}

type fakeUnsubscribeFlow struct {
	err error
	req *dto.UnsubscribeRequest
}

func (f *fakeUnsubscribeFlow) Unsubscribe(_ context.Context, req *dto.UnsubscribeRequest) error {
	f.req = req
	return f.err
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, dto.APIResponse, *http.Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out dto.APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out, resp
}

func TestCampaignExecutionHandler_ExecuteCampaign(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		reason string
	}{
		{"ok", "/campaigns/7/execute", nil, http.StatusOK, ""},
		{"bad id", "/campaigns/abc/execute", nil, http.StatusBadRequest, "INVALID_CAMPAIGN_ID"},
		{"zero id", "/campaigns/0/execute", nil, http.StatusBadRequest, "INVALID_CAMPAIGN_ID"},
		{"not found", "/campaigns/7/execute", businessflow.NewBusinessError("CAMPAIGN_NOT_FOUND", "x", businessflow.ErrCampaignNotFound), http.StatusNotFound, "CAMPAIGN_NOT_FOUND"},
		{"busy", "/campaigns/7/execute", businessflow.NewBusinessError("CAMPAIGN_BUSY", "x", businessflow.ErrCampaignBusy), http.StatusConflict, "CAMPAIGN_BUSY"},
		{"internal", "/campaigns/7/execute", businessflow.NewBusinessError("CAMPAIGN_FETCH_FAILED", "x", errors.New("db down")), http.StatusInternalServerError, "CAMPAIGN_FETCH_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakeExecutionFlow{err: tt.err}
			h := NewCampaignExecutionHandler(flow, fakeSocialFlow{}, fakeReportFlow{}, nil)
			app := fiber.New()
			app.Post("/campaigns/:id/execute", h.ExecuteCampaign)

			status, body, _ := doRequest(t, app, http.MethodPost, tt.target, "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, body.Reason)
			if tt.status == http.StatusOK {
				assert.True(t, body.OK)
				assert.Equal(t, uint(7), flow.called)
				assert.Equal(t, "Campaign completed", body.Message)
			}
		})
	}
}

func TestCampaignExecutionHandler_CronEndpoints(t *testing.T) {
	h := NewCampaignExecutionHandler(&fakeExecutionFlow{}, fakeSocialFlow{}, fakeReportFlow{}, nil)
	app := fiber.New()
	app.Post("/cron/campaigns/execute-due", h.ExecuteDueCampaigns)
	app.Post("/cron/social/publish-due", h.PublishDueSocial)

	status, body, _ := doRequest(t, app, http.MethodPost, "/cron/campaigns/execute-due", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body.Data.(map[string]any)["executed"])

	status, body, _ = doRequest(t, app, http.MethodPost, "/cron/social/publish-due", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body.Data.(map[string]any)["published"])
}

func TestCampaignExecutionHandler_DownloadReport(t *testing.T) {
	h := NewCampaignExecutionHandler(&fakeExecutionFlow{}, fakeSocialFlow{}, fakeReportFlow{}, nil)
	app := fiber.New()
	app.Get("/campaigns/:id/report", h.DownloadReport)

	status, _, resp := doRequest(t, app, http.MethodGet, "/campaigns/1/report", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "campaign_1_report.xlsx")
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	missing := NewCampaignExecutionHandler(&fakeExecutionFlow{}, fakeSocialFlow{},
		fakeReportFlow{err: businessflow.NewBusinessError("CAMPAIGN_NOT_FOUND", "x", businessflow.ErrCampaignNotFound)}, nil)
	app = fiber.New()
	app.Get("/campaigns/:id/report", missing.DownloadReport)
	status, body, _ := doRequest(t, app, http.MethodGet, "/campaigns/1/report", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "CAMPAIGN_NOT_FOUND", body.Reason)
}

func TestNotificationHandler_ProcessQueue(t *testing.T) {
	tests := []struct {
		name   string
		flow   fakeQueueFlow
		status int
		reason string
	}{
		{"processed", fakeQueueFlow{res: &dto.ProcessQueueResponse{Processed: 3, Sent: 3}}, http.StatusOK, ""},
		{"busy", fakeQueueFlow{res: &dto.ProcessQueueResponse{Busy: true}}, http.StatusOK, "PROCESSOR_BUSY"},
		{"failed", fakeQueueFlow{err: businessflow.NewBusinessError("QUEUE_FETCH_FAILED", "x", errors.New("db"))}, http.StatusInternalServerError, "QUEUE_FETCH_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/process", NewNotificationHandler(tt.flow, nil).ProcessQueue)

			status, body, _ := doRequest(t, app, http.MethodPost, "/process", "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, body.Reason)
		})
	}
}

func TestWebhookHandler_EmailEvent(t *testing.T) {
	emailID := uint(3)
	tests := []struct {
		name   string
		flow   fakeWebhookFlow
		status int
		ok     bool
		reason string
	}{
		{"applied", fakeWebhookFlow{res: &dto.EmailWebhookResult{EventType: "email.opened", EmailID: &emailID, Applied: true}}, http.StatusOK, true, ""},
		{"ignored", fakeWebhookFlow{res: &dto.EmailWebhookResult{Ignored: true, Reason: "NO_CORRELATION_ID"}}, http.StatusOK, true, "NO_CORRELATION_ID"},
		{"malformed", fakeWebhookFlow{err: businessflow.ErrInvalidWebhookPayload}, http.StatusBadRequest, false, "INVALID_PAYLOAD"},
		{"processing fault is acknowledged", fakeWebhookFlow{err: errors.New("db down")}, http.StatusOK, true, "EVENT_NOT_APPLIED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/webhooks/email", NewWebhookHandler(tt.flow, nil).EmailEvent)

			status, body, _ := doRequest(t, app, http.MethodPost, "/webhooks/email", `{"type":"email.opened"}`)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.ok, body.OK)
			assert.Equal(t, tt.reason, body.Reason)
		})
	}
}

func TestUnsubscribeHandler(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		reason string
	}{
		{"ok", "/unsubscribe?c=4&t=tok", nil, http.StatusOK, ""},
		{"missing token", "/unsubscribe?c=4", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad token", "/unsubscribe?c=4&t=tok", businessflow.ErrInvalidUnsubscribeToken, http.StatusBadRequest, "INVALID_UNSUBSCRIBE_TOKEN"},
		{"unknown client", "/unsubscribe?c=4&t=tok", businessflow.ErrClientNotFound, http.StatusNotFound, "CLIENT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakeUnsubscribeFlow{err: tt.err}
			app := fiber.New()
			app.Get("/unsubscribe", NewUnsubscribeHandler(flow, nil).Unsubscribe)

			status, body, _ := doRequest(t, app, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, body.Reason)
			if tt.status == http.StatusOK {
				require.NotNil(t, flow.req)
				assert.Equal(t, uint(4), flow.req.ClientID)
				assert.Equal(t, "tok", flow.req.Token)
			}
		})
	}
}
