package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
)

// PushMessage is the JSON payload rendered by the service worker
type PushMessage struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// PushResult is the outcome of one push attempt to one subscription
type PushResult struct {
	Success    bool
	StatusCode int
	Err        error
}

// Expired reports whether the provider said the subscription is gone
func (r PushResult) Expired() bool {
	return errors.Is(r.Err, ErrSubscriptionExpired)
}

// PushService delivers Web Push messages to browser subscriptions
type PushService interface {
	Send(ctx context.Context, sub models.PushSubscription, msg PushMessage) PushResult
	Enabled() bool
}

// VAPIDConfig is the sender identity used to sign push requests
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        time.Duration
	Icon       string
	Badge      string
}

// WebPushService implements PushService over the Web Push protocol
type WebPushService struct {
	vapid      VAPIDConfig
	httpClient webpush.HTTPClient
}

// NewWebPushService creates a push adapter. httpClient may be nil.
func NewWebPushService(vapid VAPIDConfig, httpClient webpush.HTTPClient) *WebPushService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if vapid.TTL <= 0 {
		vapid.TTL = 24 * time.Hour
	}
	return &WebPushService{vapid: vapid, httpClient: httpClient}
}

func (s *WebPushService) Enabled() bool {
	return s.vapid.PublicKey != "" && s.vapid.PrivateKey != "" && s.vapid.Subject != ""
}

// Send signs and posts msg to the subscription endpoint. 404 and 410 map to ErrSubscriptionExpired.
func (s *WebPushService) Send(ctx context.Context, sub models.PushSubscription, msg PushMessage) PushResult {
	if !s.Enabled() {
		return PushResult{Err: NewConfigError("PUSH_NOT_CONFIGURED", "VAPID key pair or subject missing")}
	}

	if msg.Icon == "" {
		msg.Icon = s.vapid.Icon
	}
	if msg.Badge == "" {
		msg.Badge = s.vapid.Badge
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return PushResult{Err: NewValidationError("INVALID_PUSH_PAYLOAD", err.Error())}
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.vapid.Subject,
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             int(s.vapid.TTL.Seconds()),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return PushResult{Err: NewTransientError("PUSH_REQUEST_FAILED", err.Error(), 0, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return PushResult{Success: true, StatusCode: resp.StatusCode}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	message := utils.TruncateString(fmt.Sprintf("push service responded %d: %s", resp.StatusCode, string(body)), 500)

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return PushResult{
			StatusCode: resp.StatusCode,
			Err:        NewPermanentError(ErrSubscriptionExpired.Error(), message, resp.StatusCode, ErrSubscriptionExpired),
		}
	}

	kind := classifyHTTPStatus(resp.StatusCode)
	return PushResult{
		StatusCode: resp.StatusCode,
		Err:        &DispatchError{Kind: kind, Code: "PUSH_REJECTED", Message: message, StatusCode: resp.StatusCode},
	}
}
