package businessflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
)

// EmailWebhookEvent is the single internal shape every provider webhook is normalized into
type EmailWebhookEvent struct {
	Type              string
	Status            models.EmailStatus
	OccurredAt        time.Time
	EmailID           *uint
	ProviderMessageID string
	ClickURL          string
	Raw               []byte
}

// Supported reports whether the event maps onto a tracked email status
func (e *EmailWebhookEvent) Supported() bool {
	return e.Status != ""
}

var typedEventStatus = map[string]models.EmailStatus{
	"email.sent":             models.EmailStatusSent,
	"email.delivered":        models.EmailStatusDelivered,
	"email.opened":           models.EmailStatusOpened,
	"email.clicked":          models.EmailStatusClicked,
	"email.bounced":          models.EmailStatusBounced,
	"email.complained":       models.EmailStatusComplained,
	"email.delivery_delayed": "",
}

var recordTypeEvent = map[string]string{
	"Delivery":      "email.delivered",
	"Open":          "email.opened",
	"Click":         "email.clicked",
	"Bounce":        "email.bounced",
	"SpamComplaint": "email.complained",
}

type typedWebhook struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		EmailID string          `json:"email_id"`
		Tags    json.RawMessage `json:"tags"`
		Click   *struct {
			Link string `json:"link"`
		} `json:"click"`
	} `json:"data"`
}

type recordWebhook struct {
	RecordType   string         `json:"RecordType"`
	MessageID    string         `json:"MessageID"`
	Metadata     map[string]any `json:"Metadata"`
	OriginalLink string         `json:"OriginalLink"`
	DeliveredAt  string         `json:"DeliveredAt"`
	ReceivedAt   string         `json:"ReceivedAt"`
	BouncedAt    string         `json:"BouncedAt"`
}

// ParseEmailWebhook normalizes a raw provider webhook. Both the typed event shape
// ({type, data:{tags}}) and the record shape ({RecordType, Metadata}) are accepted.
func ParseEmailWebhook(raw []byte, now time.Time) (*EmailWebhookEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidWebhookPayload)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	if _, ok := probe["RecordType"]; ok {
		return parseRecordWebhook(raw, now)
	}
	return parseTypedWebhook(raw, now)
}

func parseTypedWebhook(raw []byte, now time.Time) (*EmailWebhookEvent, error) {
	var w typedWebhook
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	ev := &EmailWebhookEvent{
		Type:              w.Type,
		Status:            typedEventStatus[w.Type],
		OccurredAt:        parseEventTime(w.CreatedAt, now),
		ProviderMessageID: w.Data.EmailID,
		Raw:               raw,
	}
	if w.Data.Click != nil {
		ev.ClickURL = w.Data.Click.Link
	}
	tags, err := decodeTags(w.Data.Tags)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}
	ev.EmailID = correlationID(tags)
	return ev, nil
}

func parseRecordWebhook(raw []byte, now time.Time) (*EmailWebhookEvent, error) {
	var w recordWebhook
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	eventType := recordTypeEvent[w.RecordType]
	if eventType == "" {
		eventType = "record." + strings.ToLower(w.RecordType)
	}

	at := w.ReceivedAt
	switch w.RecordType {
	case "Delivery":
		at = w.DeliveredAt
	case "Bounce", "SpamComplaint":
		at = w.BouncedAt
	}

	tags := make(map[string]string, len(w.Metadata))
	for k, v := range w.Metadata {
		tags[k] = scalarString(v)
	}

	return &EmailWebhookEvent{
		Type:              eventType,
		Status:            typedEventStatus[eventType],
		OccurredAt:        parseEventTime(at, now),
		EmailID:           correlationID(tags),
		ProviderMessageID: w.MessageID,
		ClickURL:          w.OriginalLink,
		Raw:               raw,
	}, nil
}

// decodeTags accepts [{name, value}] and {name: value} encodings
func decodeTags(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	tags := map[string]string{}
	if len(raw) == 0 || string(raw) == "null" {
		return tags, nil
	}

	switch raw[0] {
	case '[':
		var list []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, t := range list {
			tags[t.Name] = scalarString(t.Value)
		}
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		for k, v := range obj {
			tags[k] = scalarString(v)
		}
	default:
		return nil, fmt.Errorf("unsupported tags encoding")
	}
	return tags, nil
}

func correlationID(tags map[string]string) *uint {
	v, ok := tags[utils.NewsletterEmailTag]
	if !ok {
		return nil
	}
	id, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil || id == 0 {
		return nil
	}
	return utils.ToPtr(uint(id))
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func parseEventTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}
