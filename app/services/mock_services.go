package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/google/uuid"
)

// MockPushService records pushes instead of delivering them. Endpoints listed in
// Responses get the configured status code; everything else succeeds.
type MockPushService struct {
	mu        sync.Mutex
	sent      []MockPush
	Responses map[string]int
	Disabled  bool
}

type MockPush struct {
	Endpoint string
	Message  PushMessage
}

func NewMockPushService() *MockPushService {
	return &MockPushService{Responses: map[string]int{}}
}

func (m *MockPushService) Enabled() bool { return !m.Disabled }

func (m *MockPushService) Send(_ context.Context, sub models.PushSubscription, msg PushMessage) PushResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, MockPush{Endpoint: sub.Endpoint, Message: msg})

	status, ok := m.Responses[sub.Endpoint]
	if !ok || (status >= 200 && status < 300) {
		return PushResult{Success: true, StatusCode: 201}
	}
	if status == 404 || status == 410 {
		return PushResult{StatusCode: status, Err: NewPermanentError(ErrSubscriptionExpired.Error(), "gone", status, ErrSubscriptionExpired)}
	}
	return PushResult{StatusCode: status, Err: &DispatchError{Kind: classifyHTTPStatus(status), Code: "PUSH_REJECTED", Message: "mock rejection", StatusCode: status}}
}

func (m *MockPushService) GetSent() []MockPush {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockPush(nil), m.sent...)
}

func (m *MockPushService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// MockEmailService records emails. Addresses in Failures fail with the mapped error.
type MockEmailService struct {
	mu       sync.Mutex
	sent     []EmailMessage
	Failures map[string]error
	Disabled bool
}

func NewMockEmailService() *MockEmailService {
	return &MockEmailService{Failures: map[string]error{}}
}

func (m *MockEmailService) Enabled() bool { return !m.Disabled }

func (m *MockEmailService) Send(_ context.Context, msg EmailMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Disabled {
		return "", NewConfigError("EMAIL_NOT_CONFIGURED", "mock email disabled")
	}
	m.sent = append(m.sent, msg)
	if err, ok := m.Failures[msg.To]; ok {
		return "", err
	}
	return uuid.NewString(), nil
}

func (m *MockEmailService) GetSent() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.sent...)
}

func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// MockSocialPublisher validates like the real publisher and records accepted publishes
type MockSocialPublisher struct {
	mu         sync.Mutex
	published  []models.ContentType
	containers []string
	Err        error
	Now        func() time.Time
}

func NewMockSocialPublisher() *MockSocialPublisher {
	return &MockSocialPublisher{Now: func() time.Time { return time.Now().UTC() }}
}

func (m *MockSocialPublisher) Publish(_ context.Context, content *models.CampaignContent, conn *models.SocialConnection, scheduledAt *time.Time) (PublishResult, error) {
	if err := ValidateSocialContent(content); err != nil {
		return PublishResult{}, err
	}
	if scheduledAt != nil {
		if err := ValidateScheduleWindow(*scheduledAt, m.Now()); err != nil {
			return PublishResult{}, err
		}
	}
	if conn == nil {
		return PublishResult{}, NewConfigError("NO_SOCIAL_CONNECTION", "no connected account for this platform")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return PublishResult{}, m.Err
	}
	m.published = append(m.published, content.ContentType)

	id := fmt.Sprintf("mock_%d_%d", content.ID, len(m.published))
	if scheduledAt == nil {
		return PublishResult{PostID: id}, nil
	}
	at := *scheduledAt
	if content.ContentType == models.ContentTypeFacebookPost {
		return PublishResult{PostID: id, ScheduledAt: &at}, nil
	}
	return PublishResult{ContainerID: id, Deferred: true, ScheduledAt: &at}, nil
}

func (m *MockSocialPublisher) PublishContainer(_ context.Context, _ *models.SocialConnection, containerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.containers = append(m.containers, containerID)
	return "post_" + containerID, nil
}

func (m *MockSocialPublisher) Published() []models.ContentType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ContentType(nil), m.published...)
}

func (m *MockSocialPublisher) PublishedContainers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.containers...)
}
