package testing

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"gorm.io/datatypes"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestClient creates an active client with a unique email address
func (tf *TestFixtures) CreateTestClient(optedOut bool) (*models.Client, error) {
	email := fmt.Sprintf("client.%09d@example.com", rand.Intn(900000000)+100000000)
	client := &models.Client{
		FirstName:        "Jane",
		LastName:         "Doe",
		Email:            &email,
		IsActive:         utils.ToPtr(true),
		NewsletterOptOut: optedOut,
	}
	if err := tf.DB.DB.Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create test client: %w", err)
	}
	return client, nil
}

// CreateTestDeviceToken registers a web push subscription for clientID
func (tf *TestFixtures) CreateTestDeviceToken(clientID uint, endpoint string) (*models.DeviceToken, error) {
	raw, err := json.Marshal(models.PushSubscription{
		Endpoint: endpoint,
		Keys:     models.PushSubscriptionKeys{P256dh: "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM", Auth: "tBHItJI5svbpez7KI4CCXg"},
	})
	if err != nil {
		return nil, err
	}
	token := &models.DeviceToken{
		ClientID: clientID,
		Platform: models.DevicePlatformWeb,
		Token:    datatypes.JSON(raw),
		IsActive: true,
	}
	if err := tf.DB.DB.Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to create test device token: %w", err)
	}
	return token, nil
}

// CreateTestCampaign creates a scheduled campaign with one generated content row per type
func (tf *TestFixtures) CreateTestCampaign(operatorID uint, scheduledFor time.Time, types ...models.ContentType) (*models.Campaign, error) {
	campaign := &models.Campaign{
		OperatorID:   operatorID,
		Name:         "Spring promo",
		Type:         models.CampaignTypePromo,
		Target:       models.CampaignTarget{Segment: "all"},
		Status:       models.CampaignStatusScheduled,
		ScheduledFor: &scheduledFor,
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}

	for _, t := range types {
		content := &models.CampaignContent{
			CampaignID:  campaign.ID,
			ContentType: t,
			Title:       utils.ToPtr("Spring is here"),
			Body:        "Join our spring classes.",
			Status:      models.ContentStatusGenerated,
		}
		if err := tf.DB.DB.Create(content).Error; err != nil {
			return nil, fmt.Errorf("failed to create %s content: %w", t, err)
		}
		campaign.Contents = append(campaign.Contents, *content)
	}
	return campaign, nil
}

// CreateTestQueueItem enqueues a general push or email notification for clientID
func (tf *TestFixtures) CreateTestQueueItem(clientID uint, channel models.NotificationChannel, scheduledFor time.Time, attempts int) (*models.NotificationQueueItem, error) {
	item := &models.NotificationQueueItem{
		ClientID:     clientID,
		Category:     models.NotificationCategoryGeneral,
		Channel:      channel,
		Title:        "Reminder",
		Body:         "See you tomorrow",
		ScheduledFor: scheduledFor,
		Attempts:     attempts,
	}
	if err := tf.DB.DB.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create test queue item: %w", err)
	}
	return item, nil
}
