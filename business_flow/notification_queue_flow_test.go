package businessflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type queueFixture struct {
	queue   *fakeQueueRepo
	logs    *fakeLogRepo
	clients *fakeClientRepo
	devices *fakeDeviceRepo
	push    *services.MockPushService
	email   *services.MockEmailService
	locker  Locker
	sleeps  int
}

func newQueueFixture(clients ...*models.Client) *queueFixture {
	return &queueFixture{
		queue:   &fakeQueueRepo{},
		logs:    &fakeLogRepo{},
		clients: newFakeClientRepo(clients...),
		devices: &fakeDeviceRepo{},
		push:    services.NewMockPushService(),
		email:   services.NewMockEmailService(),
	}
}

func (fx *queueFixture) flow() NotificationQueueFlow {
	f := NewNotificationQueueFlow(fx.queue, fx.logs, fx.clients, fx.devices, fx.push, fx.email, fx.locker,
		DispatchOptions{MaxAttempts: 3, AppURL: "https://lotus.example", StudioName: "Lotus"}, testLogger())
	impl := f.(*NotificationQueueFlowImpl)
	impl.sleep = func(context.Context, time.Duration) error {
		fx.sleeps++
		return nil
	}
	return impl
}

func (fx *queueFixture) enqueue(clientID uint, channel models.NotificationChannel, attempts int) *models.NotificationQueueItem {
	item := &models.NotificationQueueItem{
		ID:           uint(len(fx.queue.items) + 1),
		ClientID:     clientID,
		Category:     models.NotificationCategoryAnnouncement,
		Channel:      channel,
		Title:        "Hello {{first_name}}",
		Body:         "New classes at {{studio_name}}",
		Status:       models.QueueItemStatusPending,
		Attempts:     attempts,
		ScheduledFor: utils.UTCNow().Add(-time.Minute),
	}
	_ = item.SetPayload(models.AnnouncementPayload{AnnouncementID: 1, Link: "/news/1"})
	fx.queue.items = append(fx.queue.items, item)
	return item
}

func (fx *queueFixture) addSubscription(id, clientID uint, endpoint string) {
	fx.devices.tokens = append(fx.devices.tokens, &models.DeviceToken{
		ID:       id,
		ClientID: clientID,
		IsActive: true,
		Token:    datatypes.JSON(fmt.Sprintf(`{"endpoint":%q,"keys":{"p256dh":"key","auth":"secret"}}`, endpoint)),
	})
}

func TestProcessDue_PushDelivered(t *testing.T) {
	fx := newQueueFixture()
	fx.addSubscription(1, 7, "https://push.example/a")
	item := fx.enqueue(7, models.NotificationChannelPush, 0)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Push)
	assert.Equal(t, models.QueueItemStatusSent, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.NotNil(t, item.SentAt)
	assert.Equal(t, []uint{1}, fx.devices.touched)

	sent := fx.push.GetSent()
	require.Len(t, sent, 1)
	assert.Equal(t, "https://lotus.example/news/1", sent[0].Message.Data["url"])

	require.Len(t, fx.logs.entries, 1)
	assert.Equal(t, models.QueueItemStatusSent, fx.logs.entries[0].Status)
	assert.Equal(t, 1, fx.logs.entries[0].Attempt)
}

func TestProcessDue_GoneSubscriptionsAreDeactivated(t *testing.T) {
	fx := newQueueFixture()
	fx.addSubscription(1, 7, "https://push.example/gone")
	fx.addSubscription(2, 7, "https://push.example/live")
	fx.addSubscription(3, 8, "https://push.example/gone-too")
	fx.push.Responses["https://push.example/gone"] = 410
	fx.push.Responses["https://push.example/gone-too"] = 404

	first := fx.enqueue(7, models.NotificationChannelPush, 0)
	lonely := fx.enqueue(8, models.NotificationChannelPush, 0)
	again := fx.enqueue(8, models.NotificationChannelPush, 0)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.QueueItemStatusSent, first.Status)
	assert.Equal(t, models.QueueItemStatusFailed, lonely.Status)
	assert.Equal(t, 1, lonely.Attempts)

	// The dead target is not retried within the same batch.
	assert.Equal(t, models.QueueItemStatusSkipped, again.Status)
	assert.Equal(t, 0, again.Attempts)

	assert.ElementsMatch(t, []uint{1, 3}, fx.devices.deactivated)
	assert.False(t, fx.devices.tokens[0].IsActive)
	assert.True(t, fx.devices.tokens[1].IsActive)

	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, fx.push.GetSent(), 3)
}

func TestProcessDue_TransientFailuresRetryUntilCap(t *testing.T) {
	fx := newQueueFixture()
	fx.addSubscription(1, 7, "https://push.example/flaky")
	fx.push.Responses["https://push.example/flaky"] = 503

	fresh := fx.enqueue(7, models.NotificationChannelPush, 0)
	last := fx.enqueue(7, models.NotificationChannelPush, 2)
	exhausted := fx.enqueue(7, models.NotificationChannelPush, 3)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.QueueItemStatusPending, fresh.Status)
	assert.Equal(t, 1, fresh.Attempts)
	assert.NotNil(t, fresh.LastError)

	assert.Equal(t, models.QueueItemStatusFailed, last.Status)
	assert.Equal(t, 3, last.Attempts)

	// Items at the cap are never picked up again.
	assert.Equal(t, models.QueueItemStatusPending, exhausted.Status)
	assert.Equal(t, 3, exhausted.Attempts)

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Requeued)
	assert.Equal(t, 1, res.Failed)
}

func TestProcessDue_LegacyTokensAreIgnored(t *testing.T) {
	fx := newQueueFixture()
	fx.devices.tokens = append(fx.devices.tokens, &models.DeviceToken{
		ID: 1, ClientID: 7, IsActive: true, Token: datatypes.JSON(`"fcm-legacy-token"`),
	})
	item := fx.enqueue(7, models.NotificationChannelPush, 0)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.QueueItemStatusSkipped, item.Status)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, fx.push.GetSent())
}

func TestProcessDue_PushChannelDisabled(t *testing.T) {
	fx := newQueueFixture()
	fx.push.Disabled = true
	fx.addSubscription(1, 7, "https://push.example/a")
	item := fx.enqueue(7, models.NotificationChannelPush, 1)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)

	// Rows of a disabled channel are left alone: no attempt, no log entry.
	assert.Equal(t, models.QueueItemStatusPending, item.Status)
	assert.Equal(t, 1, item.Attempts)
	assert.Zero(t, res.Processed)
	assert.Zero(t, fx.queue.updates)
	assert.Empty(t, fx.logs.entries)
	assert.Empty(t, fx.push.GetSent())
}

func TestProcessDue_DisabledChannelDoesNotStarveTheOther(t *testing.T) {
	fx := newQueueFixture(testClient(1, "a@example.com", true, false))
	fx.push.Disabled = true
	for i := 0; i < 50; i++ {
		fx.enqueue(uint(100+i), models.NotificationChannelPush, 0)
	}
	email := fx.enqueue(1, models.NotificationChannelEmail, 0)
	email.ScheduledFor = utils.UTCNow().Add(-time.Second)

	flow := fx.flow()
	res, err := flow.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Email)
	assert.Equal(t, models.QueueItemStatusSent, email.Status)
	require.Len(t, fx.email.GetSent(), 1)

	for _, item := range fx.queue.items[:50] {
		assert.Equal(t, models.QueueItemStatusPending, item.Status)
		assert.Zero(t, item.Attempts)
	}

	res, err = flow.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestProcessDue_NoChannelConfigured(t *testing.T) {
	fx := newQueueFixture(testClient(1, "a@example.com", true, false))
	fx.push.Disabled = true
	fx.email.Disabled = true
	fx.enqueue(1, models.NotificationChannelEmail, 0)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Zero(t, fx.queue.updates)
}

func TestProcessDue_Email(t *testing.T) {
	fx := newQueueFixture(
		testClient(1, "a@example.com", true, false),
		testClient(2, "", true, false),
		testClient(3, "flaky@example.com", true, false),
		testClient(4, "bounce@example.com", true, false),
	)
	fx.email.Failures["flaky@example.com"] = services.NewTransientError("postmark_error_500", "busy", 422, nil)
	fx.email.Failures["bounce@example.com"] = services.NewPermanentError("inactive_recipient", "inactive", 422, nil)

	ok := fx.enqueue(1, models.NotificationChannelEmail, 0)
	noAddress := fx.enqueue(2, models.NotificationChannelEmail, 0)
	flaky := fx.enqueue(3, models.NotificationChannelEmail, 0)
	bounced := fx.enqueue(4, models.NotificationChannelEmail, 0)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.QueueItemStatusSent, ok.Status)
	require.NotNil(t, ok.ProviderMessageID)
	assert.Equal(t, models.QueueItemStatusSkipped, noAddress.Status)
	assert.Equal(t, models.QueueItemStatusPending, flaky.Status)
	assert.Equal(t, 1, flaky.Attempts)
	assert.Equal(t, models.QueueItemStatusFailed, bounced.Status)

	sent := fx.email.GetSent()
	require.Len(t, sent, 3)
	assert.Equal(t, "Hello Client", sent[0].Subject)
	assert.Equal(t, "New classes at Lotus", sent[0].TextBody)
	assert.Contains(t, sent[0].HTMLBody, "https://lotus.example/news/1")

	// One gap between each pair of consecutive sends.
	assert.Equal(t, 2, fx.sleeps)
	assert.Equal(t, 4, res.Email)
	assert.Len(t, fx.logs.entries, 4)
}

func TestProcessDue_EmailCredentialsRejected(t *testing.T) {
	fx := newQueueFixture(testClient(1, "a@example.com", true, false))
	fx.email.Failures["a@example.com"] = services.NewConfigError("postmark_error_10", "bad server token")
	item := fx.enqueue(1, models.NotificationChannelEmail, 0)

	flow := fx.flow()
	res, err := flow.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.QueueItemStatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, 1, res.Requeued)
	assert.True(t, item.ScheduledFor.After(utils.UTCNow().Add(10*time.Minute)), "row steps aside until the configuration is fixed")

	res, err = flow.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestProcessDue_LeaseHeldElsewhere(t *testing.T) {
	fx := newQueueFixture()
	fx.locker = busyLocker{}
	fx.enqueue(7, models.NotificationChannelPush, 0)

	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Busy)
	assert.Zero(t, res.Processed)
	assert.Zero(t, fx.queue.updates)
}

func TestProcessDue_EmptyQueue(t *testing.T) {
	fx := newQueueFixture()
	res, err := fx.flow().ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
	assert.Empty(t, fx.logs.entries)
}
