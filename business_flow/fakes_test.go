package businessflow

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"go.uber.org/zap"
)

// In-memory repositories. Each embeds its interface so unexercised methods panic loudly.

type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return nil, ErrLockNotAvailable
}

// hookLocker grants every lock after running onLock, standing in for a runner that
// finishes in between listing and locking.
type hookLocker struct {
	onLock func()
}

func (l hookLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	l.onLock()
	return func() {}, nil
}

type fakeCampaignRepo struct {
	repository.CampaignRepository
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
	statuses  []models.CampaignStatus
}

func newFakeCampaignRepo(campaigns ...*models.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: map[uint]*models.Campaign{}}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) ByID(_ context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ListDue(_ context.Context, now time.Time, _ int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.campaigns {
		if c.IsDue(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) UpdateStatus(_ context.Context, id uint, status models.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].Status = status
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeCampaignRepo) MarkExecuted(_ context.Context, id uint, status models.CampaignStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].Status = status
	r.campaigns[id].ExecutedAt = &at
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeCampaignRepo) status(id uint) models.CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id].Status
}

type fakeContentRepo struct {
	repository.CampaignContentRepository
	mu       sync.Mutex
	contents []*models.CampaignContent
	updates  int
}

func (r *fakeContentRepo) ListByCampaign(_ context.Context, campaignID uint) ([]*models.CampaignContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CampaignContent
	for _, c := range r.contents {
		if c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContentRepo) ListForExecution(ctx context.Context, campaignID uint) ([]*models.CampaignContent, error) {
	all, _ := r.ListByCampaign(ctx, campaignID)
	var out []*models.CampaignContent
	for _, c := range all {
		if c.Status != models.ContentStatusSkipped {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContentRepo) ListDueContainers(_ context.Context, now time.Time, limit int) ([]*models.CampaignContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CampaignContent
	for _, c := range r.contents {
		if c.Status == models.ContentStatusScheduled && c.ContainerID != nil && c.PublishAt != nil && !c.PublishAt.After(now) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeContentRepo) Update(_ context.Context, _ *models.CampaignContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return nil
}

func (r *fakeContentRepo) byType(t models.ContentType) *models.CampaignContent {
	for _, c := range r.contents {
		if c.ContentType == t {
			return c
		}
	}
	return nil
}

type fakeClientRepo struct {
	repository.ClientRepository
	mu      sync.Mutex
	clients map[uint]*models.Client
	optOuts int
}

func newFakeClientRepo(clients ...*models.Client) *fakeClientRepo {
	r := &fakeClientRepo{clients: map[uint]*models.Client{}}
	for _, c := range clients {
		r.clients[c.ID] = c
	}
	return r
}

func (r *fakeClientRepo) ByID(_ context.Context, id uint) (*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[id], nil
}

func (r *fakeClientRepo) ByIDs(_ context.Context, ids []uint) ([]*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Client
	for _, id := range ids {
		if c, ok := r.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeClientRepo) sorted() []*models.Client {
	out := make([]*models.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeClientRepo) ListActiveIDs(context.Context) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for _, c := range r.sorted() {
		if c.IsActive == nil || *c.IsActive {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (r *fakeClientRepo) ListNewsletterRecipients(context.Context) ([]*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Client
	for _, c := range r.sorted() {
		if c.AcceptsNewsletter() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeClientRepo) MarkNewsletterOptOut(_ context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clients[id]
	c.NewsletterOptOut = true
	c.OptedOutAt = &at
	r.optOuts++
	return nil
}

type fakeDeviceRepo struct {
	repository.DeviceTokenRepository
	mu          sync.Mutex
	tokens      []*models.DeviceToken
	deactivated []uint
	touched     []uint
}

func (r *fakeDeviceRepo) ListActiveByClientIDs(_ context.Context, ids []uint) ([]*models.DeviceToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[uint]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*models.DeviceToken
	for _, t := range r.tokens {
		if t.IsActive && want[t.ClientID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) Deactivate(_ context.Context, id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id {
			t.IsActive = false
			t.DeactivatedAt = &at
		}
	}
	r.deactivated = append(r.deactivated, id)
	return nil
}

func (r *fakeDeviceRepo) Touch(_ context.Context, id uint, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, id)
	return nil
}

type fakeAnnouncementRepo struct {
	repository.AnnouncementRepository
	saved []*models.Announcement
}

func (r *fakeAnnouncementRepo) Save(_ context.Context, a *models.Announcement) error {
	a.ID = uint(len(r.saved) + 1)
	r.saved = append(r.saved, a)
	return nil
}

type fakeQueueRepo struct {
	repository.NotificationQueueRepository
	mu      sync.Mutex
	items   []*models.NotificationQueueItem
	updates int
}

func (r *fakeQueueRepo) SaveBatch(_ context.Context, items []*models.NotificationQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		item.ID = uint(len(r.items) + 1)
		r.items = append(r.items, item)
	}
	return nil
}

func (r *fakeQueueRepo) ListDue(_ context.Context, now time.Time, channels []models.NotificationChannel, maxAttempts, limit int) ([]*models.NotificationQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.NotificationQueueItem
	for _, item := range r.items {
		if item.IsDispatchable(now, maxAttempts) && slices.Contains(channels, item.Channel) {
			out = append(out, item)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeQueueRepo) Update(context.Context, *models.NotificationQueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return nil
}

type fakeLogRepo struct {
	repository.NotificationLogRepository
	mu      sync.Mutex
	entries []*models.NotificationLog
}

func (r *fakeLogRepo) Save(_ context.Context, e *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type fakeNewsletterRepo struct {
	repository.NewsletterCampaignRepository
	mu          sync.Mutex
	newsletters []*models.NewsletterCampaign
	counters    map[uint]models.NewsletterCounters
}

func newFakeNewsletterRepo() *fakeNewsletterRepo {
	return &fakeNewsletterRepo{counters: map[uint]models.NewsletterCounters{}}
}

func (r *fakeNewsletterRepo) Save(_ context.Context, n *models.NewsletterCampaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = uint(len(r.newsletters) + 1)
	r.newsletters = append(r.newsletters, n)
	return nil
}

func (r *fakeNewsletterRepo) Update(context.Context, *models.NewsletterCampaign) error { return nil }

func (r *fakeNewsletterRepo) UpdateCounters(_ context.Context, id uint, c models.NewsletterCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[id] = c
	return nil
}

func (r *fakeNewsletterRepo) ListByCampaignID(_ context.Context, campaignID uint) ([]*models.NewsletterCampaign, error) {
	var out []*models.NewsletterCampaign
	for _, n := range r.newsletters {
		if n.CampaignID != nil && *n.CampaignID == campaignID {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeEmailRepo struct {
	repository.NewsletterEmailRepository
	mu     sync.Mutex
	emails []*models.NewsletterEmail
}

func (r *fakeEmailRepo) Save(_ context.Context, e *models.NewsletterEmail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uint(len(r.emails) + 1)
	r.emails = append(r.emails, e)
	return nil
}

func (r *fakeEmailRepo) Update(context.Context, *models.NewsletterEmail) error { return nil }

func (r *fakeEmailRepo) ByIDForUpdate(_ context.Context, id uint) (*models.NewsletterEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.emails {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeEmailRepo) ListByNewsletter(_ context.Context, id uint) ([]*models.NewsletterEmail, error) {
	var out []*models.NewsletterEmail
	for _, e := range r.emails {
		if e.NewsletterCampaignID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEmailRepo) Counters(_ context.Context, id uint) (models.NewsletterCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c models.NewsletterCounters
	for _, e := range r.emails {
		if e.NewsletterCampaignID != id {
			continue
		}
		switch e.Status {
		case models.EmailStatusClicked:
			c.Clicked++
			c.Opened++
			c.Delivered++
		case models.EmailStatusOpened:
			c.Opened++
			c.Delivered++
		case models.EmailStatusDelivered:
			c.Delivered++
		case models.EmailStatusBounced:
			c.Bounced++
		case models.EmailStatusComplained:
			c.Complained++
		}
	}
	return c, nil
}

type fakeEventRepo struct {
	repository.EmailTrackingEventRepository
	events []*models.EmailTrackingEvent
}

func (r *fakeEventRepo) Save(_ context.Context, e *models.EmailTrackingEvent) error {
	r.events = append(r.events, e)
	return nil
}

type fakeSocialRepo struct {
	conns map[models.SocialPlatform]*models.SocialConnection
	err   error
}

func (r *fakeSocialRepo) ByOperatorAndPlatform(_ context.Context, _ uint, p models.SocialPlatform) (*models.SocialConnection, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.conns[p], nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
