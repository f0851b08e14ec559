package businessflow

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/app/dto"
	"github.com/amirphl/Tamamo-no-Mae/app/services"
	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/repository"
	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NotificationQueueFlow turns due queue items into push and email deliveries
type NotificationQueueFlow interface {
	ProcessDue(ctx context.Context) (*dto.ProcessQueueResponse, error)
}

// NotificationQueueFlowImpl implements NotificationQueueFlow
type NotificationQueueFlowImpl struct {
	queueRepo  repository.NotificationQueueRepository
	logRepo    repository.NotificationLogRepository
	clientRepo repository.ClientRepository
	deviceRepo repository.DeviceTokenRepository
	push       services.PushService
	email      services.EmailService
	locker     Locker
	opts       DispatchOptions
	logger     *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewNotificationQueueFlow creates the queue processor
func NewNotificationQueueFlow(
	queueRepo repository.NotificationQueueRepository,
	logRepo repository.NotificationLogRepository,
	clientRepo repository.ClientRepository,
	deviceRepo repository.DeviceTokenRepository,
	push services.PushService,
	email services.EmailService,
	locker Locker,
	opts DispatchOptions,
	logger *zap.Logger,
) NotificationQueueFlow {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &NotificationQueueFlowImpl{
		queueRepo:  queueRepo,
		logRepo:    logRepo,
		clientRepo: clientRepo,
		deviceRepo: deviceRepo,
		push:       push,
		email:      email,
		locker:     locker,
		opts:       opts.withDefaults(),
		logger:     logger.Named("notification_queue"),
		now:        utils.UTCNow,
		sleep:      sleepContext,
	}
}

// itemOutcome is the single write applied to a queue item after one attempt
type itemOutcome struct {
	status     models.QueueItemStatus
	countsTry  bool
	retryAt    *time.Time
	providerID *string
	err        error
}

// ProcessDue pulls one batch of due items and dispatches it. Row-level failures are stored
// on the rows; only failing to read the batch is returned as an error.
func (f *NotificationQueueFlowImpl) ProcessDue(ctx context.Context) (*dto.ProcessQueueResponse, error) {
	logger := loggerFrom(ctx, f.logger)
	started := time.Now()
	defer func() { queueBatchDuration.Observe(time.Since(started).Seconds()) }()

	release, err := f.locker.TryLock(ctx, queueProcessorLeaseKey, f.opts.LeaseTTL)
	switch {
	case errors.Is(err, ErrLockNotAvailable):
		logger.Info("queue processor lease held by another invocation")
		return &dto.ProcessQueueResponse{Busy: true}, nil
	case err != nil:
		logger.Warn("queue processor lease unavailable, continuing without it", zap.Error(err))
	default:
		defer release()
	}

	// Rows of a disabled channel stay pending and out of the batch so they cannot starve the
	// other channel.
	channels := f.enabledChannels()
	if len(channels) == 0 {
		logger.Warn("no notification channel is configured, queue left untouched")
		return &dto.ProcessQueueResponse{}, nil
	}

	items, err := f.queueRepo.ListDue(ctx, f.now(), channels, f.opts.MaxAttempts, f.opts.BatchSize)
	if err != nil {
		return nil, NewBusinessError("QUEUE_FETCH_FAILED", "Failed to load due notifications", err)
	}
	if len(items) == 0 {
		return &dto.ProcessQueueResponse{}, nil
	}

	var pushItems, emailItems []*models.NotificationQueueItem
	result := &dto.ProcessQueueResponse{}
	for _, item := range items {
		switch item.Channel {
		case models.NotificationChannelPush:
			pushItems = append(pushItems, item)
		case models.NotificationChannelEmail:
			emailItems = append(emailItems, item)
		default:
			f.finish(ctx, item, itemOutcome{status: models.QueueItemStatusSkipped, err: errors.New("unsupported channel")}, result)
		}
	}

	var pushResult, emailResult dto.ProcessQueueResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f.processPush(gctx, pushItems, &pushResult)
		return nil
	})
	g.Go(func() error {
		f.processEmail(gctx, emailItems, &emailResult)
		return nil
	})
	_ = g.Wait()

	result.Add(pushResult)
	result.Add(emailResult)

	logger.Info("notification batch processed",
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Int("requeued", result.Requeued))

	return result, nil
}

func (f *NotificationQueueFlowImpl) enabledChannels() []models.NotificationChannel {
	var channels []models.NotificationChannel
	if f.push.Enabled() {
		channels = append(channels, models.NotificationChannelPush)
	}
	if f.email.Enabled() {
		channels = append(channels, models.NotificationChannelEmail)
	}
	return channels
}

type pushTarget struct {
	token *models.DeviceToken
	sub   *models.PushSubscription
}

func (f *NotificationQueueFlowImpl) processPush(ctx context.Context, items []*models.NotificationQueueItem, result *dto.ProcessQueueResponse) {
	if len(items) == 0 {
		return
	}
	result.Push = len(items)

	clientIDs := distinctClientIDs(items)
	tokens, err := f.deviceRepo.ListActiveByClientIDs(ctx, clientIDs)
	if err != nil {
		f.logger.Error("failed to load push targets", zap.Error(err))
		for _, item := range items {
			f.finish(ctx, item, itemOutcome{status: models.QueueItemStatusPending, countsTry: true, err: err}, result)
		}
		return
	}

	// Only structured subscriptions are deliverable; legacy native tokens are ignored.
	targets := make(map[uint][]pushTarget, len(clientIDs))
	for _, tok := range tokens {
		if sub, ok := tok.Subscription(); ok {
			targets[tok.ClientID] = append(targets[tok.ClientID], pushTarget{token: tok, sub: sub})
		}
	}
	gone := make(map[uint]bool)

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}

		var live []pushTarget
		for _, t := range targets[item.ClientID] {
			if !gone[t.token.ID] {
				live = append(live, t)
			}
		}
		if len(live) == 0 {
			f.finish(ctx, item, itemOutcome{status: models.QueueItemStatusSkipped, err: errors.New("no deliverable push subscription")}, result)
			continue
		}

		f.finish(ctx, item, f.sendPush(ctx, item, live, gone), result)
	}
}

// sendPush tries the recipient's targets in order and stops at the first success
func (f *NotificationQueueFlowImpl) sendPush(ctx context.Context, item *models.NotificationQueueItem, targets []pushTarget, gone map[uint]bool) itemOutcome {
	msg := services.PushMessage{
		Title: item.Title,
		Body:  item.Body,
		Icon:  f.opts.PushIcon,
		Badge: f.opts.PushBadge,
		Data: map[string]any{
			"queue_item_id": item.ID,
			"category":      string(item.Category),
		},
	}
	payload, err := item.Payload()
	if err != nil {
		f.logger.Warn("undecodable queue payload", zap.Uint("queue_item_id", item.ID), zap.Error(err))
	} else if link := f.opts.absoluteURL(payload.URL()); link != "" {
		msg.Data["url"] = link
	}

	var lastErr error
	transient := false
	for _, t := range targets {
		res := f.push.Send(ctx, *t.sub, msg)
		if res.Success {
			if err := f.deviceRepo.Touch(ctx, t.token.ID, f.now()); err != nil {
				f.logger.Warn("failed to touch push target", zap.Uint("device_token_id", t.token.ID), zap.Error(err))
			}
			return itemOutcome{status: models.QueueItemStatusSent, countsTry: true}
		}

		lastErr = res.Err
		if res.Expired() {
			gone[t.token.ID] = true
			pushTargetsDeactivated.Inc()
			if err := f.deviceRepo.Deactivate(ctx, t.token.ID, f.now()); err != nil {
				f.logger.Error("failed to deactivate push target", zap.Uint("device_token_id", t.token.ID), zap.Error(err))
			}
			continue
		}
		if services.IsTransient(res.Err) {
			transient = true
		}
	}

	if transient {
		return f.retryOrFail(item, lastErr)
	}
	return itemOutcome{status: models.QueueItemStatusFailed, countsTry: true, err: lastErr}
}

func (f *NotificationQueueFlowImpl) processEmail(ctx context.Context, items []*models.NotificationQueueItem, result *dto.ProcessQueueResponse) {
	if len(items) == 0 {
		return
	}
	result.Email = len(items)

	clients, err := f.clientRepo.ByIDs(ctx, distinctClientIDs(items))
	if err != nil {
		f.logger.Error("failed to load email recipients", zap.Error(err))
		for _, item := range items {
			f.finish(ctx, item, itemOutcome{status: models.QueueItemStatusPending, countsTry: true, err: err}, result)
		}
		return
	}
	byID := make(map[uint]*models.Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}

	sentOne := false
	for _, item := range items {
		client := byID[item.ClientID]
		if client == nil || client.EmailAddress() == "" {
			f.finish(ctx, item, itemOutcome{status: models.QueueItemStatusSkipped, err: errors.New("recipient has no email address")}, result)
			continue
		}

		// Provider rate limit: strictly sequential with a fixed gap between sends.
		if sentOne {
			if err := f.sleep(ctx, f.opts.EmailDelay); err != nil {
				return
			}
		}
		sentOne = true

		f.finish(ctx, item, f.sendEmail(ctx, item, client), result)
	}
}

func (f *NotificationQueueFlowImpl) sendEmail(ctx context.Context, item *models.NotificationQueueItem, client *models.Client) itemOutcome {
	vars := templateVars(client, f.opts, "")
	title := services.RenderTemplate(item.Title, vars)
	body := services.RenderTemplate(item.Body, vars)

	var cta string
	if payload, err := item.Payload(); err == nil {
		cta = f.opts.absoluteURL(payload.URL())
	}

	html, err := services.RenderBrandedHTML(services.BrandedEmail{
		StudioName: f.opts.StudioName,
		Title:      title,
		Body:       body,
		CTAURL:     cta,
	})
	if err != nil {
		return itemOutcome{status: models.QueueItemStatusFailed, countsTry: true, err: err}
	}

	messageID, err := f.email.Send(ctx, services.EmailMessage{
		To:       client.EmailAddress(),
		Subject:  title,
		HTMLBody: html,
		TextBody: body,
		Tag:      string(item.Category),
		Metadata: map[string]string{"queue_item_id": uintString(item.ID)},
	})
	switch {
	case err == nil:
		return itemOutcome{status: models.QueueItemStatusSent, countsTry: true, providerID: &messageID}
	case services.IsConfig(err):
		// Provider rejected our credentials: no attempt is spent, but the row steps aside
		// until the configuration is fixed.
		retryAt := f.now().Add(f.opts.ConfigRetryDelay)
		return itemOutcome{status: models.QueueItemStatusPending, retryAt: &retryAt, err: err}
	case services.IsTransient(err):
		return f.retryOrFail(item, err)
	default:
		return itemOutcome{status: models.QueueItemStatusFailed, countsTry: true, err: err}
	}
}

// retryOrFail re-queues a transient failure unless this attempt reaches the cap
func (f *NotificationQueueFlowImpl) retryOrFail(item *models.NotificationQueueItem, err error) itemOutcome {
	if item.Attempts+1 >= f.opts.MaxAttempts {
		return itemOutcome{status: models.QueueItemStatusFailed, countsTry: true, err: err}
	}
	return itemOutcome{status: models.QueueItemStatusPending, countsTry: true, err: err}
}

// finish applies the one terminal write of this attempt and appends the audit log
func (f *NotificationQueueFlowImpl) finish(ctx context.Context, item *models.NotificationQueueItem, out itemOutcome, result *dto.ProcessQueueResponse) {
	now := f.now()
	if out.countsTry {
		item.Attempts++
	}
	item.Status = out.status
	item.LastError = errString(out.err)
	if out.providerID != nil {
		item.ProviderMessageID = out.providerID
	}
	if out.retryAt != nil {
		item.ScheduledFor = *out.retryAt
	}
	if out.status == models.QueueItemStatusSent {
		item.SentAt = &now
	}

	result.Processed++
	switch out.status {
	case models.QueueItemStatusSent:
		result.Sent++
	case models.QueueItemStatusFailed:
		result.Failed++
	case models.QueueItemStatusSkipped:
		result.Skipped++
	case models.QueueItemStatusPending:
		result.Requeued++
	}
	notificationsDispatched.WithLabelValues(string(item.Channel), string(out.status)).Inc()

	logger := f.logger.With(
		zap.Uint("queue_item_id", item.ID),
		zap.Uint("client_id", item.ClientID),
		zap.String("channel", string(item.Channel)),
		zap.String("status", string(out.status)),
		zap.Int("attempts", item.Attempts),
	)
	if out.err != nil {
		logger.Info("notification not delivered", zap.Error(out.err))
	} else {
		logger.Debug("notification delivered")
	}

	if err := f.queueRepo.Update(ctx, item); err != nil {
		logger.Error("failed to store queue item outcome", zap.Error(err))
	}

	entry := &models.NotificationLog{
		QueueItemID:       &item.ID,
		ClientID:          item.ClientID,
		Channel:           item.Channel,
		Category:          item.Category,
		Status:            out.status,
		Attempt:           item.Attempts,
		Title:             utils.TruncateString(item.Title, 255),
		ProviderMessageID: out.providerID,
		Error:             errString(out.err),
		CreatedAt:         now,
	}
	if err := f.logRepo.Save(ctx, entry); err != nil {
		logger.Error("failed to append notification log", zap.Error(err))
	}
}

func distinctClientIDs(items []*models.NotificationQueueItem) []uint {
	seen := make(map[uint]struct{}, len(items))
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ClientID]; ok {
			continue
		}
		seen[item.ClientID] = struct{}{}
		ids = append(ids, item.ClientID)
	}
	return ids
}

// templateVars builds the personalization map for a recipient
func templateVars(client *models.Client, opts DispatchOptions, unsubscribeURL string) map[string]string {
	vars := map[string]string{
		services.TemplateVarFirstName:  client.FirstName,
		services.TemplateVarLastName:   client.LastName,
		services.TemplateVarFullName:   client.FullName(),
		services.TemplateVarEmail:      client.EmailAddress(),
		services.TemplateVarStudioName: opts.StudioName,
		services.TemplateVarAppURL:     opts.AppURL,
	}
	if unsubscribeURL != "" {
		vars[services.TemplateVarUnsubscribeURL] = unsubscribeURL
	}
	return vars
}
