package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/utils"
	"go.uber.org/zap"
)

// DispatchOptions are the tunables shared by the orchestrator, the queue processor and the
// newsletter send loop
type DispatchOptions struct {
	BatchSize   int
	MaxAttempts int
	EmailDelay  time.Duration
	LeaseTTL    time.Duration
	CampaignTTL time.Duration
	// ConfigRetryDelay postpones a row whose provider rejected the channel configuration
	ConfigRetryDelay time.Duration
	StudioName       string
	AppURL           string
	PushIcon         string
	PushBadge        string
	NewsletterTag    string
}

// DefaultDispatchOptions returns the production defaults
func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{
		BatchSize:        utils.QueueBatchSize,
		MaxAttempts:      utils.MaxDispatchAttempts,
		EmailDelay:       utils.EmailSendDelay,
		LeaseTTL:         utils.QueueProcessorLeaseTTL,
		CampaignTTL:      utils.CampaignExecutionLockTTL,
		ConfigRetryDelay: utils.ChannelConfigRetryDelay,
		StudioName:       "Studio",
		NewsletterTag:    "newsletter",
	}
}

func (o DispatchOptions) withDefaults() DispatchOptions {
	d := DefaultDispatchOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.EmailDelay < 0 {
		o.EmailDelay = 0
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = d.LeaseTTL
	}
	if o.CampaignTTL <= 0 {
		o.CampaignTTL = d.CampaignTTL
	}
	if o.ConfigRetryDelay <= 0 {
		o.ConfigRetryDelay = d.ConfigRetryDelay
	}
	if o.StudioName == "" {
		o.StudioName = d.StudioName
	}
	if o.NewsletterTag == "" {
		o.NewsletterTag = d.NewsletterTag
	}
	return o
}

// absoluteURL resolves a deep link against the application base URL
func (o DispatchOptions) absoluteURL(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if o.AppURL == "" {
		return link
	}
	return strings.TrimRight(o.AppURL, "/") + "/" + strings.TrimLeft(link, "/")
}

// sleepContext waits d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// loggerFrom attaches the request id carried by ctx, when present
func loggerFrom(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id, ok := ctx.Value(utils.RequestIDKey).(string); ok && id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	return utils.ToPtr(utils.TruncateString(err.Error(), 1000))
}

func uintString(v uint) string {
	return fmt.Sprintf("%d", v)
}
