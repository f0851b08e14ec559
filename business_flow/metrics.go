package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Queue item dispatch outcomes by channel and resulting status",
		},
		[]string{"channel", "status"},
	)

	pushTargetsDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_targets_deactivated_total",
			Help: "Push subscriptions deactivated after the push service reported them gone",
		},
	)

	campaignExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_executions_total",
			Help: "Campaign executions by terminal status",
		},
		[]string{"status"},
	)

	campaignContentOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_content_outcomes_total",
			Help: "Campaign content rows by content type and final status",
		},
		[]string{"content_type", "status"},
	)

	newsletterEmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_emails_total",
			Help: "Newsletter email sends by outcome",
		},
		[]string{"outcome"},
	)

	emailWebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_webhook_events_total",
			Help: "Email provider webhook events by type and whether they changed stored status",
		},
		[]string{"type", "result"},
	)

	queueBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notification_queue_batch_duration_seconds",
			Help:    "Wall time of one queue processor invocation",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
