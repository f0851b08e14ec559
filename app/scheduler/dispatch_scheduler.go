// Package scheduler runs the dispatch passes on in-process tickers when no external cron drives them
package scheduler

import (
	"context"
	"sync"
	"time"

	businessflow "github.com/amirphl/Tamamo-no-Mae/business_flow"
	"github.com/amirphl/Tamamo-no-Mae/config"
	"go.uber.org/zap"
)

// Job is one periodic pass
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// DispatchScheduler fires each job on its own ticker. A slow run delays only its own job.
type DispatchScheduler struct {
	jobs       []Job
	runTimeout time.Duration
	logger     *zap.Logger
}

func NewDispatchScheduler(jobs []Job, runTimeout time.Duration, logger *zap.Logger) *DispatchScheduler {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &DispatchScheduler{
		jobs:       jobs,
		runTimeout: runTimeout,
		logger:     logger.Named("scheduler"),
	}
}

// NewDispatchJobs builds the three dispatch passes from their flows
func NewDispatchJobs(
	cfg config.DispatchConfig,
	execution businessflow.CampaignExecutionFlow,
	queue businessflow.NotificationQueueFlow,
	social businessflow.SocialPublishFlow,
) []Job {
	return []Job{
		{
			Name:     "execute_due_campaigns",
			Interval: cfg.CampaignInterval,
			Run: func(ctx context.Context) error {
				_, err := execution.ExecuteDueCampaigns(ctx)
				return err
			},
		},
		{
			Name:     "process_notification_queue",
			Interval: cfg.QueueInterval,
			Run: func(ctx context.Context) error {
				_, err := queue.ProcessDue(ctx)
				return err
			},
		},
		{
			Name:     "publish_due_social",
			Interval: cfg.SocialInterval,
			Run: func(ctx context.Context) error {
				_, err := social.PublishDueContainers(ctx)
				return err
			},
		},
	}
}

// Start launches one goroutine per job and returns a stop function that waits for them
func (s *DispatchScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup

	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.Warn("job disabled", zap.String("job", job.Name))
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}

	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))

	return func() {
		cancel()
		wg.Wait()
		s.logger.Info("scheduler stopped")
	}
}

func (s *DispatchScheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *DispatchScheduler) runOnce(parent context.Context, job Job) {
	ctx, cancel := context.WithTimeout(parent, s.runTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("elapsed", time.Since(start)))
}
