package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
)

const defaultExpiryBatch = 500

type subscriptionExpirer interface {
	ExpireEnded(ctx context.Context, now time.Time, limit int) (int, error)
}

// SubscriptionExpiryJobParams configures the expiry sweep.
type SubscriptionExpiryJobParams struct {
	Logger  *logger.Logger
	Service subscriptionExpirer
	Metrics *metrics.CronJobMetrics
	Limit   int
	Now     func() time.Time
}

// NewSubscriptionExpiryJob builds the job that moves ended active
// subscriptions to expired.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultExpiryBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &subscriptionExpiryJob{
		logg:    params.Logger,
		svc:     params.Service,
		metrics: params.Metrics,
		limit:   limit,
		now:     now,
	}, nil
}

type subscriptionExpiryJob struct {
	logg    *logger.Logger
	svc     subscriptionExpirer
	metrics *metrics.CronJobMetrics
	limit   int
	now     func() time.Time
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.svc.ExpireEnded(ctx, now, j.limit)
	j.metrics.AddProcessed(j.Name(), expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  now,
		"expired": expired,
	})
	if err != nil {
		return fmt.Errorf("expire subscriptions: %w", err)
	}
	j.logg.Info(logCtx, "subscription expiry complete")
	return nil
}
