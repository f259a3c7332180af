package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
)

const (
	defaultReminderWindow = 72 * time.Hour
	defaultReminderBatch  = 500
)

type endingSubscriptionLister interface {
	ListActiveEndingBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Subscription, error)
}

type reminderNotifier interface {
	Notify(ctx context.Context, userID, subscriptionID uuid.UUID, kind enums.NotificationType, title, message string) error
}

// reminderMarker records which subscription periods were already reminded.
type reminderMarker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ReminderKey(subscriptionID string, periodEnd time.Time) string
}

// RenewalReminderJobParams configures the renewal reminder sweep.
type RenewalReminderJobParams struct {
	Logger   *logger.Logger
	Repo     endingSubscriptionLister
	Notifier reminderNotifier
	Marker   reminderMarker
	Metrics  *metrics.CronJobMetrics
	Window   time.Duration
	Limit    int
	Now      func() time.Time
}

// NewRenewalReminderJob builds the job that notifies readers whose
// subscription ends within the window. Each period is reminded once.
func NewRenewalReminderJob(params RenewalReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Marker == nil {
		return nil, fmt.Errorf("reminder marker required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultReminderWindow
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReminderBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &renewalReminderJob{
		logg:     params.Logger,
		repo:     params.Repo,
		notifier: params.Notifier,
		marker:   params.Marker,
		metrics:  params.Metrics,
		window:   window,
		limit:    limit,
		now:      now,
	}, nil
}

type renewalReminderJob struct {
	logg     *logger.Logger
	repo     endingSubscriptionLister
	notifier reminderNotifier
	marker   reminderMarker
	metrics  *metrics.CronJobMetrics
	window   time.Duration
	limit    int
	now      func() time.Time
}

func (j *renewalReminderJob) Name() string { return "renewal-reminder" }

func (j *renewalReminderJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	subs, err := j.repo.ListActiveEndingBetween(ctx, now, now.Add(j.window), j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions ending soon: %w", err)
	}

	var errs error
	sent := 0
	for i := range subs {
		ok, err := j.remind(ctx, now, &subs[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}
	j.metrics.AddProcessed(j.Name(), sent)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(subs),
		"sent":       sent,
	})
	j.logg.Info(logCtx, "renewal reminders complete")
	return errs
}

func (j *renewalReminderJob) remind(ctx context.Context, now time.Time, sub *models.Subscription) (bool, error) {
	key := j.marker.ReminderKey(sub.ID.String(), sub.EndDate)
	// keep the marker until the period is well past
	ttl := sub.EndDate.Sub(now) + j.window
	first, err := j.marker.SetNX(ctx, key, now.Format(time.RFC3339), ttl)
	if err != nil {
		return false, fmt.Errorf("mark reminder %s: %w", sub.ID, err)
	}
	if !first {
		return false, nil
	}

	days := int(sub.EndDate.Sub(now).Hours()/24) + 1
	message := fmt.Sprintf("Your %s subscription ends in %d day(s) on %s. Renew to keep reading.",
		sub.Plan, days, sub.EndDate.Format("2 Jan 2006"))
	if err := j.notifier.Notify(ctx, sub.UserID, sub.ID, enums.NotificationTypeRenewalReminder, "Subscription ending soon", message); err != nil {
		if delErr := j.marker.Del(ctx, key); delErr != nil {
			err = multierr.Append(err, delErr)
		}
		return false, fmt.Errorf("notify %s: %w", sub.ID, err)
	}
	return true, nil
}
