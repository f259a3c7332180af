package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
)

const (
	defaultReconcileLimit    = 100
	defaultReconcileMinAge   = 15 * time.Minute
	defaultReconcileLookback = 72 * time.Hour
)

type pendingSubscriptionLister interface {
	ListPendingWithReference(ctx context.Context, initializedAfter, initializedBefore time.Time, limit int) ([]models.Subscription, error)
}

type paymentReconciler interface {
	Reconcile(ctx context.Context, input subscriptions.ReconcileInput) (*subscriptions.ReconcileResult, error)
}

// PendingReconcileJobParams configures the payment poll fallback.
type PendingReconcileJobParams struct {
	Logger     *logger.Logger
	Repo       pendingSubscriptionLister
	Reconciler paymentReconciler
	Metrics    *metrics.CronJobMetrics
	Limit      int
	MinAge     time.Duration
	Lookback   time.Duration
	Now        func() time.Time
}

// NewPendingReconcileJob builds the job that polls the gateway for pending
// subscriptions whose webhook never arrived.
func NewPendingReconcileJob(params PendingReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultReconcileMinAge
	}
	lookback := params.Lookback
	if lookback <= minAge {
		lookback = defaultReconcileLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &pendingReconcileJob{
		logg:       params.Logger,
		repo:       params.Repo,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		limit:      limit,
		minAge:     minAge,
		lookback:   lookback,
		now:        now,
	}, nil
}

type pendingReconcileJob struct {
	logg       *logger.Logger
	repo       pendingSubscriptionLister
	reconciler paymentReconciler
	metrics    *metrics.CronJobMetrics
	limit      int
	minAge     time.Duration
	lookback   time.Duration
	now        func() time.Time
}

func (j *pendingReconcileJob) Name() string { return "pending-reconcile" }

func (j *pendingReconcileJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	candidates, err := j.repo.ListPendingWithReference(ctx, now.Add(-j.lookback), now.Add(-j.minAge), j.limit)
	if err != nil {
		return fmt.Errorf("list pending subscriptions: %w", err)
	}

	var errs error
	applied := 0
	for i := range candidates {
		sub := &candidates[i]
		logCtx := j.logg.WithSubscriptionID(ctx, sub.ID.String())
		ref := sub.Reference()
		logCtx = j.logg.WithReference(logCtx, ref)
		result, err := j.reconciler.Reconcile(logCtx, subscriptions.ReconcileInput{
			Reference: ref,
			Source:    enums.ReconcileSourcePoll,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", sub.ID, err))
			continue
		}
		if result != nil && result.Applied {
			applied++
		}
	}
	j.metrics.AddProcessed(j.Name(), len(candidates))

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"applied":    applied,
	})
	j.logg.Info(logCtx, "pending reconcile complete")
	return errs
}
