package mobilemoneywebhook

import (
	"context"

	"github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
)

// Provider labels dedup keys and metrics for this webhook source.
const Provider = "mobile-money"

type reconciler interface {
	Reconcile(ctx context.Context, input subscriptions.ReconcileInput) (*subscriptions.ReconcileResult, error)
}

type guard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Outcome describes what happened to a verified delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

type ServiceParams struct {
	Reconciler reconciler
	Guard      guard
	Logger     *logger.Logger
	Metrics    *metrics.PaymentMetrics
}

// Service dispatches verified webhook events to reconciliation.
type Service struct {
	reconciler reconciler
	guard      guard
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		reconciler: params.Reconciler,
		guard:      params.Guard,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

// HandleEvent reconciles charge events once per dedup window. Reconcile is
// idempotent on its own, so the dedup store only saves gateway round trips:
// when it is unavailable the event is reconciled anyway. Reconciliation
// failures are logged and not returned. The mark is released whenever the
// subscription is left pending so a later delivery can settle it.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (Outcome, error) {
	if event == nil {
		return OutcomeIgnored, pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}
	eventType := event.Type()
	ctx = s.logg.WithField(ctx, "event_type", eventType)

	if !event.Handled() {
		s.logg.Debug(ctx, "ignoring webhook event")
		s.metrics.IncWebhook(eventType, metrics.OutcomeIgnored)
		return OutcomeIgnored, nil
	}
	reference := event.Reference()
	if reference == "" {
		s.logg.Warn(ctx, "webhook event without reference")
		s.metrics.IncWebhook(eventType, metrics.OutcomeIgnored)
		return OutcomeIgnored, nil
	}
	ctx = s.logg.WithReference(ctx, reference)

	key := event.DedupKey()
	marked := true
	seen, err := s.guard.CheckAndMark(ctx, key)
	if err != nil {
		s.logg.Error(ctx, "webhook dedup unavailable; reconciling without it", err)
		marked = false
	}
	if seen {
		s.logg.Info(ctx, "duplicate webhook delivery skipped")
		s.metrics.IncWebhook(eventType, metrics.OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	result, err := s.reconciler.Reconcile(ctx, subscriptions.ReconcileInput{
		Reference: reference,
		Source:    enums.ReconcileSourceWebhook,
	})
	if err != nil {
		s.logg.Error(ctx, "webhook reconciliation failed", err)
		if marked {
			s.release(ctx, key)
		}
		s.metrics.IncWebhook(eventType, metrics.OutcomeError)
		return OutcomeFailed, nil
	}

	if marked && unsettled(result) {
		s.release(ctx, key)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"status":          string(result.Subscription.Status),
		"gateway_status":  string(result.GatewayStatus),
		"reported_status": string(event.ReportedStatus()),
		"applied":         result.Applied,
	}), "webhook reconciled")
	s.metrics.IncWebhook(eventType, metrics.OutcomeOK)
	return OutcomeProcessed, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.guard.Release(ctx, key); err != nil {
		s.logg.Error(ctx, "failed to release webhook dedup key", err)
	}
}

// unsettled reports whether the gateway has not produced a final outcome yet.
func unsettled(result *subscriptions.ReconcileResult) bool {
	if result.GatewayStatus == enums.GatewayStatusPending {
		return true
	}
	return !result.Applied && result.Subscription != nil &&
		result.Subscription.Status == enums.SubscriptionStatusPending
}
